package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication       = errors.New("callback authentication failed")
	ErrValidation           = errors.New("invalid callback payload")
	ErrUnknownStatus        = errors.New("unknown callback status")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrWalletNotFound       = errors.New("wallet not found")
)

// SideEffectError wraps a failure that happened after the transaction was
// already marked terminal. It is reported out of band, never to the gateway.
type SideEffectError struct {
	Effect     string
	ExternalID string
	Err        error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Effect, e.ExternalID, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }
