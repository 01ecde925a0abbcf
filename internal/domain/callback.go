package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CallbackKind records which identifier field the gateway used.
type CallbackKind string

const (
	KindDeposit CallbackKind = "deposit"
	KindPayout  CallbackKind = "payout"
	KindRefund  CallbackKind = "refund"
	// KindGeneric is a callback that only carried a bare "id".
	KindGeneric CallbackKind = "generic"
)

// CallbackStatus is the status reported by the gateway.
type CallbackStatus string

const (
	StatusSubmitted        CallbackStatus = "SUBMITTED"
	StatusAccepted         CallbackStatus = "ACCEPTED"
	StatusEnqueued         CallbackStatus = "ENQUEUED"
	StatusProcessing       CallbackStatus = "PROCESSING"
	StatusInReconciliation CallbackStatus = "IN_RECONCILIATION"
	StatusDuplicateIgnored CallbackStatus = "DUPLICATE_IGNORED"
	StatusCompleted        CallbackStatus = "COMPLETED"
	StatusFailed           CallbackStatus = "FAILED"
	StatusRejected         CallbackStatus = "REJECTED"
)

// TransitionClass is what a callback status does to a transaction.
type TransitionClass string

const (
	ClassCompleted    TransitionClass = "completed"
	ClassFailed       TransitionClass = "failed"
	ClassIntermediate TransitionClass = "intermediate"
)

// ParseCallbackStatus normalizes s and rejects statuses this service does
// not know how to route.
func ParseCallbackStatus(s string) (CallbackStatus, error) {
	status := CallbackStatus(strings.ToUpper(strings.TrimSpace(s)))
	if _, err := status.Class(); err != nil {
		return "", err
	}
	return status, nil
}

// Class maps a gateway status onto a transition class. Every known status
// is listed; anything else is an error rather than an intermediate update.
func (s CallbackStatus) Class() (TransitionClass, error) {
	switch s {
	case StatusCompleted, StatusAccepted:
		return ClassCompleted, nil
	case StatusFailed, StatusRejected:
		return ClassFailed, nil
	case StatusSubmitted, StatusEnqueued, StatusProcessing, StatusInReconciliation, StatusDuplicateIgnored:
		return ClassIntermediate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}
}

// Terminal reports whether s settles the transaction.
func (s CallbackStatus) Terminal() bool {
	class, err := s.Class()
	return err == nil && class != ClassIntermediate
}

// CallbackEvent is a gateway callback resolved into one canonical shape.
type CallbackEvent struct {
	Kind              CallbackKind    `json:"kind"`
	ExternalID        string          `json:"external_id"`
	DepositID         string          `json:"deposit_id,omitempty"`
	Status            CallbackStatus  `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Correspondent     string          `json:"correspondent"`
	FailureReason     string          `json:"failure_reason,omitempty"`
	CustomerTimestamp string          `json:"customer_timestamp,omitempty"`
	Created           string          `json:"created,omitempty"`
	ReceivedAt        time.Time       `json:"received_at"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// Record builds the ledger row for this event.
func (e *CallbackEvent) Record(terminal bool, outcome string, at time.Time) *IdempotencyRecord {
	return &IdempotencyRecord{
		ExternalID:    e.ExternalID,
		Status:        e.Status,
		Amount:        e.Amount,
		Currency:      e.Currency,
		Correspondent: e.Correspondent,
		Terminal:      terminal,
		Outcome:       outcome,
		Payload:       e.Raw,
		ProcessedAt:   at,
	}
}

// PaymentMethodFor names the mobile-money network behind a correspondent code.
func PaymentMethodFor(correspondent string) string {
	if strings.Contains(strings.ToUpper(correspondent), "MTN") {
		return "MTN Mobile Money"
	}
	return "Airtel Money"
}
