package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
)

// Ledger is the idempotency gate. Only a terminal record blocks a delivery.
type Ledger interface {
	// IsProcessed reports whether a terminal record exists for externalID.
	IsProcessed(ctx context.Context, externalID string) (bool, error)
	// Claim atomically creates (or upgrades a non-terminal record into) a
	// terminal record. It returns false when another delivery already holds
	// the terminal record.
	Claim(ctx context.Context, rec *domain.IdempotencyRecord) (bool, error)
	// Observe records an intermediate callback without ever touching a
	// terminal record.
	Observe(ctx context.Context, rec *domain.IdempotencyRecord) error
	// Release downgrades a terminal claim whose business mutation never happened.
	Release(ctx context.Context, externalID string) error
}

// TransactionStore persists payment attempts.
type TransactionStore interface {
	// FindTransaction looks up by id, then by reference id.
	FindTransaction(ctx context.Context, ref string) (*domain.Transaction, error)
	// ApplyTransition moves a non-terminal transaction to upd.Status. It
	// returns false when the stored transaction is already terminal.
	ApplyTransition(ctx context.Context, id string, upd domain.TransactionUpdate) (bool, error)
	// MergeMetadata refreshes metadata of a non-terminal transaction.
	MergeMetadata(ctx context.Context, id string, metadata map[string]any) error
	// CreateTransaction inserts t unless its id exists; it reports whether
	// a row was created.
	CreateTransaction(ctx context.Context, t *domain.Transaction) (bool, error)
}

// SubscriptionStore persists entitlement windows keyed by owner.
type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, ownerID string) (*domain.Subscription, error)
	DeactivateSubscription(ctx context.Context, ownerID string, status domain.SubscriptionStatus, reason string, at time.Time) error
}

// WalletStore applies wallet entries with read-modify-write under a lock.
type WalletStore interface {
	// ApplyWalletEntry applies entry once per (ExternalID, Kind). The bool
	// is false when the entry had already been applied.
	ApplyWalletEntry(ctx context.Context, entry *domain.WalletEntry) (*domain.Wallet, bool, error)
	GetWallet(ctx context.Context, id string) (*domain.Wallet, error)
}

// AlertSink receives side effects that failed after a terminal transition.
type AlertSink interface {
	Raise(ctx context.Context, alert *domain.SideEffectAlert) error
}
