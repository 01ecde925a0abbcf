package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType identifies what a payment attempt was for.
type TransactionType string

const (
	TypeSubscriptionPayment TransactionType = "subscriptionPayment"
	TypeDeposit             TransactionType = "deposit"
	TypePayout              TransactionType = "payout"
	TypeRefund              TransactionType = "refund"
)

// TransactionStatus is the stored lifecycle state of a Transaction.
// Gateway statuses that are not terminal are kept in metadata only.
type TransactionStatus string

const (
	TxInitiated TransactionStatus = "initiated"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
)

// Terminal reports whether no further status change is permitted.
func (s TransactionStatus) Terminal() bool {
	return s == TxCompleted || s == TxFailed
}

// Transaction is the durable record of a payment attempt. ID is the
// gateway-assigned identifier (deposit, payout or refund id).
type Transaction struct {
	ID               string            `json:"id"`
	ReferenceID      string            `json:"reference_id,omitempty"`
	Type             TransactionType   `json:"type"`
	OwnerID          string            `json:"owner_id"`
	WalletID         string            `json:"wallet_id,omitempty"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Status           TransactionStatus `json:"status"`
	PaymentMethod    string            `json:"payment_method,omitempty"`
	PaymentReference string            `json:"payment_reference,omitempty"`
	FailureReason    string            `json:"failure_reason,omitempty"`
	Description      string            `json:"description,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// TransactionUpdate carries the fields a callback writes onto a Transaction.
// Metadata is merged into the stored metadata, never replacing it.
type TransactionUpdate struct {
	Status           TransactionStatus
	PaymentReference string
	FailureReason    string
	CompletedAt      time.Time
	Metadata         map[string]any
}

// SubscriptionStatus is the entitlement state of a Subscription.
type SubscriptionStatus string

const (
	SubActive    SubscriptionStatus = "active"
	SubPending   SubscriptionStatus = "pending"
	SubExpired   SubscriptionStatus = "expired"
	SubCancelled SubscriptionStatus = "cancelled"
)

// Subscription is a user's premium entitlement window, keyed by owner.
type Subscription struct {
	OwnerID          string             `json:"user_id"`
	Type             string             `json:"type"`
	Status           SubscriptionStatus `json:"status"`
	StartDate        time.Time          `json:"start_date"`
	EndDate          time.Time          `json:"end_date"`
	Amount           decimal.Decimal    `json:"amount"`
	PaymentMethod    string             `json:"payment_method"`
	PaymentReference string             `json:"payment_reference"`
	CancelledAt      *time.Time         `json:"cancelled_at,omitempty"`
	DeactivationNote string             `json:"deactivation_reason,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Entitled reports whether the subscription grants access at now.
// Existence of the record alone never entitles.
func (s *Subscription) Entitled(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.Status == SubActive && now.Before(s.EndDate)
}

// Wallet holds settled funds and funds still in flight.
type Wallet struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	Balance        decimal.Decimal `json:"balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// WalletMutation is a signed change to a wallet's two counters.
type WalletMutation struct {
	BalanceDelta decimal.Decimal
	PendingDelta decimal.Decimal
}

// IsZero reports whether applying m would change nothing.
func (m WalletMutation) IsZero() bool {
	return m.BalanceDelta.IsZero() && m.PendingDelta.IsZero()
}

// Apply returns the wallet after m, clamping both counters at zero.
func (w Wallet) Apply(m WalletMutation) Wallet {
	w.Balance = decimal.Max(decimal.Zero, w.Balance.Add(m.BalanceDelta))
	w.PendingBalance = decimal.Max(decimal.Zero, w.PendingBalance.Add(m.PendingDelta))
	return w
}

// WalletEntry is one applied wallet mutation. (ExternalID, Kind) is unique,
// so the same callback can never move the same wallet twice.
type WalletEntry struct {
	ExternalID   string          `json:"external_id"`
	WalletID     string          `json:"wallet_id"`
	Kind         string          `json:"kind"`
	BalanceDelta decimal.Decimal `json:"balance_delta"`
	PendingDelta decimal.Decimal `json:"pending_delta"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Ledger outcomes recorded on IdempotencyRecord.
const (
	OutcomeApplied      = "applied"
	OutcomeNotFound     = "not_found"
	OutcomeIntermediate = "intermediate"
	OutcomeReleased     = "released"
)

// IdempotencyRecord is the audit row for a callback identifier. Only a
// Terminal record blocks later deliveries.
type IdempotencyRecord struct {
	ExternalID    string          `json:"external_id"`
	Status        CallbackStatus  `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Correspondent string          `json:"correspondent"`
	Terminal      bool            `json:"terminal"`
	Outcome       string          `json:"outcome"`
	Payload       json.RawMessage `json:"payload"`
	ProcessedAt   time.Time       `json:"processed_at"`
}

// Side effects that may fail after a transaction has gone terminal.
const (
	EffectActivation = "subscription_activation"
	EffectWallet     = "wallet_reconciliation"
)

// SideEffectAlert is queued when a side effect fails so a reconciliation
// worker can retry it out of band.
type SideEffectAlert struct {
	Effect        string          `json:"effect"`
	ExternalID    string          `json:"external_id"`
	TransactionID string          `json:"transaction_id"`
	OwnerID       string          `json:"owner_id"`
	Class         TransitionClass `json:"class"`
	Event         CallbackEvent   `json:"event"`
	Reason        string          `json:"reason"`
	Attempts      int             `json:"attempts"`
	RaisedAt      time.Time       `json:"raised_at"`
}
