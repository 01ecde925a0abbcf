package models

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// CallbackPayload is the body the gateway posts. Exactly one of the id
// fields is expected, though refunds also carry the original depositId.
type CallbackPayload struct {
	ID                string          `json:"id"`
	DepositID         string          `json:"depositId"`
	PayoutID          string          `json:"payoutId"`
	RefundID          string          `json:"refundId"`
	Status            string          `json:"status"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Correspondent     string          `json:"correspondent"`
	FailureReason     json.RawMessage `json:"failureReason,omitempty"`
	Reason            string          `json:"reason,omitempty"`
	CustomerTimestamp string          `json:"customerTimestamp,omitempty"`
	Created           string          `json:"created,omitempty"`
}

// WebhookResponse is returned to the gateway for every callback.
type WebhookResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	DepositID string `json:"depositId,omitempty"`
	Status    string `json:"status,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ActivationRequest is the admin payload for a manual activation.
type ActivationRequest struct {
	UserID        string `json:"userId" validate:"required,max=128"`
	DepositID     string `json:"depositId" validate:"required,max=128"`
	PaymentMethod string `json:"paymentMethod,omitempty" validate:"max=64"`
}

func (r *ActivationRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.DepositID = strings.TrimSpace(r.DepositID)
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	return validate.Struct(r)
}

// ActivationResponse echoes the activated subscription.
type ActivationResponse struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	UserID       string               `json:"userId"`
	DepositID    string               `json:"depositId"`
	Subscription *domain.Subscription `json:"subscription,omitempty"`
}

// DeactivationRequest is the admin payload for locking a subscription again.
type DeactivationRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Status string `json:"status,omitempty" validate:"omitempty,oneof=expired cancelled"`
	Reason string `json:"reason,omitempty" validate:"max=512"`
}

// Validate normalises the request before checking it. An empty status is
// treated as expired downstream.
func (r *DeactivationRequest) Validate() error {
	r.UserID = strings.TrimSpace(r.UserID)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	return validate.Struct(r)
}

// SubscriptionView pairs a subscription with its entitlement at read time.
type SubscriptionView struct {
	Subscription *domain.Subscription `json:"subscription"`
	Entitled     bool                 `json:"entitled"`
}
