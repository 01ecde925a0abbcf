package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ActivationInput describes a paid subscription to (re)activate.
type ActivationInput struct {
	OwnerID          string
	PaymentReference string
	PaymentMethod    string
	Amount           decimal.Decimal
}

// Activator is the only writer of an active subscription.
type Activator struct {
	subs          SubscriptionStore
	planType      string
	defaultAmount decimal.Decimal
	logger        *zap.Logger
	now           func() time.Time
}

func NewActivator(subs SubscriptionStore, planType string, defaultAmount decimal.Decimal, logger *zap.Logger) *Activator {
	if planType == "" {
		planType = "smeDirectory"
	}
	return &Activator{
		subs:          subs,
		planType:      planType,
		defaultAmount: defaultAmount,
		logger:        logger,
		now:           time.Now,
	}
}

// Activate writes an active subscription valid for one year from now.
// Fields not set here are preserved by the store's merge upsert.
func (a *Activator) Activate(ctx context.Context, in ActivationInput) (*domain.Subscription, error) {
	owner := strings.TrimSpace(in.OwnerID)
	ref := strings.TrimSpace(in.PaymentReference)
	if owner == "" || ref == "" {
		return nil, fmt.Errorf("%w: owner and payment reference are required", domain.ErrValidation)
	}

	amount := in.Amount
	if !amount.IsPositive() {
		amount = a.defaultAmount
	}
	method := strings.TrimSpace(in.PaymentMethod)
	if method == "" {
		method = "Manual Activation"
	}

	start := a.now().UTC()
	sub := &domain.Subscription{
		OwnerID:          owner,
		Type:             a.planType,
		Status:           domain.SubActive,
		StartDate:        start,
		EndDate:          start.AddDate(1, 0, 0),
		Amount:           amount,
		PaymentMethod:    method,
		PaymentReference: ref,
	}
	if err := a.subs.UpsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription for %s: %w", owner, err)
	}

	a.logger.Info("Premium subscription activated",
		zap.String("owner_id", owner),
		zap.String("payment_reference", ref),
		zap.String("payment_method", method),
		zap.Time("valid_until", sub.EndDate),
	)
	return sub, nil
}

// Deactivate locks a subscription again. Only expired and cancelled are
// accepted; anything else defaults to expired.
func (a *Activator) Deactivate(ctx context.Context, ownerID string, status domain.SubscriptionStatus, reason string) error {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return fmt.Errorf("%w: owner is required", domain.ErrValidation)
	}
	if status != domain.SubCancelled {
		status = domain.SubExpired
	}
	if err := a.subs.DeactivateSubscription(ctx, owner, status, strings.TrimSpace(reason), a.now().UTC()); err != nil {
		return err
	}
	a.logger.Info("Subscription deactivated",
		zap.String("owner_id", owner),
		zap.String("status", string(status)),
		zap.String("reason", reason),
	)
	return nil
}

// Lookup returns the owner's subscription and whether it entitles access now.
func (a *Activator) Lookup(ctx context.Context, ownerID string) (*domain.Subscription, bool, error) {
	sub, err := a.subs.GetSubscription(ctx, ownerID)
	if err != nil {
		return nil, false, err
	}
	return sub, sub.Entitled(a.now()), nil
}
