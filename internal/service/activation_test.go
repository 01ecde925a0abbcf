package service

import (
	"context"
	"testing"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestActivator(subs SubscriptionStore) *Activator {
	a := NewActivator(subs, "", decimal.NewFromInt(50000), zap.NewNop())
	a.now = func() time.Time { return testNow }
	return a
}

func TestActivate_Defaults(t *testing.T) {
	subs := newMemSubscriptions()
	a := newTestActivator(subs)

	sub, err := a.Activate(context.Background(), ActivationInput{OwnerID: " u1 ", PaymentReference: "dep-1"})
	require.NoError(t, err)

	assert.Equal(t, "u1", sub.OwnerID)
	assert.Equal(t, "smeDirectory", sub.Type)
	assert.Equal(t, "Manual Activation", sub.PaymentMethod)
	assert.True(t, sub.Amount.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, testNow, sub.StartDate)
	assert.Equal(t, testNow.AddDate(1, 0, 0), sub.EndDate)
}

func TestActivate_RequiresOwnerAndReference(t *testing.T) {
	a := newTestActivator(newMemSubscriptions())

	_, err := a.Activate(context.Background(), ActivationInput{OwnerID: "u1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = a.Activate(context.Background(), ActivationInput{PaymentReference: "dep-1"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestActivate_ReactivationClearsCancellation(t *testing.T) {
	subs := newMemSubscriptions()
	a := newTestActivator(subs)
	ctx := context.Background()

	_, err := a.Activate(ctx, ActivationInput{OwnerID: "u1", PaymentReference: "dep-1"})
	require.NoError(t, err)
	require.NoError(t, a.Deactivate(ctx, "u1", domain.SubCancelled, "chargeback"))

	sub, entitled, err := a.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, entitled)
	require.NotNil(t, sub.CancelledAt)

	_, err = a.Activate(ctx, ActivationInput{OwnerID: "u1", PaymentReference: "dep-2"})
	require.NoError(t, err)
	sub, entitled, err = a.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, entitled)
	assert.Nil(t, sub.CancelledAt)
	assert.Equal(t, "dep-2", sub.PaymentReference)
}

func TestDeactivate_DefaultsToExpired(t *testing.T) {
	subs := newMemSubscriptions()
	a := newTestActivator(subs)
	ctx := context.Background()

	_, err := a.Activate(ctx, ActivationInput{OwnerID: "u1", PaymentReference: "dep-1"})
	require.NoError(t, err)
	require.NoError(t, a.Deactivate(ctx, "u1", domain.SubActive, ""))

	sub, entitled, err := a.Lookup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.SubExpired, sub.Status)
	assert.False(t, entitled)
}

func TestDeactivate_UnknownOwner(t *testing.T) {
	a := newTestActivator(newMemSubscriptions())

	err := a.Deactivate(context.Background(), "nobody", domain.SubExpired, "")
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestLookup_Missing(t *testing.T) {
	a := newTestActivator(newMemSubscriptions())

	_, entitled, err := a.Lookup(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
	assert.False(t, entitled)
}
