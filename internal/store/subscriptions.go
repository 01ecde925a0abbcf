package store

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
)

// UpsertSubscription writes the activation fields and keeps everything else
// on the row. Reactivation clears any earlier cancellation.
func (s *Store) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	_, err := s.Db.Exec(ctx, `
		INSERT INTO subscriptions (owner_id, type, status, start_date, end_date, amount, payment_method, payment_reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_id) DO UPDATE SET
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			amount = EXCLUDED.amount,
			payment_method = EXCLUDED.payment_method,
			payment_reference = EXCLUDED.payment_reference,
			cancelled_at = NULL,
			deactivation_reason = '',
			updated_at = now()`,
		sub.OwnerID, sub.Type, string(sub.Status), sub.StartDate, sub.EndDate, sub.Amount.String(),
		sub.PaymentMethod, sub.PaymentReference,
	)
	if err != nil {
		return fmt.Errorf("subscription upsert failed: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, ownerID string) (*domain.Subscription, error) {
	var sub domain.Subscription
	var status string
	err := s.Db.QueryRow(ctx, `
		SELECT owner_id, type, status, start_date, end_date, amount, payment_method, payment_reference,
			cancelled_at, deactivation_reason, created_at, updated_at
		FROM subscriptions WHERE owner_id = $1`,
		ownerID,
	).Scan(&sub.OwnerID, &sub.Type, &status, &sub.StartDate, &sub.EndDate, &sub.Amount, &sub.PaymentMethod,
		&sub.PaymentReference, &sub.CancelledAt, &sub.DeactivationNote, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, notFound(err, domain.ErrSubscriptionNotFound)
	}
	sub.Status = domain.SubscriptionStatus(status)
	return &sub, nil
}

// DeactivateSubscription sets a non-entitling status. cancelled_at is only
// stamped for cancellations.
func (s *Store) DeactivateSubscription(ctx context.Context, ownerID string, status domain.SubscriptionStatus, reason string, at time.Time) error {
	tag, err := s.Db.Exec(ctx, `
		UPDATE subscriptions SET
			status = $2,
			deactivation_reason = $3,
			cancelled_at = CASE WHEN $2::text = 'cancelled' THEN $4::timestamptz ELSE cancelled_at END,
			updated_at = $4
		WHERE owner_id = $1`,
		ownerID, string(status), reason, at,
	)
	if err != nil {
		return fmt.Errorf("subscription deactivation failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}
