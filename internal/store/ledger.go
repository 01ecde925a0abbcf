package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/callbackops/internal/domain"
)

// IsProcessed reports whether a terminal webhook log exists for externalID.
func (s *Store) IsProcessed(ctx context.Context, externalID string) (bool, error) {
	var terminal bool
	err := s.Db.QueryRow(ctx,
		"SELECT terminal FROM webhook_logs WHERE external_id = $1",
		externalID,
	).Scan(&terminal)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("webhook log lookup failed: %w", err)
	}
	return terminal, nil
}

// Claim inserts a terminal log, or upgrades a non-terminal one. The row lock
// taken by the conflicting update serializes concurrent claimants; only the
// one whose statement returns a row has won.
func (s *Store) Claim(ctx context.Context, rec *domain.IdempotencyRecord) (bool, error) {
	var id string
	err := s.Db.QueryRow(ctx, `
		INSERT INTO webhook_logs (external_id, status, amount, currency, correspondent, terminal, outcome, payload, processed_at)
		VALUES ($1, $2, $3, $4, $5, true, $6, $7, $8)
		ON CONFLICT (external_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			correspondent = EXCLUDED.correspondent,
			terminal = true,
			outcome = EXCLUDED.outcome,
			payload = EXCLUDED.payload,
			processed_at = EXCLUDED.processed_at
		WHERE NOT webhook_logs.terminal
		RETURNING external_id`,
		rec.ExternalID, string(rec.Status), rec.Amount.String(), rec.Currency, rec.Correspondent,
		rec.Outcome, rec.Payload, rec.ProcessedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("webhook log claim failed: %w", err)
	}
	return true, nil
}

// Observe records an intermediate callback. Terminal logs are left untouched.
func (s *Store) Observe(ctx context.Context, rec *domain.IdempotencyRecord) error {
	_, err := s.Db.Exec(ctx, `
		INSERT INTO webhook_logs (external_id, status, amount, currency, correspondent, terminal, outcome, payload, processed_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7, $8)
		ON CONFLICT (external_id) DO UPDATE SET
			status = EXCLUDED.status,
			amount = EXCLUDED.amount,
			correspondent = EXCLUDED.correspondent,
			outcome = EXCLUDED.outcome,
			payload = EXCLUDED.payload,
			processed_at = EXCLUDED.processed_at
		WHERE NOT webhook_logs.terminal`,
		rec.ExternalID, string(rec.Status), rec.Amount.String(), rec.Currency, rec.Correspondent,
		rec.Outcome, rec.Payload, rec.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("webhook log observe failed: %w", err)
	}
	return nil
}

// Release downgrades a claim whose transaction update never committed, so
// the gateway's retry can claim it again. The row itself is kept.
func (s *Store) Release(ctx context.Context, externalID string) error {
	_, err := s.Db.Exec(ctx,
		"UPDATE webhook_logs SET terminal = false, outcome = $2 WHERE external_id = $1 AND terminal",
		externalID, domain.OutcomeReleased,
	)
	if err != nil {
		return fmt.Errorf("webhook log release failed: %w", err)
	}
	return nil
}

// GetWebhookLog returns the stored record for externalID.
func (s *Store) GetWebhookLog(ctx context.Context, externalID string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var status string
	err := s.Db.QueryRow(ctx, `
		SELECT external_id, status, amount, currency, correspondent, terminal, outcome, payload, processed_at
		FROM webhook_logs WHERE external_id = $1`,
		externalID,
	).Scan(&rec.ExternalID, &status, &rec.Amount, &rec.Currency, &rec.Correspondent,
		&rec.Terminal, &rec.Outcome, &rec.Payload, &rec.ProcessedAt)
	if err != nil {
		return nil, fmt.Errorf("webhook log %s: %w", externalID, err)
	}
	rec.Status = domain.CallbackStatus(status)
	return &rec, nil
}
