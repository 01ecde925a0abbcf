package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/callbackops/internal/domain"
)

const transactionColumns = `id, COALESCE(reference_id, ''), type, owner_id, wallet_id, amount, currency, status,
	payment_method, payment_reference, failure_reason, description, metadata, completed_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var txType, status string
	err := row.Scan(&t.ID, &t.ReferenceID, &txType, &t.OwnerID, &t.WalletID, &t.Amount, &t.Currency, &status,
		&t.PaymentMethod, &t.PaymentReference, &t.FailureReason, &t.Description, &t.Metadata,
		&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}

// FindTransaction looks a transaction up by id, then by reference id.
func (s *Store) FindTransaction(ctx context.Context, ref string) (*domain.Transaction, error) {
	t, err := scanTransaction(s.Db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1", ref))
	if err == nil {
		return t, nil
	}
	if err = notFound(err, domain.ErrTransactionNotFound); err != domain.ErrTransactionNotFound {
		return nil, fmt.Errorf("transaction lookup failed: %w", err)
	}

	t, err = scanTransaction(s.Db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE reference_id = $1 ORDER BY created_at LIMIT 1", ref))
	if err != nil {
		err = notFound(err, domain.ErrTransactionNotFound)
		if err == domain.ErrTransactionNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("transaction lookup by reference failed: %w", err)
	}
	return t, nil
}

// ApplyTransition moves a non-terminal transaction to a terminal status. The
// status guard lives in the WHERE clause so a terminal row is never rewritten.
func (s *Store) ApplyTransition(ctx context.Context, id string, upd domain.TransactionUpdate) (bool, error) {
	tag, err := s.Db.Exec(ctx, `
		UPDATE transactions SET
			status = $2,
			payment_reference = CASE WHEN $3::text = '' THEN payment_reference ELSE $3::text END,
			failure_reason = $4,
			completed_at = $5,
			metadata = metadata || $6::jsonb,
			updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		id, string(upd.Status), upd.PaymentReference, upd.FailureReason, upd.CompletedAt, nonNil(upd.Metadata),
	)
	if err != nil {
		return false, fmt.Errorf("transaction update failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MergeMetadata merges metadata into a non-terminal transaction.
func (s *Store) MergeMetadata(ctx context.Context, id string, metadata map[string]any) error {
	_, err := s.Db.Exec(ctx, `
		UPDATE transactions SET metadata = metadata || $2::jsonb, updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')`,
		id, nonNil(metadata),
	)
	if err != nil {
		return fmt.Errorf("transaction metadata update failed: %w", err)
	}
	return nil
}

// CreateTransaction inserts t unless a row with its id already exists.
func (s *Store) CreateTransaction(ctx context.Context, t *domain.Transaction) (bool, error) {
	var reference *string
	if t.ReferenceID != "" {
		reference = &t.ReferenceID
	}
	tag, err := s.Db.Exec(ctx, `
		INSERT INTO transactions (id, reference_id, type, owner_id, wallet_id, amount, currency, status,
			payment_method, payment_reference, failure_reason, description, metadata, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		t.ID, reference, string(t.Type), t.OwnerID, t.WalletID, t.Amount.String(), t.Currency, string(t.Status),
		t.PaymentMethod, t.PaymentReference, t.FailureReason, t.Description, nonNil(t.Metadata), t.CompletedAt,
	)
	if err != nil {
		return false, fmt.Errorf("transaction insert failed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetTransaction returns a transaction by id only.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	t, err := scanTransaction(s.Db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, domain.ErrTransactionNotFound)
	}
	return t, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
