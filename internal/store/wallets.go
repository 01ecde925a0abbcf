package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/punchamoorthee/callbackops/internal/domain"
)

// ApplyWalletEntry records entry and applies its deltas in one transaction.
// A second entry with the same (external_id, kind) changes nothing.
func (s *Store) ApplyWalletEntry(ctx context.Context, entry *domain.WalletEntry) (*domain.Wallet, bool, error) {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, false, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the wallet first so entry insert and balance update are serialized
	// per wallet.
	w, err := scanWallet(tx.QueryRow(ctx, `
		SELECT id, owner_id, balance, pending_balance, updated_at
		FROM wallets WHERE id = $1 FOR UPDATE`, entry.WalletID))
	if err != nil {
		return nil, false, notFound(err, domain.ErrWalletNotFound)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO wallet_entries (external_id, kind, wallet_id, balance_delta, pending_delta)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id, kind) DO NOTHING`,
		entry.ExternalID, entry.Kind, entry.WalletID, entry.BalanceDelta.String(), entry.PendingDelta.String(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("wallet entry insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return w, false, nil
	}

	next := w.Apply(domain.WalletMutation{BalanceDelta: entry.BalanceDelta, PendingDelta: entry.PendingDelta})
	err = tx.QueryRow(ctx, `
		UPDATE wallets SET balance = $2, pending_balance = $3, updated_at = now()
		WHERE id = $1 RETURNING updated_at`,
		next.ID, next.Balance.String(), next.PendingBalance.String(),
	).Scan(&next.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("wallet update failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("tx commit failed: %w", err)
	}
	return &next, true, nil
}

func (s *Store) GetWallet(ctx context.Context, id string) (*domain.Wallet, error) {
	w, err := scanWallet(s.Db.QueryRow(ctx,
		"SELECT id, owner_id, balance, pending_balance, updated_at FROM wallets WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, domain.ErrWalletNotFound)
	}
	return w, nil
}

// CreateWallet opens an empty wallet for ownerID. It reports false when the
// wallet already exists.
func (s *Store) CreateWallet(ctx context.Context, id, ownerID string) (bool, error) {
	_, err := s.Db.Exec(ctx, "INSERT INTO wallets (id, owner_id) VALUES ($1, $2)", id, ownerID)
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("wallet insert failed: %w", err)
	}
	return true, nil
}

// GetWalletEntries lists the entries applied to a wallet, newest first.
func (s *Store) GetWalletEntries(ctx context.Context, walletID string) ([]domain.WalletEntry, error) {
	rows, err := s.Db.Query(ctx, `
		SELECT external_id, kind, wallet_id, balance_delta, pending_delta, created_at
		FROM wallet_entries WHERE wallet_id = $1 ORDER BY created_at DESC`,
		walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.WalletEntry
	for rows.Next() {
		var e domain.WalletEntry
		if err := rows.Scan(&e.ExternalID, &e.Kind, &e.WalletID, &e.BalanceDelta, &e.PendingDelta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var w domain.Wallet
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Balance, &w.PendingBalance, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
