package service

import (
	"context"
	"fmt"

	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletReconciler turns terminal callbacks into wallet entries.
type WalletReconciler struct {
	wallets WalletStore
	logger  *zap.Logger
}

func NewWalletReconciler(wallets WalletStore, logger *zap.Logger) *WalletReconciler {
	return &WalletReconciler{wallets: wallets, logger: logger}
}

// walletMutation is the entry kind and deltas for a transaction type and
// transition class. ok is false when the pair moves no funds.
func walletMutation(t domain.TransactionType, class domain.TransitionClass, amount decimal.Decimal) (kind string, m domain.WalletMutation, ok bool) {
	switch {
	case t == domain.TypeDeposit && class == domain.ClassCompleted:
		return "deposit_completed", domain.WalletMutation{BalanceDelta: amount, PendingDelta: amount.Neg()}, true
	case t == domain.TypeDeposit && class == domain.ClassFailed:
		return "deposit_failed", domain.WalletMutation{PendingDelta: amount.Neg()}, true
	case t == domain.TypePayout && class == domain.ClassFailed:
		// the payout never left, so the reserved funds come back
		return "payout_failed", domain.WalletMutation{BalanceDelta: amount}, true
	case t == domain.TypeRefund && class == domain.ClassCompleted:
		return "refund_completed", domain.WalletMutation{BalanceDelta: amount.Neg()}, true
	default:
		return "", domain.WalletMutation{}, false
	}
}

// Settle applies the wallet consequence of txn reaching class. It returns
// the wallet after the mutation, or nil when nothing moved.
func (r *WalletReconciler) Settle(ctx context.Context, txn *domain.Transaction, class domain.TransitionClass, amount decimal.Decimal) (*domain.Wallet, error) {
	kind, m, ok := walletMutation(txn.Type, class, amount)
	if !ok || m.IsZero() {
		r.logger.Debug("No wallet movement",
			zap.String("transaction_id", txn.ID),
			zap.String("type", string(txn.Type)),
			zap.String("class", string(class)),
		)
		return nil, nil
	}
	if txn.WalletID == "" {
		return nil, fmt.Errorf("transaction %s: %w", txn.ID, domain.ErrWalletNotFound)
	}

	entry := &domain.WalletEntry{
		ExternalID:   txn.ID,
		WalletID:     txn.WalletID,
		Kind:         kind,
		BalanceDelta: m.BalanceDelta,
		PendingDelta: m.PendingDelta,
	}
	wallet, applied, err := r.wallets.ApplyWalletEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("apply %s to wallet %s: %w", kind, txn.WalletID, err)
	}

	if !applied {
		walletMutations.WithLabelValues(kind, "duplicate").Inc()
		r.logger.Info("Wallet entry already applied",
			zap.String("transaction_id", txn.ID),
			zap.String("wallet_id", txn.WalletID),
			zap.String("kind", kind),
		)
		return wallet, nil
	}

	walletMutations.WithLabelValues(kind, "applied").Inc()
	r.logger.Info("Wallet reconciled",
		zap.String("transaction_id", txn.ID),
		zap.String("wallet_id", txn.WalletID),
		zap.String("kind", kind),
		zap.String("balance", wallet.Balance.String()),
		zap.String("pending_balance", wallet.PendingBalance.String()),
	)
	return wallet, nil
}
