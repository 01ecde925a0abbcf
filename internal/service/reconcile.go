package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcome is how a callback was handled, independent of its status class.
type Outcome string

const (
	OutcomeProcessed    Outcome = "processed"
	OutcomeReplayed     Outcome = "replayed"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeIntermediate Outcome = "intermediate"
)

// Result describes a reconciled callback. SideEffectErr is informational:
// the callback itself succeeded.
type Result struct {
	Outcome       Outcome
	Class         domain.TransitionClass
	ExternalID    string
	TransactionID string
	SideEffectErr error
}

// Engine routes callbacks to their state transitions and side effects.
type Engine struct {
	ledger    Ledger
	txns      TransactionStore
	activator *Activator
	wallets   *WalletReconciler
	alerts    AlertSink
	logger    *zap.Logger
	now       func() time.Time
}

func NewEngine(ledger Ledger, txns TransactionStore, activator *Activator, wallets *WalletReconciler, alerts AlertSink, logger *zap.Logger) *Engine {
	return &Engine{
		ledger:    ledger,
		txns:      txns,
		activator: activator,
		wallets:   wallets,
		alerts:    alerts,
		logger:    logger,
		now:       time.Now,
	}
}

// target is the transaction a callback applies to. create is set for a
// refund callback whose refund transaction does not exist yet.
type target struct {
	txn    *domain.Transaction
	create bool
}

// Process reconciles one validated callback. A non-nil error means the
// gateway should retry; every business outcome comes back in Result.
func (e *Engine) Process(ctx context.Context, ev *domain.CallbackEvent) (*Result, error) {
	class, err := ev.Status.Class()
	if err != nil {
		return nil, err
	}
	log := e.logger.With(
		zap.String("external_id", ev.ExternalID),
		zap.String("status", string(ev.Status)),
		zap.String("class", string(class)),
	)
	res := &Result{Class: class, ExternalID: ev.ExternalID}

	processed, err := e.ledger.IsProcessed(ctx, ev.ExternalID)
	if err != nil {
		// Fail open; the claim below and the store's terminal guard still
		// stop a second business effect.
		ledgerFailOpen.Inc()
		log.Warn("Idempotency lookup failed, processing anyway", zap.Error(err))
	} else if processed {
		log.Info("Callback already processed")
		return e.finish(res, OutcomeReplayed), nil
	}

	tgt, err := e.resolve(ctx, ev)
	if errors.Is(err, domain.ErrTransactionNotFound) {
		if _, cerr := e.ledger.Claim(ctx, ev.Record(true, domain.OutcomeNotFound, e.now())); cerr != nil {
			log.Error("Failed to record unknown callback", zap.Error(cerr))
		}
		log.Warn("Transaction not found for callback")
		return e.finish(res, OutcomeNotFound), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve transaction %s: %w", ev.ExternalID, err)
	}
	res.TransactionID = tgt.txn.ID
	log = log.With(zap.String("transaction_id", tgt.txn.ID), zap.String("type", string(tgt.txn.Type)))

	if class == domain.ClassIntermediate {
		return e.observe(ctx, ev, tgt, res, log)
	}
	return e.settle(ctx, ev, tgt, class, res, log)
}

func (e *Engine) resolve(ctx context.Context, ev *domain.CallbackEvent) (target, error) {
	txn, err := e.txns.FindTransaction(ctx, ev.ExternalID)
	if err == nil {
		return target{txn: txn}, nil
	}
	if !errors.Is(err, domain.ErrTransactionNotFound) || ev.Kind != domain.KindRefund || ev.DepositID == "" {
		return target{}, err
	}

	original, err := e.txns.FindTransaction(ctx, ev.DepositID)
	if err != nil {
		return target{}, err
	}
	return target{txn: e.refundFor(original, ev), create: true}, nil
}

// refundFor builds the ledger-style refund transaction for a deposit.
func (e *Engine) refundFor(original *domain.Transaction, ev *domain.CallbackEvent) *domain.Transaction {
	amount := ev.Amount
	if !amount.IsPositive() {
		amount = original.Amount
	}
	currency := ev.Currency
	if currency == "" {
		currency = original.Currency
	}
	now := e.now().UTC()
	return &domain.Transaction{
		ID:            ev.ExternalID,
		ReferenceID:   original.ID,
		Type:          domain.TypeRefund,
		OwnerID:       original.OwnerID,
		WalletID:      original.WalletID,
		Amount:        amount,
		Currency:      currency,
		Status:        domain.TxInitiated,
		PaymentMethod: original.PaymentMethod,
		Description:   "Refund for deposit " + original.ID,
		Metadata:      map[string]any{"original_deposit_id": original.ID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (e *Engine) observe(ctx context.Context, ev *domain.CallbackEvent, tgt target, res *Result, log *zap.Logger) (*Result, error) {
	if !tgt.create {
		meta := map[string]any{
			"pawapay_status":            string(ev.Status),
			"last_callback_received_at": e.now().UTC().Format(time.RFC3339),
		}
		if ev.Correspondent != "" {
			meta["pawapay_correspondent"] = ev.Correspondent
		}
		if err := e.txns.MergeMetadata(ctx, tgt.txn.ID, meta); err != nil {
			return nil, fmt.Errorf("refresh metadata for %s: %w", tgt.txn.ID, err)
		}
	}
	if err := e.ledger.Observe(ctx, ev.Record(false, domain.OutcomeIntermediate, e.now())); err != nil {
		log.Warn("Failed to record intermediate callback", zap.Error(err))
	}
	log.Info("Intermediate callback recorded")
	return e.finish(res, OutcomeIntermediate), nil
}

func (e *Engine) settle(ctx context.Context, ev *domain.CallbackEvent, tgt target, class domain.TransitionClass, res *Result, log *zap.Logger) (*Result, error) {
	won, err := e.ledger.Claim(ctx, ev.Record(true, domain.OutcomeApplied, e.now()))
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", ev.ExternalID, err)
	}
	if !won {
		log.Info("Concurrent delivery already claimed callback")
		return e.finish(res, OutcomeReplayed), nil
	}

	upd := e.transitionUpdate(ev, class)
	txn := tgt.txn
	applied, err := e.transition(ctx, tgt, upd)
	if err != nil {
		if rerr := e.ledger.Release(ctx, ev.ExternalID); rerr != nil {
			log.Error("Failed to release claim after transition error", zap.Error(rerr))
		}
		return nil, fmt.Errorf("transition %s to %s: %w", txn.ID, upd.Status, err)
	}
	if !applied {
		log.Warn("Transaction already terminal, ignoring callback")
		return e.finish(res, OutcomeReplayed), nil
	}
	txn.Status = upd.Status

	log.Info("Transaction settled")
	res.SideEffectErr = e.applySideEffects(ctx, ev, txn, class)
	return e.finish(res, OutcomeProcessed), nil
}

func (e *Engine) transition(ctx context.Context, tgt target, upd domain.TransactionUpdate) (bool, error) {
	if !tgt.create {
		return e.txns.ApplyTransition(ctx, tgt.txn.ID, upd)
	}

	refund := *tgt.txn
	refund.Status = upd.Status
	refund.FailureReason = upd.FailureReason
	refund.PaymentReference = upd.PaymentReference
	completedAt := upd.CompletedAt
	refund.CompletedAt = &completedAt
	for k, v := range upd.Metadata {
		refund.Metadata[k] = v
	}
	created, err := e.txns.CreateTransaction(ctx, &refund)
	if err != nil || created {
		return created, err
	}
	// Created by a delivery that lost its claim; settle the existing row.
	return e.txns.ApplyTransition(ctx, refund.ID, upd)
}

func (e *Engine) transitionUpdate(ev *domain.CallbackEvent, class domain.TransitionClass) domain.TransactionUpdate {
	now := e.now().UTC()
	meta := map[string]any{
		"pawapay_correspondent": ev.Correspondent,
		"pawapay_status":        string(ev.Status),
		"callback_received_at":  now.Format(time.RFC3339),
	}
	upd := domain.TransactionUpdate{CompletedAt: now, Metadata: meta}

	if class == domain.ClassCompleted {
		upd.Status = domain.TxCompleted
		upd.PaymentReference = ev.ExternalID
		return upd
	}

	upd.Status = domain.TxFailed
	upd.FailureReason = ev.FailureReason
	if upd.FailureReason == "" {
		upd.FailureReason = "Payment failed"
	}
	meta["pawapay_failure_reason"] = ev.FailureReason
	return upd
}

func (e *Engine) applySideEffects(ctx context.Context, ev *domain.CallbackEvent, txn *domain.Transaction, class domain.TransitionClass) error {
	effect, err := e.sideEffect(ctx, ev, txn, class)
	if err == nil {
		return nil
	}
	return e.raise(ctx, effect, ev, txn, class, err)
}

// sideEffect runs the consequence of txn reaching class and names the
// effect it attempted.
func (e *Engine) sideEffect(ctx context.Context, ev *domain.CallbackEvent, txn *domain.Transaction, class domain.TransitionClass) (string, error) {
	switch txn.Type {
	case domain.TypeSubscriptionPayment:
		if class != domain.ClassCompleted {
			return "", nil
		}
		_, err := e.activator.Activate(ctx, ActivationInput{
			OwnerID:          txn.OwnerID,
			PaymentReference: ev.ExternalID,
			PaymentMethod:    domain.PaymentMethodFor(ev.Correspondent),
			Amount:           txn.Amount,
		})
		return domain.EffectActivation, err
	case domain.TypeDeposit, domain.TypePayout, domain.TypeRefund:
		_, err := e.wallets.Settle(ctx, txn, class, settledAmount(ev, txn))
		return domain.EffectWallet, err
	default:
		e.logger.Warn("No side effect for transaction type",
			zap.String("transaction_id", txn.ID),
			zap.String("type", string(txn.Type)),
		)
		return "", nil
	}
}

// settledAmount prefers the amount the gateway reports as moved.
func settledAmount(ev *domain.CallbackEvent, txn *domain.Transaction) decimal.Decimal {
	if ev.Amount.IsPositive() {
		return ev.Amount
	}
	return txn.Amount
}

func (e *Engine) raise(ctx context.Context, effect string, ev *domain.CallbackEvent, txn *domain.Transaction, class domain.TransitionClass, cause error) error {
	sideErr := &domain.SideEffectError{Effect: effect, ExternalID: ev.ExternalID, Err: cause}
	sideEffectFailures.WithLabelValues(effect).Inc()
	e.logger.Error("Side effect failed after terminal transition",
		zap.String("effect", effect),
		zap.String("external_id", ev.ExternalID),
		zap.String("transaction_id", txn.ID),
		zap.Error(cause),
	)

	if e.alerts == nil {
		return sideErr
	}
	alert := &domain.SideEffectAlert{
		Effect:        effect,
		ExternalID:    ev.ExternalID,
		TransactionID: txn.ID,
		OwnerID:       txn.OwnerID,
		Class:         class,
		Event:         *ev,
		Reason:        cause.Error(),
		RaisedAt:      e.now().UTC(),
	}
	if err := e.alerts.Raise(ctx, alert); err != nil {
		e.logger.Error("Failed to enqueue side effect alert",
			zap.String("external_id", ev.ExternalID),
			zap.Error(err),
		)
	}
	return sideErr
}

// Retry re-runs a failed side effect from an alert. Activation is an upsert
// and wallet entries are deduplicated per callback.
func (e *Engine) Retry(ctx context.Context, alert *domain.SideEffectAlert) error {
	txn, err := e.txns.FindTransaction(ctx, alert.TransactionID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", alert.TransactionID, err)
	}
	if !txn.Status.Terminal() {
		return fmt.Errorf("transaction %s is %s, not terminal", txn.ID, txn.Status)
	}
	ev := alert.Event
	if _, err := e.sideEffect(ctx, &ev, txn, alert.Class); err != nil {
		return &domain.SideEffectError{Effect: alert.Effect, ExternalID: alert.ExternalID, Err: err}
	}
	e.logger.Info("Side effect retried successfully",
		zap.String("effect", alert.Effect),
		zap.String("external_id", alert.ExternalID),
		zap.Int("attempts", alert.Attempts+1),
	)
	return nil
}

func (e *Engine) finish(res *Result, outcome Outcome) *Result {
	res.Outcome = outcome
	callbacksTotal.WithLabelValues(string(res.Class), string(outcome)).Inc()
	return res
}
