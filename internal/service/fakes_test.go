package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/punchamoorthee/callbackops/internal/domain"
)

// memLedger mirrors the claim semantics of the Postgres ledger.
type memLedger struct {
	mu         sync.Mutex
	records    map[string]domain.IdempotencyRecord
	lookupErr  error
	claimErr   error
	releases   int
	claimCalls int
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[string]domain.IdempotencyRecord)}
}

func (l *memLedger) IsProcessed(_ context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lookupErr != nil {
		return false, l.lookupErr
	}
	rec, ok := l.records[id]
	return ok && rec.Terminal, nil
}

func (l *memLedger) Claim(_ context.Context, rec *domain.IdempotencyRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claimCalls++
	if l.claimErr != nil {
		return false, l.claimErr
	}
	if cur, ok := l.records[rec.ExternalID]; ok && cur.Terminal {
		return false, nil
	}
	l.records[rec.ExternalID] = *rec
	return true, nil
}

func (l *memLedger) Observe(_ context.Context, rec *domain.IdempotencyRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.records[rec.ExternalID]; ok && cur.Terminal {
		return nil
	}
	l.records[rec.ExternalID] = *rec
	return nil
}

func (l *memLedger) Release(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	if rec, ok := l.records[id]; ok && rec.Terminal {
		rec.Terminal = false
		rec.Outcome = domain.OutcomeReleased
		l.records[id] = rec
	}
	return nil
}

func (l *memLedger) record(id string) (domain.IdempotencyRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	return rec, ok
}

type memTransactions struct {
	mu          sync.Mutex
	txns        map[string]*domain.Transaction
	transitions int
	updateErr   error
	findErr     error
}

func newMemTransactions(txns ...*domain.Transaction) *memTransactions {
	s := &memTransactions{txns: make(map[string]*domain.Transaction)}
	for _, t := range txns {
		if t.Metadata == nil {
			t.Metadata = map[string]any{}
		}
		s.txns[t.ID] = t
	}
	return s
}

func (s *memTransactions) FindTransaction(_ context.Context, ref string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	if t, ok := s.txns[ref]; ok {
		cp := *t
		return &cp, nil
	}
	for _, t := range s.txns {
		if t.ReferenceID == ref {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (s *memTransactions) ApplyTransition(_ context.Context, id string, upd domain.TransactionUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return false, s.updateErr
	}
	t, ok := s.txns[id]
	if !ok {
		return false, domain.ErrTransactionNotFound
	}
	if t.Status.Terminal() {
		return false, nil
	}
	s.transitions++
	t.Status = upd.Status
	t.PaymentReference = upd.PaymentReference
	t.FailureReason = upd.FailureReason
	completed := upd.CompletedAt
	t.CompletedAt = &completed
	for k, v := range upd.Metadata {
		t.Metadata[k] = v
	}
	return true, nil
}

func (s *memTransactions) MergeMetadata(_ context.Context, id string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if t.Status.Terminal() {
		return nil
	}
	for k, v := range metadata {
		t.Metadata[k] = v
	}
	return nil
}

func (s *memTransactions) CreateTransaction(_ context.Context, t *domain.Transaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return false, s.updateErr
	}
	if _, ok := s.txns[t.ID]; ok {
		return false, nil
	}
	cp := *t
	s.txns[t.ID] = &cp
	s.transitions++
	return true, nil
}

func (s *memTransactions) get(id string) *domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

type memSubscriptions struct {
	mu      sync.Mutex
	subs    map[string]*domain.Subscription
	upserts int
	err     error
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{subs: make(map[string]*domain.Subscription)}
}

func (s *memSubscriptions) UpsertSubscription(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts++
	cp := *sub
	if cur, ok := s.subs[sub.OwnerID]; ok {
		cp.CreatedAt = cur.CreatedAt
	}
	cp.CancelledAt = nil
	s.subs[sub.OwnerID] = &cp
	return nil
}

func (s *memSubscriptions) GetSubscription(_ context.Context, owner string) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[owner]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *memSubscriptions) DeactivateSubscription(_ context.Context, owner string, status domain.SubscriptionStatus, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[owner]
	if !ok {
		return domain.ErrSubscriptionNotFound
	}
	sub.Status = status
	sub.DeactivationNote = reason
	if status == domain.SubCancelled {
		sub.CancelledAt = &at
	}
	return nil
}

type memWallets struct {
	mu      sync.Mutex
	wallets map[string]*domain.Wallet
	entries map[string]bool
	err     error
}

func newMemWallets(wallets ...*domain.Wallet) *memWallets {
	s := &memWallets{wallets: make(map[string]*domain.Wallet), entries: make(map[string]bool)}
	for _, w := range wallets {
		s.wallets[w.ID] = w
	}
	return s
}

func (s *memWallets) ApplyWalletEntry(_ context.Context, e *domain.WalletEntry) (*domain.Wallet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	w, ok := s.wallets[e.WalletID]
	if !ok {
		return nil, false, domain.ErrWalletNotFound
	}
	key := e.ExternalID + "/" + e.Kind
	if s.entries[key] {
		cp := *w
		return &cp, false, nil
	}
	s.entries[key] = true
	next := w.Apply(domain.WalletMutation{BalanceDelta: e.BalanceDelta, PendingDelta: e.PendingDelta})
	*w = next
	cp := next
	return &cp, true, nil
}

func (s *memWallets) GetWallet(_ context.Context, id string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w
	return &cp, nil
}

type memAlerts struct {
	mu     sync.Mutex
	alerts []domain.SideEffectAlert
}

func (a *memAlerts) Raise(_ context.Context, alert *domain.SideEffectAlert) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, *alert)
	return nil
}

func (a *memAlerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

var errStoreDown = errors.New("store unavailable")
