package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbackops_callbacks_total",
		Help: "Callbacks reconciled, labeled by transition class and outcome",
	}, []string{"class", "outcome"})

	sideEffectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbackops_side_effect_failures_total",
		Help: "Side effects that failed after the transaction went terminal",
	}, []string{"effect"})

	ledgerFailOpen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callbackops_ledger_fail_open_total",
		Help: "Idempotency lookups that errored and were treated as unprocessed",
	})

	walletMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbackops_wallet_mutations_total",
		Help: "Wallet entries by kind and whether they were applied or deduplicated",
	}, []string{"kind", "result"})
)
