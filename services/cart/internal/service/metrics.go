package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outcomes_total",
			Help: "Checkout attempts that reached a terminal state, by state and cause",
		},
		[]string{"state", "cause"},
	)

	paymentRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_payment_retries_total",
			Help: "Retried checkout saga steps, by step",
		},
		[]string{"step"},
	)

	reconciliationNeeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_reconciliation_total",
			Help: "Checkout attempts flagged for manual reconciliation",
		},
	)

	attemptsResumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_attempts_resumed_total",
			Help: "Stale checkout attempts re-driven by the resumer",
		},
	)

	attemptsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkout_attempts_purged_total",
			Help: "Terminal checkout attempts removed by the retention sweeper",
		},
	)
)
