// Package observability defines the Prometheus metrics of the progression
// economy. Metrics are package-level and registered with the default
// registry, so the ops listener serves them through promhttp.Handler().
//
// This provides:
//   - Ledger flow counters (points credited and debited, by transaction type)
//   - Unlock counters by unlock type
//   - Achievement completion and reward delivery outcomes
//   - Optimistic-concurrency conflict retries
//   - Operation latency and outcome per engine entry point
package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/commonground/progression/internal/domain"
)

const namespace = "progression"

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// PointsCredited tracks points added to balances by transaction type.
var PointsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "points_credited_total",
	Help:      "Total points credited, by transaction type.",
}, []string{"type"})

// PointsDebited tracks points spent.
var PointsDebited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "points_debited_total",
	Help:      "Total points debited from balances.",
})

// InsufficientFunds counts debits rejected for lack of balance.
var InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "insufficient_funds_total",
	Help:      "Total debits rejected because the balance was too low.",
})

// ReconcileMismatches counts audits where the cached balance drifted
// from the ledger sum.
var ReconcileMismatches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "reconcile_mismatches_total",
	Help:      "Total audits that found balance != sum of transactions.",
})

// ─── Unlock Metrics ─────────────────────────────────────────────────────────

// Unlocks counts newly created unlock records by unlock type.
var Unlocks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "unlocks",
	Name:      "created_total",
	Help:      "Total unlock records created, by unlock type.",
}, []string{"unlock_type"})

// ─── Achievement Metrics ────────────────────────────────────────────────────

// AchievementsCompleted counts completion transitions by achievement type.
var AchievementsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "achievements",
	Name:      "completed_total",
	Help:      "Total achievement completions, by achievement type.",
}, []string{"achievement"})

// RewardDeliveries counts reward dispatch outcomes.
var RewardDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "rewards",
	Name:      "deliveries_total",
	Help:      "Total reward dispatches, by outcome (delivered, failed, retried).",
}, []string{"outcome"})

// RewardItemsSkipped counts reward items absent from the catalog.
var RewardItemsSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "rewards",
	Name:      "items_skipped_total",
	Help:      "Total reward items skipped because they are not in the catalog.",
})

// ─── Storage Metrics ────────────────────────────────────────────────────────

// ConflictRetries counts units of work retried after a lost version check.
var ConflictRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "conflict_retries_total",
	Help:      "Total optimistic-concurrency retries, by operation.",
}, []string{"op"})

// ─── Operation Metrics ──────────────────────────────────────────────────────

// Operations counts engine calls by operation and result class.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "engine",
	Name:      "operations_total",
	Help:      "Total engine operations, by operation and result.",
}, []string{"op", "result"})

// OperationLatency tracks engine call latency in milliseconds.
var OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "engine",
	Name:      "latency_ms",
	Help:      "Engine operation latency in milliseconds.",
	Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
}, []string{"op"})

// ObserveOp records one engine call. Call it with defer and a pointer to
// the named error result.
func ObserveOp(op string, start time.Time, err *error) {
	var e error
	if err != nil {
		e = *err
	}
	Operations.WithLabelValues(op, Result(e)).Inc()
	OperationLatency.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000)
}

// Result maps an engine error to a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrDuplicateUnlock):
		return "duplicate_unlock"
	case errors.Is(err, domain.ErrNotPurchasable):
		return "not_purchasable"
	case errors.Is(err, domain.ErrNotUnlocked):
		return "not_unlocked"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
