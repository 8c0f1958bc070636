package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "engine_events_dispatched_total",
		Help:      "Backend events applied to the thread store, by method.",
	}, []string{"method"})
	metricEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "engine_events_dropped_total",
		Help:      "Backend events discarded as malformed.",
	})
	metricRPCFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "engine_rpc_failures_total",
		Help:      "Backend RPC failures, by operation.",
	}, []string{"op"})
	metricTurnsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "engine_turns_completed_total",
		Help:      "Turns that reached a terminal state without error.",
	})
	metricTurnErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "engine_turn_errors_total",
		Help:      "Turns that completed with an error.",
	})
	metricTurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "overseer",
		Name:      "engine_turn_duration_seconds",
		Help:      "Wall-clock duration from turn start to completion.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})
	metricApprovalsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "engine_approvals_requested_total",
		Help:      "Approval requests pushed by the backend.",
	})
	metricApprovalsDecided = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "overseer",
		Name:      "engine_approvals_decided_total",
		Help:      "Approval decisions submitted, by decision.",
	}, []string{"decision"})
)
