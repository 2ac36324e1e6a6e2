// Package metrics exposes Prometheus gauges and counters for fleet-wide
// observability: connection counts, call volume, call errors, status
// transitions, and call latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks the number of currently connected VCP sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vcp_fleet_active_sessions",
		Help: "Number of charge points currently connected to a CSMS.",
	})

	// ManagedChargers tracks the total roster size, connected or not.
	ManagedChargers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vcp_fleet_managed_chargers",
		Help: "Number of charge points known to the fleet manager.",
	})

	// ActiveTransactions tracks currently open transactions across the fleet.
	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vcp_fleet_active_transactions",
		Help: "Number of currently open transactions across all charge points.",
	})

	// CallsSent counts outbound OCPP calls, labeled by action.
	CallsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vcp_fleet_calls_sent_total",
		Help: "Total number of OCPP calls sent to the CSMS.",
	}, []string{"action"})

	// CallsReceived counts inbound OCPP calls, labeled by action.
	CallsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vcp_fleet_calls_received_total",
		Help: "Total number of OCPP calls received from the CSMS.",
	}, []string{"action"})

	// CallErrors counts CallError responses, labeled by OCPP error code.
	CallErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vcp_fleet_call_errors_total",
		Help: "Total number of CallError frames sent or received, labeled by error code.",
	}, []string{"code"})

	// StatusTransitions counts connector status transitions, labeled by the
	// resulting status.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vcp_fleet_status_transitions_total",
		Help: "Total number of connector status transitions, labeled by new status.",
	}, []string{"status"})

	// CallDuration observes round-trip time for outbound calls, labeled by
	// action.
	CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vcp_fleet_call_duration_seconds",
		Help:    "Round-trip duration of outbound OCPP calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})
)
