// Package metrics exposes Prometheus collectors for the alert loop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Alert metrics
	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "derivwatch_active_alerts",
			Help: "Number of (market, group) alerts currently active",
		},
	)

	AlertsTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivwatch_alerts_triggered_total",
			Help: "Total number of alerts triggered",
		},
		[]string{"market", "group"},
	)

	AlertsClearedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivwatch_alerts_cleared_total",
			Help: "Total number of alerts stopped",
		},
		[]string{"reason"}, // cleared, disabled, dismissed
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivwatch_notifications_total",
			Help: "Total number of panel notifications created",
		},
		[]string{"type"},
	)

	NotificationsExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "derivwatch_notifications_expired_total",
			Help: "Total number of panel notifications removed by cleanup",
		},
	)

	SystemNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivwatch_system_notifications_total",
			Help: "Total number of system notifications delivered",
		},
		[]string{"status"}, // status: sent, failed
	)

	// Poll metrics
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivwatch_polls_total",
			Help: "Total number of backend poll cycles",
		},
		[]string{"status"}, // status: success, failed
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "derivwatch_poll_duration_seconds",
			Help:    "Time taken by one backend poll cycle",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	LastSuccessfulPoll = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "derivwatch_last_successful_poll_timestamp_seconds",
			Help: "Unix time of the last successful poll",
		},
	)

	// Cue metrics
	CueLoops = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "derivwatch_cue_loops",
			Help: "Number of running audio cue loops",
		},
	)

	// Broadcast metrics
	BroadcastTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "derivwatch_broadcast_total",
			Help: "Total number of alert transitions published to Redis",
		},
		[]string{"status"}, // status: success, failed
	)
)
