// Package metrics exposes the process-wide Prometheus instruments. The
// server mounts them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsApplied counts collection snapshots the engine accepted from
	// the store subscription.
	SnapshotsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_engine_snapshots_applied_total",
		Help: "Collection snapshots applied by the sync engine.",
	}, []string{"collection"})

	// RecordsDropped counts records a snapshot carried that failed
	// re-validation and were dropped.
	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docket_engine_records_dropped_total",
		Help: "Invalid records dropped during snapshot re-validation.",
	}, []string{"collection"})

	// NotificationsDelivered counts notifications handed to the platform.
	NotificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docket_notify_delivered_total",
		Help: "Reminder notifications delivered to the platform.",
	})

	// ScanErrors counts per-task failures inside reminder scans.
	ScanErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docket_scheduler_scan_errors_total",
		Help: "Per-task errors during reminder scans.",
	})

	// WebsocketClients tracks currently connected websocket subscribers.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docket_ws_clients",
		Help: "Connected websocket clients.",
	})
)
