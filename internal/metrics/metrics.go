// FieldSync - Defensive Positioning Trainer for Baseball Coaching
// Copyright 2026 benchcoach
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/benchcoach/fieldsync

// Package metrics provides Prometheus instrumentation for FieldSync:
// realtime command throughput, broadcast fan-out, connected client
// counts, store operations, and HTTP request latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Realtime channel metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_commands_total",
			Help: "Total realtime channel commands processed",
		},
		[]string{"type", "status"}, // status: "success" or "error"
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_broadcasts_total",
			Help: "Total events broadcast to all connected clients",
		},
		[]string{"type"},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldsync_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	// Store metrics
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_store_operations_total",
			Help: "Total versioned record store operations",
		},
		[]string{"operation", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldsync_store_operation_duration_seconds",
			Help:    "Duration of versioned record store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldsync_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Auth metrics
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldsync_login_attempts_total",
			Help: "Total login attempts",
		},
		[]string{"result"}, // "success", "failure", "rate_limited"
	)
)

// RecordCommand records a processed realtime command and its outcome.
func RecordCommand(commandType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	CommandsTotal.WithLabelValues(commandType, status).Inc()
}

// RecordBroadcast records one fan-out of the given event type.
func RecordBroadcast(eventType string) {
	BroadcastsTotal.WithLabelValues(eventType).Inc()
}

// RecordStoreOperation records a store operation with its duration and outcome.
func RecordStoreOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(operation, status).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLoginAttempt records a login attempt outcome.
func RecordLoginAttempt(result string) {
	LoginAttemptsTotal.WithLabelValues(result).Inc()
}
