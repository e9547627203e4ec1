// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

// Package metrics holds the Prometheus instrumentation: REST client
// traffic, pipeline frames, store applies, presence buckets, and
// reconciliation passes. Everything registers on the default registry
// and is served from the debug listener's /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// REST client metrics.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periscope_api_requests_total",
			Help: "Total REST requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "periscope_api_request_duration_seconds",
			Help:    "REST request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Pipeline metrics.
	PipelineFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periscope_pipeline_frames_total",
			Help: "Realtime frames received, by frame type",
		},
		[]string{"type"},
	)

	PipelineReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "periscope_pipeline_reconnects_total",
			Help: "Times the realtime session was re-bootstrapped",
		},
	)

	// Entity store metrics.
	StoreAppliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periscope_store_applies_total",
			Help: "Entity applies by kind and outcome (created or merged)",
		},
		[]string{"kind", "outcome"},
	)

	StoreRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "periscope_store_records",
			Help: "Live records per entity kind",
		},
		[]string{"kind"},
	)

	// Presence metrics.
	PresenceBucketSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "periscope_presence_bucket_size",
			Help: "Friends per presence bucket",
		},
		[]string{"bucket"},
	)

	// Reconciliation metrics.
	ReconcilePassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periscope_reconcile_passes_total",
			Help: "Reconciliation passes by collection and outcome",
		},
		[]string{"collection", "outcome"},
	)

	ReconcileSweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "periscope_reconcile_swept_total",
			Help: "Records soft-deleted by sweep, per collection",
		},
		[]string{"collection"},
	)
)

// ObserveAPIRequest records one REST call.
func ObserveAPIRequest(method string, status int, elapsed time.Duration) {
	APIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveReconcilePass records one refresh/sweep pass.
func ObserveReconcilePass(collection string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ReconcilePassesTotal.WithLabelValues(collection, outcome).Inc()
}
