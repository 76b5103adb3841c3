// Package rfmetrics exposes the Prometheus instrumentation for the
// coordination core. Metrics are ambient instrumentation, not part of the
// wire protocol or the scheduler's decision logic — no code outside this
// package and its call sites depends on any metric value.
package rfmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesDispatched counts RenderTasks emitted on render-out, by project.
	FramesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderfarm_frames_dispatched_total",
			Help: "Render tasks dispatched to workers, by project.",
		},
		[]string{"project_uuid", "project_name"},
	)

	// FramesCompleted counts successful render results, by project.
	FramesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderfarm_frames_completed_total",
			Help: "Frames that completed successfully, by project.",
		},
		[]string{"project_uuid", "project_name"},
	)

	// FramesFailed counts failed render results, by project.
	FramesFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderfarm_frames_failed_total",
			Help: "Frames that returned a failure result, by project.",
		},
		[]string{"project_uuid", "project_name"},
	)

	// FramesInFlight tracks the current size of the assigned set across all
	// projects.
	FramesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderfarm_frames_in_flight",
			Help: "Frames currently assigned to a worker across all projects.",
		},
	)

	// ActiveSessions tracks the number of live worker connections.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderfarm_active_sessions",
			Help: "Worker connections currently established with the server.",
		},
	)

	// TransferBytes counts file bytes moved by transfer payloads, measured
	// uncompressed, by direction ("download" for bundles, "upload" for
	// outputs).
	TransferBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderfarm_transfer_bytes_total",
			Help: "Payload bytes transferred, by direction.",
		},
		[]string{"direction"},
	)

	// RenderDuration observes wall-clock time spent in the external renderer
	// subprocess, on the worker side.
	RenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renderfarm_render_duration_seconds",
			Help:    "Wall-clock time spent waiting for the renderer subprocess.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)
)
