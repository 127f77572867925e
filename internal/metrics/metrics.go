package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anomalyvision_runs_total",
		Help: "Total number of pipeline runs, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anomalyvision_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anomalyvision_frames_sampled_total",
		Help: "Total number of frames captured across all runs",
	})

	FramesSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anomalyvision_frames_skipped_total",
		Help: "Total number of sample instants that failed to decode",
	})

	InferenceRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anomalyvision_inference_requests_total",
		Help: "Inference calls, by backend and status",
	}, []string{"backend", "status"})
)
