// Package metrics holds the prometheus collectors of the conversion pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConversionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bookscan_conversions_total",
		Help: "Total number of conversions, by mode and outcome",
	}, []string{"mode", "outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bookscan_stage_duration_seconds",
		Help:    "Duration of each conversion stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookscan_frames_sampled_total",
		Help: "Total number of frames sampled across all conversions",
	})

	FrameDecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookscan_frame_decode_failures_total",
		Help: "Total number of sample timestamps skipped because the frame could not be decoded",
	})

	SamplingRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookscan_sampling_retries_total",
		Help: "Total number of coarser sampling passes after an empty first pass",
	})

	OCRFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookscan_ocr_failures_total",
		Help: "Total number of frames skipped because OCR failed",
	})

	RenderFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bookscan_render_fallbacks_total",
		Help: "Total number of text documents rendered with the line fallback",
	})

	InFlightConversions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bookscan_in_flight_conversions",
		Help: "Number of conversions currently holding a processing slot",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
