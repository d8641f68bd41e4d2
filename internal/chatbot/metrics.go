package chatbot

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"chatd/internal/inference"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "total",
			Help:      "Generations by outcome",
		},
		[]string{"outcome"},
	)

	generationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "duration_seconds",
			Help:      "Generation latency including queue wait",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"outcome"},
	)

	queueLen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatd",
			Subsystem: "generation",
			Name:      "queue_slots_in_use",
			Help:      "Reserved generation slots (waiting + in-flight)",
		},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, generationDuration, queueLen)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case inference.IsContextOverflow(err):
		return "context_overflow"
	case inference.IsMalformedOutput(err):
		return "malformed_output"
	case inference.IsTooBusy(err):
		return "too_busy"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
