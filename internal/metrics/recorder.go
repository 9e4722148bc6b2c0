// Package metrics exposes simulation progress as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/lorenzotomasdiez/dialogue-sim/internal/agent"
	"github.com/lorenzotomasdiez/dialogue-sim/internal/simulation"
)

// Namespace prefixes every metric name.
const Namespace = "dialogue"

// Recorder implements simulation.Observer.
type Recorder struct {
	turnsTotal      *prometheus.CounterVec
	turnLatency     *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
	refusalsTotal   *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	attemptsPerTurn *prometheus.HistogramVec

	logger *zap.Logger
}

var _ simulation.Observer = (*Recorder)(nil)

// NewRecorder registers the metrics on reg.
func NewRecorder(reg prometheus.Registerer, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	return &Recorder{
		turnsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "turns_total",
				Help:      "Completed turns by speaker model and finish reason",
			},
			[]string{"model", "finish_reason"},
		),
		turnLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "turn_latency_seconds",
				Help:      "Latency of the successful completion attempt",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"model"},
		),
		tokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tokens_total",
				Help:      "Tokens consumed by speaker model and direction",
			},
			[]string{"model", "direction"},
		),
		refusalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "refusals_total",
				Help:      "Turns flagged as refusals",
			},
			[]string{"model"},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "retries_total",
				Help:      "Completion attempts repeated after a transient failure",
			},
			[]string{"model"},
		),
		failuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "turn_failures_total",
				Help:      "Turns that ended the run, by failure kind",
			},
			[]string{"model", "kind"},
		),
		attemptsPerTurn: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "attempts_per_turn",
				Help:      "API attempts needed per completed turn",
				Buckets:   []float64{1, 2, 3, 5, 8},
			},
			[]string{"model"},
		),
		logger: logger.With(zap.String("component", "metrics")),
	}
}

func (r *Recorder) TurnCompleted(e simulation.LogEntry, attempts int) {
	r.turnsTotal.WithLabelValues(e.SpeakerModel, e.FinishReason).Inc()
	r.turnLatency.WithLabelValues(e.SpeakerModel).Observe(e.LatencyMS / 1000)
	r.tokensTotal.WithLabelValues(e.SpeakerModel, "input").Add(float64(e.InputTokens))
	r.tokensTotal.WithLabelValues(e.SpeakerModel, "output").Add(float64(e.OutputTokens))
	r.attemptsPerTurn.WithLabelValues(e.SpeakerModel).Observe(float64(attempts))
	if e.IsRefusal {
		r.refusalsTotal.WithLabelValues(e.SpeakerModel).Inc()
	}
}

func (r *Recorder) TurnRetried(model string, attempt int, err error) {
	r.retriesTotal.WithLabelValues(model).Inc()
}

func (r *Recorder) TurnFailed(turnID int, model string, err error) {
	kind := FailureKind(err)
	r.failuresTotal.WithLabelValues(model, kind).Inc()
	r.logger.Debug("turn failure recorded", zap.Int("turn_id", turnID), zap.String("kind", kind))
}

// FailureKind labels err as "configuration", "generation" or "other".
func FailureKind(err error) string {
	switch {
	case errors.Is(err, agent.ErrConfiguration):
		return "configuration"
	case errors.Is(err, agent.ErrGeneration):
		return "generation"
	default:
		return "other"
	}
}
