package connector

import (
	"time"

	"github.com/evalcore/evalcore/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the connector-specific extension of internal/metrics.Collector's
// LLM section: the same CounterVec/HistogramVec construction style, with
// labels and series this package's retry/breaker/rate-limiter layers need
// that the generic HTTP/LLM collector doesn't carry (retries, circuit
// state, rate-limiter wait time).
type Metrics struct {
	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec
	tokensTotal     *prometheus.CounterVec
	costTotal       *prometheus.CounterVec
	rateLimiterWait *prometheus.HistogramVec
}

// NewMetrics registers the connector's series under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		callsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "calls_total",
				Help:      "Total Model Connector invocations by provider, model and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		callDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "call_duration_seconds",
				Help:      "Model Connector call latency in seconds.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"provider", "model"},
		),
		retriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "retries_total",
				Help:      "Total retry attempts issued by the Model Connector.",
			},
			[]string{"provider"},
		),
		circuitState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "circuit_state",
				Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half_open).",
			},
			[]string{"provider"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "tokens_total",
				Help:      "Total tokens consumed by the Model Connector.",
			},
			[]string{"provider", "model", "kind"}, // kind: prompt, completion
		),
		costTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "cost_total",
				Help:      "Estimated cost in USD accrued by the Model Connector.",
			},
			[]string{"provider", "model"},
		),
		rateLimiterWait: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "rate_limiter_wait_seconds",
				Help:      "Time a caller suspended waiting for the per-provider token bucket.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}
}

func (m *Metrics) recordCall(provider, model, status string, d time.Duration) {
	m.callsTotal.WithLabelValues(provider, model, status).Inc()
	m.callDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

func (m *Metrics) recordRetry(provider string) {
	m.retriesTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) recordCircuitState(provider string, state BreakerState) {
	m.circuitState.WithLabelValues(provider).Set(float64(state))
}

func (m *Metrics) recordUsage(provider, model string, usage types.TokenUsage) {
	m.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(usage.PromptTokens))
	m.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(usage.CompletionTokens))
	m.costTotal.WithLabelValues(provider, model).Add(usage.Cost)
}

func (m *Metrics) recordRateLimiterWait(provider string, d time.Duration) {
	m.rateLimiterWait.WithLabelValues(provider).Observe(d.Seconds())
}
