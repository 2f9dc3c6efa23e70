package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signalsGenerated  *prometheus.CounterVec
	algorithmErrors   *prometheus.CounterVec
	gatewayCalls      *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	latency           *prometheus.HistogramVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signalsGenerated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_signals_generated_total",
				Help: "Signals created, by symbol, timeframe and direction",
			},
			[]string{"symbol", "timeframe", "type"},
		),
		algorithmErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_algorithm_errors_total",
				Help: "Strategy evaluations that failed or panicked",
			},
			[]string{"algorithm"},
		),
		gatewayCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_gateway_calls_total",
				Help: "Market data provider calls by operation and result",
			},
			[]string{"op", "result"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_cache_lookups_total",
				Help: "Market data cache lookups by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		statusTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_signal_status_transitions_total",
				Help: "Signal lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signaldesk_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signaldesk_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSignalGenerated(symbol, timeframe, signalType string) {
	r.signalsGenerated.WithLabelValues(symbol, timeframe, signalType).Inc()
}

func (r *Recorder) RecordAlgorithmError(algorithm string) {
	r.algorithmErrors.WithLabelValues(algorithm).Inc()
}

func (r *Recorder) RecordGatewayCall(op, result string) {
	r.gatewayCalls.WithLabelValues(op, result).Inc()
}

func (r *Recorder) RecordCacheLookup(op string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	r.cacheLookups.WithLabelValues(op, outcome).Inc()
}

func (r *Recorder) RecordStatusTransition(from, to string) {
	r.statusTransitions.WithLabelValues(from, to).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used where metrics are optional.
type Nop struct{}

func (Nop) RecordSignalGenerated(string, string, string) {}
func (Nop) RecordAlgorithmError(string)                  {}
func (Nop) RecordGatewayCall(string, string)             {}
func (Nop) RecordCacheLookup(string, bool)               {}
func (Nop) RecordStatusTransition(string, string)        {}
func (Nop) RecordError(string)                           {}
func (Nop) RecordLatency(string, float64)                {}
