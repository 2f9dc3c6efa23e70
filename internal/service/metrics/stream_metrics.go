package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "signaldesk",
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected signal stream clients",
		},
	)

	StreamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signaldesk",
			Subsystem: "stream",
			Name:      "frames_sent_total",
			Help:      "Frames written to stream clients by frame type",
		},
		[]string{"type"},
	)

	StreamRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "signaldesk",
			Subsystem: "stream",
			Name:      "rejected_total",
			Help:      "Inbound frames rejected by reason",
		},
		[]string{"reason"},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "signaldesk",
			Subsystem: "lifecycle",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full status sweep",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(StreamClients, StreamFrames, StreamRejected, SweepDuration)
	})
}
