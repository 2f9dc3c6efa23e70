package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Producer publishes JSON events, keyed for partition affinity.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a writer over cfg.Brokers. No connection is made until the first Publish.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	cfg = cfg.withDefaults()
	codec, err := parseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	var bal kafka.Balancer = &kafka.LeastBytes{}
	if cfg.HashByKey {
		bal = &kafka.Hash{}
	}
	producerMetricsOnce.Do(initProducerMetrics)

	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     bal,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  codec,
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		BatchSize:    cfg.BatchSize,
		BatchBytes:   int64(cfg.BatchBytes),
		BatchTimeout: cfg.Linger,
		Async:        cfg.Async,
	}}, nil
}

// Publish writes one message. Byte slices and strings are sent as-is, anything else as JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	start := time.Now()
	v, err := encodeValue(value)
	if err != nil {
		return err
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: v, Time: start})

	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMessages.WithLabelValues(topic, result).Inc()
	producerBytes.WithLabelValues(topic).Add(float64(len(v)))
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", topic, err)
	}
	return nil
}

// Close flushes pending async writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return b, nil
}

func parseCompression(s string) (kafka.Compression, error) {
	switch s {
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	case "none":
		return 0, nil
	}
	return 0, fmt.Errorf("unknown kafka compression %q", s)
}

var (
	producerMetricsOnce sync.Once
	producerMessages    *prometheus.CounterVec
	producerBytes       *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
)

func initProducerMetrics() {
	producerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaldesk_kafka_producer_messages_total",
		Help: "Messages published to Kafka by result",
	}, []string{"topic", "result"})
	producerBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaldesk_kafka_producer_bytes_total",
		Help: "Payload bytes published to Kafka",
	}, []string{"topic"})
	producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signaldesk_kafka_producer_publish_seconds",
		Help:    "Publish latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
}
