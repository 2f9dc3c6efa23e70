package kafka

import "time"

// ProducerConfig describes the writer. Zero values take the defaults of withDefaults.
type ProducerConfig struct {
	Brokers      []string
	RequiredAcks int    // -1 waits for all in-sync replicas
	Compression  string // gzip, snappy, lz4, zstd or none
	MaxAttempts  int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	BatchSize    int
	BatchBytes   int
	Linger       time.Duration // wait before a partial batch is flushed
	Async        bool          // return before the broker acknowledges
	HashByKey    bool          // equal keys land on one partition
}

func (c ProducerConfig) withDefaults() ProducerConfig {
	if c.Compression == "" {
		c.Compression = "snappy"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.BatchBytes <= 0 {
		c.BatchBytes = 1 << 20
	}
	if c.Linger <= 0 {
		c.Linger = 50 * time.Millisecond
	}
	return c
}

// ConsumerConfig describes the consumer group. Zero values take the defaults of withDefaults.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	StartOffset string // earliest or latest, for groups without a committed offset
	Workers     int
	BufferSize  int // fetched messages that may wait for a worker
	RetryMax    int // retries after the first failed attempt
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string // receives messages that exhausted their retries; empty disables
	MinBytes    int
	MaxBytes    int
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.GroupID == "" {
		c.GroupID = "signaldesk"
	}
	if c.StartOffset == "" {
		c.StartOffset = "earliest"
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = 50 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = max(2*time.Second, c.BackoffMin)
	}
	if c.MinBytes <= 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 10e6
	}
	return c
}
