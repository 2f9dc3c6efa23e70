package kafka

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"

	applogger "SignalDesk/pkg/logger"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics in one consumer group and hands messages to a worker
// pool. Messages of one partition are handled one at a time. Offsets are committed after a
// message succeeded or was parked on the DLQ.
type Consumer struct {
	cfg      ConsumerConfig
	log      *applogger.Logger
	hook     ConsumerHook
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	dlq      *kafka.Writer

	msgs   chan *message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	partMu    sync.Mutex
	partLocks map[string]*sync.Mutex
}

type message struct {
	topic string
	km    kafka.Message
}

// NewConsumer validates cfg. Readers are opened by Start.
func NewConsumer(cfg ConsumerConfig, log *applogger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if cfg.StartOffset != "" && cfg.StartOffset != "earliest" && cfg.StartOffset != "latest" {
		return nil, fmt.Errorf("unknown start offset %q", cfg.StartOffset)
	}
	cfg = cfg.withDefaults()
	if log == nil {
		log = applogger.NewNop()
	}
	consumerMetricsOnce.Do(initConsumerMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		cfg:       cfg,
		log:       log,
		hook:      HookChain{},
		handlers:  make(map[string]MessageHandler),
		readers:   make(map[string]*kafka.Reader),
		msgs:      make(chan *message, cfg.BufferSize),
		ctx:       ctx,
		cancel:    cancel,
		partLocks: make(map[string]*sync.Mutex),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Topic: cfg.DLQTopic, Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// WithConsumerHook sets a hook implementation for lifecycle events.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler registers a message handler for a specific topic. Call before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and starts the workers. It does not block.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no kafka handlers registered")
	}

	start := kafka.FirstOffset
	if c.cfg.StartOffset == "latest" {
		start = kafka.LastOffset
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.cfg.Brokers,
			Topic:       topic,
			GroupID:     c.cfg.GroupID,
			MinBytes:    c.cfg.MinBytes,
			MaxBytes:    c.cfg.MaxBytes,
			StartOffset: start,
		})
	}

	for i := 0; i < c.cfg.Workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	var fetchers sync.WaitGroup
	for topic, r := range c.readers {
		fetchers.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer fetchers.Done()
			c.fetch(topic, r)
		}(topic, r)
	}
	go func() {
		fetchers.Wait()
		close(c.msgs)
	}()

	c.log.Info("kafka consumer started",
		applogger.String("group", c.cfg.GroupID),
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.Workers),
	)
	return nil
}

// Stop cancels fetching, waits for in-flight messages and closes the readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.cancel()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		}

		for topic, r := range c.readers {
			if cerr := r.Close(); cerr != nil {
				c.log.Warn("kafka reader close failed", applogger.String("topic", topic), applogger.Error(cerr))
			}
		}
		if c.dlq != nil {
			if cerr := c.dlq.Close(); cerr != nil {
				c.log.Warn("kafka dlq writer close failed", applogger.Error(cerr))
			}
		}
		c.log.Info("kafka consumer stopped")
	})
	return err
}

func (c *Consumer) fetch(topic string, r *kafka.Reader) {
	for {
		km, err := r.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.log.Warn("kafka fetch failed", applogger.String("topic", topic), applogger.Error(err))
			if !sleepCtx(c.ctx, c.cfg.BackoffMax) {
				return
			}
			continue
		}

		select {
		case c.msgs <- &message{topic: topic, km: km}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.msgs)))
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for msg := range c.msgs {
		if c.ctx.Err() != nil {
			// drained after Stop; redelivered to the group later
			continue
		}
		c.process(msg)
	}
}

func (c *Consumer) process(msg *message) {
	handler, ok := c.handlers[msg.topic]
	if !ok {
		return
	}
	start := time.Now()

	lock := c.partitionLock(msg.topic, msg.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	err := c.handleWithRetry(handler, msg)
	if err != nil && c.ctx.Err() != nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
		c.log.Error("kafka handler failed",
			applogger.String("topic", msg.topic),
			applogger.Int("partition", msg.km.Partition),
			applogger.Int64("offset", msg.km.Offset),
			applogger.Error(err),
		)
		if !c.deadLetter(msg, err) {
			consumerMessages.WithLabelValues(msg.topic, result).Inc()
			return
		}
		result = "dead_lettered"
	}

	c.commit(msg)
	consumerMessages.WithLabelValues(msg.topic, result).Inc()
	consumerHandleLatency.WithLabelValues(msg.topic).Observe(time.Since(start).Seconds())
}

// handleWithRetry runs the hooks and handler up to RetryMax+1 times. Handler panics count
// as failed attempts.
func (c *Consumer) handleWithRetry(handler MessageHandler, msg *message) error {
	for attempt := 1; ; attempt++ {
		ctx, err := c.hook.Before(c.ctx, msg.km)
		if err == nil {
			err = safeHandle(ctx, handler, msg.km.Value)
		}
		c.hook.After(ctx, msg.km, attempt, err)
		if err == nil || attempt > c.cfg.RetryMax {
			return err
		}
		if !sleepCtx(c.ctx, backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)) {
			return err
		}
	}
}

func safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Code: "ERR_PANIC", Err: fmt.Errorf("handler panic: %v", r)}
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) deadLetter(msg *message, cause error) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   msg.km.Key,
		Value: msg.km.Value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(msg.topic)},
			{Key: "error", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Error("kafka dlq write failed", applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
		return false
	}
	return true
}

func (c *Consumer) commit(msg *message) {
	r := c.readers[msg.topic]
	if r == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = r.CommitMessages(ctx, msg.km)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, attempt))
	}
	c.log.Error("kafka commit failed",
		applogger.String("topic", msg.topic),
		applogger.Int64("offset", msg.km.Offset),
		applogger.Error(err),
	)
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	c.partMu.Lock()
	defer c.partMu.Unlock()
	l, ok := c.partLocks[key]
	if !ok {
		l = &sync.Mutex{}
		c.partLocks[key] = l
	}
	return l
}

// backoffWithJitter doubles min per attempt up to max and subtracts up to half as jitter.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	if attempt < 1 {
		attempt = 1
	}
	exp := max
	if attempt < 32 {
		if d := min << uint(attempt-1); d > 0 && d < max {
			exp = d
		}
	}
	half := int64(exp) / 2
	if half <= 0 {
		return exp
	}
	return exp - time.Duration(rand.Int63n(half))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var (
	consumerMetricsOnce   sync.Once
	consumerMessages      *prometheus.CounterVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
)

func initConsumerMetrics() {
	consumerMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaldesk_kafka_consumer_messages_total",
		Help: "Consumed messages by outcome",
	}, []string{"topic", "result"})
	consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "signaldesk_kafka_consumer_queue_depth",
		Help: "Fetched messages waiting for a worker",
	}, []string{"topic"})
	consumerHandleLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "signaldesk_kafka_consumer_handle_seconds",
		Help: "Handling time per message including retries",
	}, []string{"topic"})
}
