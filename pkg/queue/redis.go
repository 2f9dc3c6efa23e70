package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"SignalDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// promoteScript moves due retries back onto the work list in one step, so several
// replicas polling the same retry set never enqueue a message twice.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, m in ipairs(due) do
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', KEYS[2], m)
end
return #due
`)

// RedisQueue is a work list in Redis with delayed retries and a dead-letter list.
//
// Keys under the prefix: <prefix>:messages (LIST), <prefix>:retry (ZSET scored by due
// time in unix ms) and <prefix>:dlq (LIST).
type RedisQueue struct {
	log       *logger.Logger
	cfg       QueueConfig
	client    *redis.Client
	keyPrefix string
	pollEvery time.Duration
	batch     int

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// WithRetryPoll sets how often due retries are promoted.
func WithRetryPoll(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) {
		if d > 0 {
			r.pollEvery = d
		}
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(log *logger.Logger, cfg *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	c := QueueConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		log:       log,
		cfg:       c,
		client:    client,
		keyPrefix: "signaldesk:queue",
		pollEvery: time.Second,
		batch:     100,
		jobs:      make(map[string]Job),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterJobs registers jobs by message type. The first job for a type wins.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range jobs {
		if _, exists := r.jobs[job.Type()]; exists {
			r.log.Warn("job already registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
			continue
		}
		r.jobs[job.Type()] = job
		r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
	}
}

// Start pings Redis and starts the workers and the retry poller.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return ErrAlreadyStart
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryLoop()
	r.running = true

	r.log.Info("job queue started",
		logger.Int("workers", r.cfg.Workers),
		logger.String("prefix", r.keyPrefix),
	)
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx expires. A job cut
// short by the shutdown is put back for immediate retry.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("job queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for queue workers: %w", ctx.Err())
	}
}

// PublishMessage enqueues payload for the job registered under msgType.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownJob, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	b, err := json.Marshal(Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("messages"), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Stats reports pending, scheduled-retry and dead-lettered message counts.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.key("messages"))
	retrying := pipe.ZCard(ctx, r.key("retry"))
	dead := pipe.LLen(ctx, r.key("dlq"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Retrying: retrying.Val(), Dead: dead.Val()}, nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for {
		res, err := r.client.BRPop(r.ctx, time.Second, r.key("messages")).Result()
		switch {
		case r.ctx.Err() != nil:
			return
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			r.log.Error("queue pop failed", logger.Int("worker_id", id), logger.Error(err))
			if !sleepCtx(r.ctx, time.Second) {
				return
			}
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.log.Error("queue message undecodable", logger.Error(err))
			continue
		}
		r.process(msg)
	}
}

func (r *RedisQueue) process(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.log.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	start := time.Now()
	err := r.run(job, msg.Payload)
	if err == nil {
		r.log.Debug("job done",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("took_ms", time.Since(start)),
		)
		return
	}

	if r.ctx.Err() != nil {
		r.schedule(msg, time.Now())
		return
	}

	msg.Attempts++
	msg.LastError = err.Error()
	if msg.Attempts > r.cfg.RetryLimit {
		r.log.Error("job failed permanently",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err),
		)
		r.deadLetter(msg)
		return
	}

	at := time.Now().Add(retryBackoff(r.cfg.RetryDelay, msg.Attempts))
	r.log.Warn("job failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.UTC().Format(time.RFC3339)),
		logger.Error(err),
	)
	r.schedule(msg, at)
}

// run executes a handler under the configured timeout and turns a panic into an error.
func (r *RedisQueue) run(job Job, payload json.RawMessage) (err error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.JobTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	return job.Handle(ctx, payload)
}

func (r *RedisQueue) schedule(msg Message, at time.Time) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.ZAdd(ctx, r.key("retry"), redis.Z{Score: float64(at.UnixMilli()), Member: b}).Err(); err != nil {
		r.log.Error("schedule retry failed", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal dead letter", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.LPush(ctx, r.key("dlq"), b).Err(); err != nil {
		r.log.Error("dead letter failed", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	t := time.NewTicker(r.pollEvery)
	defer t.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-t.C:
			n, err := promoteScript.Run(r.ctx, r.client,
				[]string{r.key("retry"), r.key("messages")},
				strconv.FormatInt(time.Now().UnixMilli(), 10), r.batch,
			).Int()
			if err != nil && r.ctx.Err() == nil {
				r.log.Error("promote retries failed", logger.Error(err))
				continue
			}
			if n > 0 {
				r.log.Debug("retries promoted", logger.Int("count", n))
			}
		}
	}
}

func (r *RedisQueue) key(suffix string) string {
	return r.keyPrefix + ":" + suffix
}

// retryBackoff is base doubled per attempt after the first, capped at one hour.
func retryBackoff(base time.Duration, attempt int) time.Duration {
	const ceiling = time.Hour
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return d
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
