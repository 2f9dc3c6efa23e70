package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/logger"
)

// ErrAlreadyRunning is returned when another run of the same job still holds its lock.
var ErrAlreadyRunning = errors.New("job already running")

type Generator interface {
	GenerateForTimeframe(ctx context.Context, tf models.Timeframe) (usecase.GenerationResult, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (usecase.SweepResult, error)
}

// Locker is the lock half of pkg/cache.Service. A Redis-backed locker keeps replicas from
// running the same cycle twice.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

type Option func(*Scheduler)

func WithTimeframes(tfs []models.Timeframe) Option {
	return func(s *Scheduler) { s.timeframes = tfs }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithRunTimeout bounds a single generation or sweep run and the lock that guards it.
func WithRunTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.runTimeout = d
		}
	}
}

func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler fires signal generation once per candle close of every configured timeframe and
// runs the status sweep on a fixed interval.
type Scheduler struct {
	gen           Generator
	sweeper       Sweeper
	locker        Locker
	timeframes    []models.Timeframe
	sweepInterval time.Duration
	runTimeout    time.Duration
	log           *logger.Logger
	now           func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(gen Generator, sweeper Sweeper, opts ...Option) *Scheduler {
	s := &Scheduler{
		gen:           gen,
		sweeper:       sweeper,
		timeframes:    []models.Timeframe{models.TF1m, models.TF5m, models.TF15m},
		sweepInterval: time.Minute,
		runTimeout:    4 * time.Minute,
		log:           logger.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches one loop per timeframe plus the sweep loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, tf := range s.timeframes {
		tf := tf
		s.loop(ctx, "generate_"+string(tf), tf.Duration(), func(ctx context.Context) error {
			_, err := s.GenerateForTimeframe(ctx, tf)
			return err
		})
	}
	s.loop(ctx, "sweep", s.sweepInterval, func(ctx context.Context) error {
		_, err := s.SweepStatuses(ctx)
		return err
	})

	tfs := make([]string, len(s.timeframes))
	for i, tf := range s.timeframes {
		tfs[i] = string(tf)
	}
	s.log.Info("scheduler started", logger.Strings("timeframes", tfs), logger.Duration("sweep_interval_ms", s.sweepInterval))
}

// Stop cancels the loops and waits for in-flight runs.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// loop waits for the next multiple of every, then fires on a ticker.
func (s *Scheduler) loop(ctx context.Context, name string, every time.Duration, run func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(untilNextBoundary(s.now(), every))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				if errors.Is(err, ErrAlreadyRunning) {
					s.log.Debug("scheduled run skipped", logger.String("job", name))
				} else {
					s.log.Error("scheduled run failed", logger.String("job", name), logger.Error(err))
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// GenerateForTimeframe runs one generation cycle under the timeframe's lock.
func (s *Scheduler) GenerateForTimeframe(ctx context.Context, tf models.Timeframe) (usecase.GenerationResult, error) {
	var res usecase.GenerationResult
	err := s.withLock(ctx, "scheduler:generate:"+string(tf), func(ctx context.Context) error {
		var err error
		res, err = s.gen.GenerateForTimeframe(ctx, tf)
		return err
	})
	return res, err
}

// SweepStatuses runs one status sweep under the sweep lock.
func (s *Scheduler) SweepStatuses(ctx context.Context) (usecase.SweepResult, error) {
	var res usecase.SweepResult
	err := s.withLock(ctx, "scheduler:sweep", func(ctx context.Context) error {
		var err error
		res, err = s.sweeper.Sweep(ctx, s.now())
		return err
	})
	return res, err
}

func (s *Scheduler) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, key, s.runTimeout)
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if !ok {
			return ErrAlreadyRunning
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), key); err != nil {
				s.log.Warn("unlock failed", logger.String("key", key), logger.Error(err))
			}
		}()
	}
	return fn(ctx)
}

func untilNextBoundary(now time.Time, every time.Duration) time.Duration {
	if every <= 0 {
		return 0
	}
	next := now.Truncate(every).Add(every)
	return next.Sub(now)
}
