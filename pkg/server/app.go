package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SignalDesk/internal/handler/stream"
	"SignalDesk/internal/scheduler"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"
)

// Closer releases one infrastructure client during shutdown.
type Closer struct {
	Name  string
	Close func() error
}

type Option func(*App)

func WithScheduler(s *scheduler.Scheduler) Option {
	return func(a *App) { a.scheduler = s }
}

// WithConsumer starts the Kafka consumer with the given handlers registered.
func WithConsumer(c *pkgkafka.Consumer, handlers ...pkgkafka.MessageHandler) Option {
	return func(a *App) {
		a.consumer = c
		a.handlers = handlers
	}
}

func WithQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.queue = q }
}

func WithHub(h *stream.Hub) Option {
	return func(a *App) { a.hub = h }
}

// WithClosers adds clients closed after every component has stopped, in reverse order.
func WithClosers(cs ...Closer) Option {
	return func(a *App) { a.closers = append(a.closers, cs...) }
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg       *config.Config
	log       *applogger.Logger
	http      *xhttp.Server
	scheduler *scheduler.Scheduler
	consumer  *pkgkafka.Consumer
	handlers  []pkgkafka.MessageHandler
	queue     *queue.RedisQueue
	hub       *stream.Hub
	closers   []Closer
}

func New(cfg *config.Config, log *applogger.Logger, httpServer *xhttp.Server, opts ...Option) *App {
	a := &App{cfg: cfg, log: log, http: httpServer}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts every component and blocks until ctx is done, then shuts down.
func (a *App) RunContext(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			a.log.Error("job queue start failed", applogger.Error(err))
			return err
		}
	}

	if a.consumer != nil {
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			a.log.Info("kafka handler registered", applogger.String("topic", h.Topic()))
		}
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
	}

	if a.scheduler != nil {
		a.scheduler.Start(ctx)
	}

	if err := a.http.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("signaldesk started",
		applogger.String("env", a.cfg.Environment),
		applogger.Int("symbols", len(a.cfg.Signals.Symbols)),
		applogger.String("store", a.cfg.Store.Backend),
		applogger.String("market_data", a.cfg.MarketData.Provider),
	)

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops producers of work before the infrastructure they write to.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if a.hub != nil {
		a.hub.Close()
	}
	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.scheduler != nil {
		if err := a.scheduler.Stop(ctx); err != nil {
			a.log.Warn("scheduler stop error", applogger.Error(err))
		}
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// flush pending error digests while the queue still accepts them
	a.log.RemoveCollector()

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("job queue stop error", applogger.Error(err))
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.Close(); err != nil {
			a.log.Warn("close failed", applogger.String("client", c.Name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout > 0 {
		return a.cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
