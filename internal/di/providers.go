package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	domsvc "SignalDesk/internal/domain/service"
	"SignalDesk/internal/handler/api"
	"SignalDesk/internal/handler/stream"
	"SignalDesk/internal/jobs"
	mid "SignalDesk/internal/middleware"
	internalrepo "SignalDesk/internal/repository"
	"SignalDesk/internal/scheduler"
	"SignalDesk/internal/service/marketdata"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/service/telegram"
	"SignalDesk/internal/services/strategy"
	"SignalDesk/internal/usecase"
	pkgcache "SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	"SignalDesk/pkg/postgres"
	"SignalDesk/pkg/queue"
	"SignalDesk/pkg/server"

	"github.com/redis/go-redis/v9"
)

// Optional infrastructure is provided as a nil pointer when disabled in config.
// Every consumer below checks for nil before wiring it in.

// ProvideLogger builds the structured logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	log, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
		Service:    "signaldesk",
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return log, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideRedisClient opens the client shared by the cache, the scheduler lock and the job queue.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := pkgcache.NewRedisClient(&pkgcache.RedisConfig{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideCache selects the cache backend used for candle responses and scheduler locks.
func ProvideCache(cfg *config.Config, client *redis.Client) pkgcache.Service {
	switch cfg.Cache.Backend {
	case "redis":
		return pkgcache.NewRedisCacheFromClient(client, cfg.Cache.Prefix)
	case "layered":
		return pkgcache.NewLayeredCache(
			pkgcache.NewRedisCacheFromClient(client, cfg.Cache.Prefix),
			pkgcache.WithLayeredMemorySize(cfg.Cache.MaxSize),
			pkgcache.WithLayeredMemoryTTL(cfg.MarketData.CacheTTL),
		)
	default:
		return pkgcache.NewMemoryCache(
			pkgcache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			pkgcache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		)
	}
}

// ProvideClickHouseClient connects to ClickHouse and creates the candles table.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(pkgch.ClientConfig{
		Host:             cfg.ClickHouse.Host,
		Port:             cfg.ClickHouse.Port,
		Database:         cfg.ClickHouse.Database,
		User:             cfg.ClickHouse.User,
		Password:         cfg.ClickHouse.Password,
		UseHTTP:          cfg.ClickHouse.UseHTTP,
		AsyncInsert:      cfg.ClickHouse.AsyncInsert,
		WaitForAsync:     cfg.ClickHouse.WaitForAsync,
		DialTimeout:      cfg.ClickHouse.DialTimeout,
		ReadTimeout:      cfg.ClickHouse.ReadTimeout,
		MaxExecutionTime: cfg.ClickHouse.MaxExecutionTime,
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.CandleSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

func ProvideCandleStore(client *pkgch.Client, log *applogger.Logger) *internalrepo.CHCandleStore {
	if client == nil {
		return nil
	}
	return internalrepo.NewCHCandleStore(client, log)
}

// ProvideProviderFactory picks where candles and quotes come from.
func ProvideProviderFactory(cfg *config.Config, store *internalrepo.CHCandleStore) marketdata.ProviderFactory {
	if cfg.MarketData.Provider == "clickhouse" && store != nil {
		return func(context.Context, string) (domrepo.MarketDataProvider, error) {
			return store, nil
		}
	}
	return marketdata.NewBridgeFactory(cfg.MarketData.Bridge.BaseURL, cfg.MarketData.Bridge.APIKey)
}

func ProvideGateway(cfg *config.Config, factory marketdata.ProviderFactory, c pkgcache.Service, m *metrics.Recorder, log *applogger.Logger) *marketdata.Gateway {
	return marketdata.NewGateway(factory,
		marketdata.WithConnectionID(cfg.MarketData.ConnectionID),
		marketdata.WithRetry(cfg.MarketData.Retry.Attempts, cfg.MarketData.Retry.BaseDelay),
		marketdata.WithCallTimeout(cfg.MarketData.Timeout),
		marketdata.WithCache(c, cfg.MarketData.CacheTTL),
		marketdata.WithMetrics(m),
		marketdata.WithLogger(log),
	)
}

func ProvideStrategies(cfg *config.Config) ([]domsvc.Strategy, error) {
	return strategy.ByNames(cfg.Signals.Strategies)
}

func ProvideAggregator(cfg *config.Config, gw *marketdata.Gateway, strategies []domsvc.Strategy, m *metrics.Recorder, log *applogger.Logger) *usecase.SignalAggregator {
	return usecase.NewSignalAggregator(gw, strategies,
		usecase.WithThreshold(cfg.Signals.ConfidenceThreshold),
		usecase.WithLookback(cfg.Signals.Lookback),
		usecase.WithAggregatorMetrics(m),
		usecase.WithAggregatorLogger(log),
	)
}

func ProvidePricer(cfg *config.Config, gw *marketdata.Gateway) *usecase.Pricer {
	return usecase.NewPricer(gw, usecase.PricerConfig{
		RiskPercentage: cfg.Signals.RiskPercentage,
		RewardRatio:    cfg.Signals.RewardRatio,
		StopBasis:      cfg.Signals.StopBasis,
		ATRPeriod:      cfg.Signals.ATRPeriod,
		ATRMultiplier:  cfg.Signals.ATRMultiplier,
		Lookback:       cfg.Signals.Lookback,
	})
}

// ProvidePostgresClient connects the signal store database and applies its schema.
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, error) {
	if cfg.Store.Backend != "postgres" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := postgres.NewClient(ctx,
		postgres.WithDSN(cfg.Postgres.DSN),
		postgres.WithPoolSize(cfg.Postgres.MaxConns, cfg.Postgres.MinConns),
		postgres.WithConnLifetime(cfg.Postgres.MaxConnLifetime, 5*time.Minute),
		postgres.WithConnectTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	if cfg.Postgres.Migrate {
		if err := client.Migrate(ctx, internalrepo.SignalSchema); err != nil {
			client.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
	}
	return client, nil
}

func ProvideSignalStore(pg *postgres.Client) domrepo.SignalStore {
	if pg == nil {
		return internalrepo.NewMemorySignalStore()
	}
	return internalrepo.NewPostgresSignalStore(pg.Pool())
}

func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RequiredAcks: cfg.Kafka.RequiredAcks,
		Compression:  cfg.Kafka.Compression,
		MaxAttempts:  cfg.Kafka.Producer.MaxAttempts,
		WriteTimeout: cfg.Kafka.Producer.WriteTimeout,
		ReadTimeout:  cfg.Kafka.Producer.ReadTimeout,
		BatchSize:    cfg.Kafka.Producer.BatchSize,
		BatchBytes:   cfg.Kafka.Producer.BatchBytes,
		Linger:       cfg.Kafka.Producer.Linger,
		Async:        cfg.Kafka.Producer.Async,
		HashByKey:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

func ProvideTelegram(cfg *config.Config) (*telegram.Notifier, error) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	n, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return n, nil
}

func ProvideFeed(cfg *config.Config, agg *usecase.SignalAggregator, pricer *usecase.Pricer, log *applogger.Logger) *usecase.SignalFeed {
	return usecase.NewSignalFeed(agg, pricer,
		usecase.WithFeedTTL(cfg.Stream.PushInterval),
		usecase.WithFeedConcurrency(cfg.Signals.Concurrency),
		usecase.WithFeedLogger(log),
	)
}

func ProvideHub(cfg *config.Config, feed *usecase.SignalFeed, log *applogger.Logger) (*stream.Hub, error) {
	tfs, err := parseTimeframes(cfg.Stream.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("stream timeframes: %w", err)
	}
	return stream.NewHub(feed, cfg.Signals.Symbols,
		stream.WithPushInterval(cfg.Stream.PushInterval),
		stream.WithTimeframes(tfs),
		stream.WithLimiter(ratelimit.New(cfg.Stream.RateLimit.Capacity, cfg.Stream.RateLimit.Refill)),
		stream.WithWriteTimeout(cfg.Stream.WriteTimeout),
		stream.WithPongTimeout(cfg.Stream.PongTimeout),
		stream.WithMaxMessageSize(cfg.Stream.MaxMessageSize),
		stream.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		stream.WithLogger(log),
	), nil
}

// ProvideSignalPublisher fans lifecycle events out to the stream hub and the enabled sinks.
func ProvideSignalPublisher(cfg *config.Config, producer *pkgkafka.Producer, tg *telegram.Notifier, hub *stream.Hub) domrepo.SignalPublisher {
	pubs := internalrepo.MultiPublisher{hub}
	if producer != nil {
		pubs = append(pubs, internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalTopic))
	}
	if tg != nil {
		pubs = append(pubs, tg)
	}
	return pubs
}

func ProvideLifecycle(cfg *config.Config, store domrepo.SignalStore, gw *marketdata.Gateway, pub domrepo.SignalPublisher, m *metrics.Recorder, log *applogger.Logger) *usecase.SignalLifecycle {
	return usecase.NewSignalLifecycle(store, gw,
		usecase.WithPublisher(pub),
		usecase.WithRewardRatio(cfg.Signals.RewardRatio),
		usecase.WithLifecycleMetrics(m),
		usecase.WithLifecycleLogger(log),
	)
}

// ProvideQueue builds the Redis job queue with its jobs registered.
func ProvideQueue(cfg *config.Config, client *redis.Client, lifecycle *usecase.SignalLifecycle, tg *telegram.Notifier, log *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || client == nil {
		return nil
	}
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		JobTimeout: cfg.Queue.JobTimeout,
	}, client, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))

	var sender jobs.DigestSender
	if tg != nil {
		sender = tg
	}
	q.RegisterJobs([]queue.Job{
		jobs.NewStoreSignalJob(lifecycle, log),
		jobs.NewErrorDigestJob(sender, log),
	})
	return q
}

// ProvideSignalSink persists inline unless the job queue is enabled.
func ProvideSignalSink(q *queue.RedisQueue, lifecycle *usecase.SignalLifecycle) usecase.SignalSink {
	if q == nil {
		return lifecycle
	}
	return jobs.NewQueueSink(q)
}

func ProvideThrottle(cfg *config.Config, m *metrics.Recorder) *mid.SignalThrottle {
	return mid.NewSignalThrottle(
		mid.WithMinInterval(cfg.Signals.MinInterval),
		mid.WithThrottleMetrics(m),
	)
}

func ProvideGenerator(cfg *config.Config, agg *usecase.SignalAggregator, pricer *usecase.Pricer, sink usecase.SignalSink, throttle *mid.SignalThrottle, m *metrics.Recorder, log *applogger.Logger) *usecase.SignalGenerator {
	return usecase.NewSignalGenerator(agg, pricer, sink, cfg.Signals.Symbols,
		usecase.WithConcurrency(cfg.Signals.Concurrency),
		usecase.WithThrottle(throttle),
		usecase.WithGeneratorMetrics(m),
		usecase.WithGeneratorLogger(log),
	)
}

func ProvideScheduler(cfg *config.Config, gen *usecase.SignalGenerator, lifecycle *usecase.SignalLifecycle, locker pkgcache.Service, log *applogger.Logger) (*scheduler.Scheduler, error) {
	tfs, err := parseTimeframes(cfg.Scheduler.Timeframes)
	if err != nil {
		return nil, fmt.Errorf("scheduler timeframes: %w", err)
	}
	return scheduler.New(gen, lifecycle,
		scheduler.WithTimeframes(tfs),
		scheduler.WithSweepInterval(cfg.Scheduler.SweepInterval),
		scheduler.WithRunTimeout(cfg.Scheduler.RunTimeout),
		scheduler.WithLocker(locker),
		scheduler.WithLogger(log),
	), nil
}

func ProvidePositionManager(cfg *config.Config) *usecase.PositionManager {
	return usecase.NewPositionManager(cfg.Risk.MaxPositions, cfg.Risk.RiskPerTrade)
}

func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:     cfg.Kafka.Brokers,
		GroupID:     cfg.Kafka.Consumer.GroupID,
		StartOffset: cfg.Kafka.Consumer.StartAt,
		Workers:     cfg.Kafka.Consumer.Workers,
		BufferSize:  cfg.Kafka.Consumer.BufferSize,
		RetryMax:    cfg.Kafka.Consumer.RetryMax,
		BackoffMin:  cfg.Kafka.Consumer.BackoffMin,
		BackoffMax:  cfg.Kafka.Consumer.BackoffMax,
		DLQTopic:    cfg.Kafka.Consumer.DLQTopic,
		MinBytes:    cfg.Kafka.Consumer.MinBytes,
		MaxBytes:    cfg.Kafka.Consumer.MaxBytes,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(pkgkafka.LoggingHook{Log: log}))
	return consumer, nil
}

// ProvideCandleHandlers returns the Kafka handlers that ingest candles into ClickHouse.
func ProvideCandleHandlers(cfg *config.Config, store *internalrepo.CHCandleStore, gw *marketdata.Gateway, m *metrics.Recorder) []pkgkafka.MessageHandler {
	if store == nil {
		return nil
	}
	return []pkgkafka.MessageHandler{
		usecase.NewKafkaCandlesHandler(cfg.Kafka.CandleTopic, store, gw, m),
	}
}

// ProvideHealthChecks pings every enabled backing store.
func ProvideHealthChecks(client *redis.Client, ch *pkgch.Client, pg *postgres.Client) map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	if pg != nil {
		checks["postgres"] = pg.Health
	}
	return checks
}

func ProvideHandlers(
	cfg *config.Config,
	log *applogger.Logger,
	lifecycle *usecase.SignalLifecycle,
	agg *usecase.SignalAggregator,
	gw *marketdata.Gateway,
	sched *scheduler.Scheduler,
	pm *usecase.PositionManager,
	hub *stream.Hub,
	q *queue.RedisQueue,
	checks map[string]api.HealthCheck,
) xhttp.Handlers {
	var jobOpts []api.JobsOption
	if q != nil {
		jobOpts = append(jobOpts, api.WithQueueStats(q))
	}
	return xhttp.Handlers{
		api.NewHealthHandler(checks),
		api.NewSignalsHandler(log, lifecycle, agg, cfg.Signals.Symbols),
		api.NewCandlesHandler(log, usecase.NewCandlesUseCase(gw)),
		api.NewJobsHandler(log, sched, jobOpts...),
		api.NewPositionsHandler(log, pm),
		hub,
	}
}

func ProvideHTTPServer(cfg *config.Config, log *applogger.Logger, handlers xhttp.Handlers) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handlers,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowedOrigins),
		xhttp.WithSlowThreshold(cfg.Server.SlowRequest),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithServerLogger(log),
	)
}

// ProvideApp assembles the application and attaches the error digest collector to the queue.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	sched *scheduler.Scheduler,
	hub *stream.Hub,
	q *queue.RedisQueue,
	consumer *pkgkafka.Consumer,
	candleHandlers []pkgkafka.MessageHandler,
	gw *marketdata.Gateway,
	c pkgcache.Service,
	producer *pkgkafka.Producer,
	client *redis.Client,
	ch *pkgch.Client,
	pg *postgres.Client,
) *server.App {
	opts := []server.Option{server.WithHub(hub), server.WithQueue(q)}
	if cfg.Scheduler.Enabled {
		opts = append(opts, server.WithScheduler(sched))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer, candleHandlers...))
	}

	if q != nil && cfg.Log.Digest.Enabled {
		log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:    cfg.Log.Digest.Interval,
			CountThreshold:  cfg.Log.Digest.CountThreshold,
			Topic:           jobs.ErrorDigestMsgType,
			IncludeWarnings: cfg.Log.Digest.IncludeWarnings,
			Publisher:       q,
		})
	}

	closers := []server.Closer{{Name: "marketdata", Close: gw.Close}}
	// a redis-backed cache owns the shared client and closes it
	cacheOwnsClient := false
	if cc, ok := c.(io.Closer); ok {
		closers = append(closers, server.Closer{Name: "cache", Close: cc.Close})
		cacheOwnsClient = cfg.Cache.Backend != "memory"
	}
	if producer != nil {
		closers = append(closers, server.Closer{Name: "kafka_producer", Close: producer.Close})
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if pg != nil {
		closers = append(closers, server.Closer{Name: "postgres", Close: func() error { pg.Close(); return nil }})
	}
	if client != nil && !cacheOwnsClient {
		closers = append(closers, server.Closer{Name: "redis", Close: client.Close})
	}
	opts = append(opts, server.WithClosers(closers...))

	return server.New(cfg, log, httpServer, opts...)
}

func parseTimeframes(ss []string) ([]models.Timeframe, error) {
	out := make([]models.Timeframe, 0, len(ss))
	for _, s := range ss {
		tf, err := models.ParseTimeframe(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tf)
	}
	return out, nil
}
