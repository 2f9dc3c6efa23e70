package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
)

// ProviderFactory opens a provider connection for a connection id.
type ProviderFactory func(ctx context.Context, connectionID string) (repository.MarketDataProvider, error)

type GatewayConfig struct {
	ConnectionID string
	Attempts     int
	BaseDelay    time.Duration
	Timeout      time.Duration
	CacheTTL     time.Duration
}

// GatewayOption configures Gateway.
type GatewayOption func(*Gateway)

func WithConnectionID(id string) GatewayOption {
	return func(g *Gateway) { g.cfg.ConnectionID = id }
}

// WithRetry sets the attempt budget and the base of the exponential wait.
func WithRetry(attempts int, base time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.cfg.Attempts = attempts
		g.cfg.BaseDelay = base
	}
}

// WithCallTimeout bounds every single provider call.
func WithCallTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.cfg.Timeout = d }
}

func WithCache(c cache.Service, ttl time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.cache = c
		g.cfg.CacheTTL = ttl
	}
}

func WithMetrics(m repository.Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

func WithLogger(l *logger.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// Gateway implements repository.MarketData on top of a lazily opened provider connection.
type Gateway struct {
	factory   ProviderFactory
	cfg       GatewayConfig
	cache     cache.Service
	metrics   repository.Metrics
	logger    *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	mu        sync.Mutex
	providers map[string]repository.MarketDataProvider
}

func NewGateway(factory ProviderFactory, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		factory: factory,
		cfg: GatewayConfig{
			ConnectionID: "default",
			Attempts:     3,
			BaseDelay:    time.Second,
			Timeout:      10 * time.Second,
			CacheTTL:     60 * time.Second,
		},
		metrics:   metrics.Nop{},
		logger:    logger.NewNop(),
		sleep:     sleepCtx,
		providers: make(map[string]repository.MarketDataProvider),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cfg.Attempts < 1 {
		g.cfg.Attempts = 1
	}
	return g
}

func (g *Gateway) GetCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.Candle, error) {
	key := cache.GenerateKeyWithParams("candles", symbol, tf, lookback)

	var cached []models.Candle
	if g.cacheGet(ctx, "candles", key, &cached) {
		return cached, nil
	}

	var out []models.Candle
	err := g.call(ctx, "candles", symbol, func(ctx context.Context, p repository.MarketDataProvider) error {
		cs, err := p.Candles(ctx, symbol, tf, lookback)
		if err != nil {
			return err
		}
		out = normalizeCandles(cs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("candles %s %s: %w", symbol, tf, ErrNoData)
	}

	g.cacheSet(ctx, key, out)
	return out, nil
}

func (g *Gateway) GetCurrentPrice(ctx context.Context, symbol string, side models.PriceSide) (float64, error) {
	if !side.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	key := cache.GenerateKeyWithParams("price", symbol, side)

	var cached float64
	if g.cacheGet(ctx, "price", key, &cached) {
		return cached, nil
	}

	var price float64
	err := g.call(ctx, "price", symbol, func(ctx context.Context, p repository.MarketDataProvider) error {
		v, err := p.Price(ctx, symbol, side)
		if err != nil {
			return err
		}
		price = v
		return nil
	})
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("price %s %s: %w", symbol, side, ErrNoData)
	}

	g.cacheSet(ctx, key, price)
	return price, nil
}

// Invalidate drops every cached candle window and price for symbol.
func (g *Gateway) Invalidate(ctx context.Context, symbol string) error {
	if g.cache == nil {
		return nil
	}
	if err := g.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKeyWithParams("candles", symbol)+":")); err != nil {
		return err
	}
	return g.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKeyWithParams("price", symbol)+":"))
}

// Close closes every provider connection the gateway opened.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var errs []error
	for id, p := range g.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %s: %w", id, err))
		}
		delete(g.providers, id)
	}
	return errors.Join(errs...)
}

// call runs fn against the provider with a per-call timeout, retrying transient failures with
// exponential backoff.
func (g *Gateway) call(ctx context.Context, op, symbol string, fn func(context.Context, repository.MarketDataProvider) error) error {
	start := time.Now()
	defer func() { g.metrics.RecordLatency("gateway_"+op, time.Since(start).Seconds()) }()

	var lastErr error
	for attempt := 0; attempt < g.cfg.Attempts; attempt++ {
		if attempt > 0 {
			wait := g.cfg.BaseDelay * time.Duration(1<<(attempt-1))
			if err := g.sleep(ctx, wait); err != nil {
				return err
			}
		}

		p, err := g.provider(ctx)
		if err == nil {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
			err = fn(callCtx, p)
			cancel()
		}
		if err == nil {
			g.metrics.RecordGatewayCall(op, "ok")
			return nil
		}

		if ctx.Err() != nil {
			g.metrics.RecordGatewayCall(op, "cancelled")
			return ctx.Err()
		}
		if !IsTransient(err) {
			g.metrics.RecordGatewayCall(op, "error")
			return fmt.Errorf("%s %s: %w", op, symbol, err)
		}
		if isConnectivity(err) && p != nil {
			g.drop(p)
		}

		lastErr = err
		g.metrics.RecordGatewayCall(op, "retry")
		g.logger.Warn("market data call failed",
			logger.String("op", op),
			logger.String("symbol", symbol),
			logger.Int("attempt", attempt+1),
			logger.Error(err))
	}

	g.metrics.RecordGatewayCall(op, "exhausted")
	return &ConnectivityError{Op: op, Symbol: symbol, Attempts: g.cfg.Attempts, Err: lastErr}
}

func (g *Gateway) provider(ctx context.Context) (repository.MarketDataProvider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.providers[g.cfg.ConnectionID]; ok {
		return p, nil
	}
	p, err := g.factory(ctx, g.cfg.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	g.providers[g.cfg.ConnectionID] = p
	g.logger.Info("market data provider connected", logger.String("connection_id", g.cfg.ConnectionID))
	return p, nil
}

// drop closes failed and forgets it, unless another call already replaced it.
func (g *Gateway) drop(failed repository.MarketDataProvider) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.providers[g.cfg.ConnectionID]
	if !ok || p != failed {
		return
	}
	delete(g.providers, g.cfg.ConnectionID)
	if err := p.Close(); err != nil {
		g.logger.Debug("close dropped provider", logger.Error(err))
	}
}

func (g *Gateway) cacheGet(ctx context.Context, op, key string, dest interface{}) bool {
	if g.cache == nil {
		return false
	}
	err := g.cache.Get(ctx, key, dest)
	hit := err == nil
	g.metrics.RecordCacheLookup(op, hit)
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		g.logger.Warn("market data cache read failed", logger.String("key", key), logger.Error(err))
	}
	return hit
}

func (g *Gateway) cacheSet(ctx context.Context, key string, v interface{}) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, v, g.cfg.CacheTTL); err != nil {
		g.logger.Warn("market data cache write failed", logger.String("key", key), logger.Error(err))
	}
}

// normalizeCandles sorts by bucket and keeps the first bar of any duplicated timestamp.
func normalizeCandles(cs []models.Candle) []models.Candle {
	out := make([]models.Candle, len(cs))
	copy(out, cs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })

	dedup := out[:0]
	for i, c := range out {
		if i > 0 && c.Bucket.Equal(dedup[len(dedup)-1].Bucket) {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
