package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	svcmetrics "SignalDesk/internal/service/metrics"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
)

// CreateSignalParams carries a fused signal plus the quote it is priced from.
type CreateSignalParams struct {
	Symbol         string            `json:"symbol"`
	Timeframe      models.Timeframe  `json:"timeframe"`
	SignalType     models.SignalType `json:"signal_type"`
	Confidence     float64           `json:"confidence"`
	Algorithms     []string          `json:"algorithms"`
	CurrentPrice   float64           `json:"current_price"`
	RiskPercentage float64           `json:"risk_percentage"`
	VolatilityUnit float64           `json:"volatility_unit"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

type LifecycleOption func(*SignalLifecycle)

func WithPublisher(p domrepo.SignalPublisher) LifecycleOption {
	return func(l *SignalLifecycle) {
		if p != nil {
			l.publisher = p
		}
	}
}

func WithRewardRatio(r float64) LifecycleOption {
	return func(l *SignalLifecycle) {
		if r > 0 {
			l.rewardRatio = r
		}
	}
}

func WithLifecycleMetrics(m domrepo.Metrics) LifecycleOption {
	return func(l *SignalLifecycle) { l.metrics = m }
}

func WithLifecycleLogger(log *logger.Logger) LifecycleOption {
	return func(l *SignalLifecycle) { l.log = log }
}

// SignalLifecycle creates signals and moves them through their statuses.
type SignalLifecycle struct {
	store       domrepo.SignalStore
	market      domrepo.MarketData
	publisher   domrepo.SignalPublisher
	metrics     domrepo.Metrics
	log         *logger.Logger
	rewardRatio float64
	locks       *keyedMutex
	now         func() time.Time
}

func NewSignalLifecycle(store domrepo.SignalStore, market domrepo.MarketData, opts ...LifecycleOption) *SignalLifecycle {
	svcmetrics.Register()
	l := &SignalLifecycle{
		store:       store,
		market:      market,
		publisher:   nopPublisher{},
		metrics:     metrics.Nop{},
		log:         logger.NewNop(),
		rewardRatio: 2,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SignalLifecycle) CreateSignal(ctx context.Context, p CreateSignalParams) (*models.Signal, error) {
	if strings.TrimSpace(p.Symbol) == "" {
		return nil, models.NewValidationError("symbol is required")
	}
	if !models.IsValidTimeframe(p.Timeframe) {
		return nil, models.NewValidationError("invalid timeframe %q", p.Timeframe)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return nil, models.NewValidationError("confidence must be within [0,1], got %v", p.Confidence)
	}
	lv, err := ComputeRiskLevels(p.SignalType, p.CurrentPrice, p.RiskPercentage, p.VolatilityUnit, l.rewardRatio)
	if err != nil {
		return nil, err
	}

	generated := p.GeneratedAt
	if generated.IsZero() {
		generated = l.now()
	}
	generated = generated.UTC()

	sig := &models.Signal{
		Symbol:              p.Symbol,
		Timeframe:           p.Timeframe,
		SignalType:          p.SignalType,
		Confidence:          p.Confidence,
		AlgorithmsTriggered: append([]string(nil), p.Algorithms...),
		EntryPrice:          lv.Entry,
		StopLoss:            lv.StopLoss,
		TakeProfit:          lv.TakeProfit,
		RiskRewardRatio:     lv.RiskReward,
		Status:              models.StatusPending,
		GeneratedAt:         generated,
		ValidUntil:          generated.Add(p.Timeframe.Validity()),
	}
	if err := l.store.Save(ctx, sig); err != nil {
		l.metrics.RecordError("signal_save")
		return nil, fmt.Errorf("save signal: %w", err)
	}

	l.log.Info("signal created",
		logger.Int64("id", sig.ID),
		logger.String("symbol", sig.Symbol),
		logger.String("timeframe", string(sig.Timeframe)),
		logger.String("type", string(sig.SignalType)),
		logger.Float64("confidence", sig.Confidence),
	)
	l.publish(ctx, models.SignalEvent{Event: models.EventSignalCreated, Signal: *sig, OccurredAt: l.now().UTC()})
	return sig, nil
}

// NextStatus applies the transition rules. Expiry is checked first; terminal states never move.
func NextStatus(sig *models.Signal, price float64, now time.Time) models.SignalStatus {
	if sig.Status.IsTerminal() {
		return sig.Status
	}
	if sig.Expired(now) {
		return models.StatusExpired
	}
	switch sig.SignalType {
	case models.SignalBuy:
		if price >= sig.TakeProfit {
			return models.StatusTriggered
		}
		if price <= sig.StopLoss {
			return models.StatusInvalidated
		}
	case models.SignalSell:
		if price <= sig.TakeProfit {
			return models.StatusTriggered
		}
		if price >= sig.StopLoss {
			return models.StatusInvalidated
		}
	}
	if sig.Status == models.StatusPending {
		return models.StatusActive
	}
	return sig.Status
}

// UpdateStatus re-evaluates sig against price and persists only a real change. Concurrent
// updates of the same signal are serialized, and the store update is conditional on the
// status sig was loaded with. It reports whether this call changed the row.
func (l *SignalLifecycle) UpdateStatus(ctx context.Context, sig *models.Signal, price float64, now time.Time) (bool, error) {
	unlock := l.locks.Lock(sig.ID)
	defer unlock()

	prev := sig.Status
	next := NextStatus(sig, price, now)
	if next == prev {
		return false, nil
	}

	ok, err := l.store.UpdateStatus(ctx, sig.ID, prev, next)
	if err != nil {
		l.metrics.RecordError("signal_update")
		return false, fmt.Errorf("update signal %d: %w", sig.ID, err)
	}
	if !ok {
		l.log.Debug("signal status changed concurrently", logger.Int64("id", sig.ID), logger.String("expected", string(prev)))
		return false, nil
	}

	sig.Status = next
	l.metrics.RecordStatusTransition(string(prev), string(next))
	l.publish(ctx, models.SignalEvent{
		Event:          models.EventSignalStatusChanged,
		Signal:         *sig,
		PreviousStatus: prev,
		OccurredAt:     now.UTC(),
	})
	return true, nil
}

// CleanupExpired bulk-expires every open signal past its window. Running it twice changes nothing
// the second time.
func (l *SignalLifecycle) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := l.store.BulkUpdateExpired(ctx, now)
	if err != nil {
		l.metrics.RecordError("signal_cleanup")
		return 0, fmt.Errorf("cleanup expired: %w", err)
	}
	if n > 0 {
		l.log.Info("expired signals cleaned up", logger.Int64("count", n))
	}
	return n, nil
}

type SweepResult struct {
	Checked int   `json:"checked"`
	Updated int   `json:"updated"`
	Failed  int   `json:"failed"`
	Expired int64 `json:"expired"`
}

// Sweep re-evaluates every open signal against the last price of its symbol. A failure on one
// signal is logged and counted; the sweep moves on.
func (l *SignalLifecycle) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	start := time.Now()
	defer func() { svcmetrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	var res SweepResult
	open, err := l.store.ListOpen(ctx)
	if err != nil {
		return res, fmt.Errorf("list open signals: %w", err)
	}

	prices := make(map[string]float64)
	failed := make(map[string]bool)
	for i := range open {
		sig := &open[i]
		res.Checked++

		if failed[sig.Symbol] {
			res.Failed++
			continue
		}
		price, ok := prices[sig.Symbol]
		if !ok {
			price, err = l.market.GetCurrentPrice(ctx, sig.Symbol, models.PriceLast)
			if err != nil {
				l.log.Warn("sweep price unavailable", logger.String("symbol", sig.Symbol), logger.Error(err))
				failed[sig.Symbol] = true
				res.Failed++
				continue
			}
			prices[sig.Symbol] = price
		}

		changed, err := l.UpdateStatus(ctx, sig, price, now)
		if err != nil {
			l.log.Error("sweep update failed", logger.Int64("id", sig.ID), logger.String("symbol", sig.Symbol), logger.Error(err))
			res.Failed++
			continue
		}
		if changed {
			res.Updated++
		}
	}

	res.Expired, err = l.CleanupExpired(ctx, now)
	if err != nil {
		l.log.Error("sweep cleanup failed", logger.Error(err))
	}

	l.log.Info("sweep finished",
		logger.Int("checked", res.Checked),
		logger.Int("updated", res.Updated),
		logger.Int("failed", res.Failed),
		logger.Int64("expired", res.Expired),
		logger.Duration("took_ms", time.Since(start)),
	)
	return res, err
}

// SignalPage is one page of signal history.
type SignalPage struct {
	Signals  []models.Signal `json:"signals"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

func (l *SignalLifecycle) List(ctx context.Context, req models.ListSignalsRequest) (*SignalPage, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = 10
	}
	if req.PageSize > 1000 {
		req.PageSize = 1000
	}

	f := domrepo.SignalFilter{
		Symbol: strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Limit:  req.PageSize,
		Offset: (req.Page - 1) * req.PageSize,
	}
	if req.Timeframe != "" {
		tf, err := models.ParseTimeframe(req.Timeframe)
		if err != nil {
			return nil, err
		}
		f.Timeframe = tf
	}
	if req.Status != "" {
		st := models.SignalStatus(strings.ToUpper(req.Status))
		if !st.Valid() {
			return nil, models.NewValidationError("invalid status %q", req.Status)
		}
		f.Statuses = []models.SignalStatus{st}
	}

	rows, total, err := l.store.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	return &SignalPage{Signals: rows, Total: total, Page: req.Page, PageSize: req.PageSize}, nil
}

func (l *SignalLifecycle) Get(ctx context.Context, id int64) (*models.Signal, error) {
	return l.store.Get(ctx, id)
}

func (l *SignalLifecycle) publish(ctx context.Context, ev models.SignalEvent) {
	if err := l.publisher.PublishSignalEvent(ctx, ev); err != nil {
		l.metrics.RecordError("signal_publish")
		l.log.Warn("signal event publish failed",
			logger.String("event", ev.Event),
			logger.Int64("id", ev.Signal.ID),
			logger.Error(err),
		)
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishSignalEvent(context.Context, models.SignalEvent) error { return nil }
