package usecase

import (
	"context"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	svccache "SignalDesk/internal/service/cache"
	"SignalDesk/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// SignalFeed computes live signal views for stream subscribers. Results per symbol and
// timeframe are memoized for ttl so many clients watching one symbol share one evaluation.
type SignalFeed struct {
	eval        Evaluator
	pricer      *Pricer
	memo        *svccache.TTLCache[*models.SignalView]
	ttl         time.Duration
	concurrency int
	log         *logger.Logger
}

type FeedOption func(*SignalFeed)

func WithFeedTTL(d time.Duration) FeedOption {
	return func(f *SignalFeed) { f.ttl = d }
}

func WithFeedConcurrency(n int) FeedOption {
	return func(f *SignalFeed) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

func WithFeedLogger(l *logger.Logger) FeedOption {
	return func(f *SignalFeed) { f.log = l }
}

func NewSignalFeed(eval Evaluator, pricer *Pricer, opts ...FeedOption) *SignalFeed {
	f := &SignalFeed{
		eval:        eval,
		pricer:      pricer,
		memo:        svccache.NewTTLCache[*models.SignalView](),
		ttl:         5 * time.Second,
		concurrency: 8,
		log:         logger.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Snapshot maps each symbol that currently has at least one signal to its views, in the
// order of tfs. Symbols whose data is unavailable are left out.
func (f *SignalFeed) Snapshot(ctx context.Context, symbols []string, tfs []models.Timeframe) (map[string][]models.SignalView, error) {
	out := make(map[string][]models.SignalView)
	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(f.concurrency)

	for _, symbol := range symbols {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			var views []models.SignalView
			for _, tf := range tfs {
				if v := f.view(ctx, symbol, tf); v != nil {
					views = append(views, *v)
				}
			}
			if len(views) > 0 {
				mu.Lock()
				out[symbol] = views
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (f *SignalFeed) view(ctx context.Context, symbol string, tf models.Timeframe) *models.SignalView {
	key := symbol + ":" + string(tf)
	if v, ok := f.memo.Get(key); ok {
		return v
	}

	sig, err := f.eval.Evaluate(ctx, symbol, tf)
	if err != nil {
		f.log.Debug("feed evaluation failed", logger.String("symbol", symbol), logger.String("timeframe", string(tf)), logger.Error(err))
		return nil
	}
	var v *models.SignalView
	if sig != nil {
		q, err := f.pricer.Quote(ctx, sig)
		if err != nil {
			f.log.Debug("feed pricing failed", logger.String("symbol", symbol), logger.Error(err))
			return nil
		}
		v = &models.SignalView{
			SignalType:          sig.SignalType,
			Confidence:          sig.Confidence,
			AlgorithmsTriggered: sig.AlgorithmsTriggered,
			EntryPrice:          q.Levels.Entry,
			StopLoss:            q.Levels.StopLoss,
			TakeProfit:          q.Levels.TakeProfit,
			Timeframe:           tf,
		}
	}
	f.memo.Set(key, v, f.ttl)
	return v
}
