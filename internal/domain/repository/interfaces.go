package repository

import (
	"context"
	"errors"
	"time"

	"SignalDesk/internal/domain/models"
)

var ErrSignalNotFound = errors.New("signal not found")

// MarketDataProvider is a single connection to an upstream quote source.
type MarketDataProvider interface {
	Candles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.Candle, error)
	Price(ctx context.Context, symbol string, side models.PriceSide) (float64, error)
	Close() error
}

// MarketData is what the rest of the system sees: retried, cached, time-bounded access to quotes.
type MarketData interface {
	GetCandles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string, side models.PriceSide) (float64, error)
}

type SignalFilter struct {
	Symbol    string
	Timeframe models.Timeframe
	Statuses  []models.SignalStatus
	Limit     int
	Offset    int
}

// SignalStore persists signals. UpdateStatus is conditional: it only applies when the stored
// status still equals from, and reports whether a row changed.
type SignalStore interface {
	Save(ctx context.Context, s *models.Signal) error
	Get(ctx context.Context, id int64) (*models.Signal, error)
	Query(ctx context.Context, f SignalFilter) ([]models.Signal, int, error)
	ListOpen(ctx context.Context) ([]models.Signal, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.SignalStatus) (bool, error)
	BulkUpdateExpired(ctx context.Context, now time.Time) (int64, error)
}

type SignalPublisher interface {
	PublishSignalEvent(ctx context.Context, ev models.SignalEvent) error
}

type CandleWriter interface {
	InsertCandles(ctx context.Context, tf models.Timeframe, candles []models.Candle) error
}

type Metrics interface {
	RecordSignalGenerated(symbol, timeframe, signalType string)
	RecordAlgorithmError(algorithm string)
	RecordGatewayCall(op, result string)
	RecordCacheLookup(op string, hit bool)
	RecordStatusTransition(from, to string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
