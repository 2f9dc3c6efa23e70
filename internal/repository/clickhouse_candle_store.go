package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgch "SignalDesk/pkg/clickhouse"
	applogger "SignalDesk/pkg/logger"
)

// CandleSchema creates the candles table. ReplacingMergeTree keeps the latest row per bar.
var CandleSchema = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		symbol LowCardinality(String),
		timeframe LowCardinality(String),
		bucket DateTime64(3, 'UTC'),
		open Float64,
		high Float64,
		low Float64,
		close Float64,
		volume Float64,
		inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
	) ENGINE = ReplacingMergeTree(inserted_at)
	ORDER BY (symbol, timeframe, bucket)`,
}

const insertCandleQuery = `INSERT INTO candles (symbol, timeframe, bucket, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// CHCandleStore reads and writes OHLCV bars in ClickHouse. It doubles as a MarketDataProvider
// when market_data.provider is clickhouse.
type CHCandleStore struct {
	client *pkgch.Client
	db     *sql.DB
	log    *applogger.Logger
}

func NewCHCandleStore(client *pkgch.Client, log *applogger.Logger) *CHCandleStore {
	if log == nil {
		log = applogger.NewNop()
	}
	return &CHCandleStore{client: client, db: client.DB(), log: log}
}

// Candles returns the latest lookback bars in ascending bucket order.
func (s *CHCandleStore) Candles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.Candle, error) {
	if lookback <= 0 {
		return []models.Candle{}, nil
	}
	q := `
		SELECT bucket, open, high, low, close, volume
		FROM candles FINAL
		WHERE symbol = ? AND timeframe = ?
		ORDER BY bucket DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), lookback)
	if err != nil {
		s.log.Error("clickhouse candles query failed",
			applogger.String("symbol", symbol),
			applogger.String("timeframe", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, lookback)
	for rows.Next() {
		c := models.Candle{Symbol: symbol}
		if err := rows.Scan(&c.Bucket, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Bucket = c.Bucket.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Price is the close of the most recent bar of any timeframe. Bid and ask are not stored,
// so every side resolves to the same value.
func (s *CHCandleStore) Price(ctx context.Context, symbol string, side models.PriceSide) (float64, error) {
	if !side.Valid() {
		return 0, fmt.Errorf("invalid price side %q", side)
	}
	var price float64
	err := s.db.QueryRowContext(ctx, `
		SELECT close FROM candles FINAL
		WHERE symbol = ?
		ORDER BY bucket DESC
		LIMIT 1`, symbol).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("no candles for %s", symbol)
	}
	if err != nil {
		return 0, fmt.Errorf("query price: %w", err)
	}
	return price, nil
}

// Close is a no-op; the pool belongs to the ClickHouse client.
func (s *CHCandleStore) Close() error { return nil }

// InsertCandles writes bars as a single block.
func (s *CHCandleStore) InsertCandles(ctx context.Context, tf models.Timeframe, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []any{c.Symbol, string(tf), c.Bucket.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume})
	}

	start := time.Now()
	if err := s.client.InsertBatch(ctx, insertCandleQuery, rows); err != nil {
		s.log.Error("clickhouse candle insert failed",
			applogger.String("timeframe", string(tf)),
			applogger.Int("rows", len(rows)),
			applogger.Error(err),
		)
		return persistErr("insert_candles", err)
	}
	s.log.Debug("candles inserted",
		applogger.String("timeframe", string(tf)),
		applogger.Int("rows", len(rows)),
		applogger.Duration("took_ms", time.Since(start)),
	)
	return nil
}

var (
	_ domrepo.MarketDataProvider = (*CHCandleStore)(nil)
	_ domrepo.CandleWriter       = (*CHCandleStore)(nil)
)
