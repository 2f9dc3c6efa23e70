package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	pkgkafka "SignalDesk/pkg/kafka"
)

// CacheInvalidator drops cached market data for a symbol.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// KafkaCandlesHandler consumes closed bars from Kafka, writes them to the candle store and
// evicts the gateway cache for the symbol.
type KafkaCandlesHandler struct {
	topic   string
	writer  domrepo.CandleWriter
	cache   CacheInvalidator
	metrics domrepo.Metrics
}

func NewKafkaCandlesHandler(topic string, writer domrepo.CandleWriter, cache CacheInvalidator, metrics domrepo.Metrics) *KafkaCandlesHandler {
	return &KafkaCandlesHandler{topic: topic, writer: writer, cache: cache, metrics: metrics}
}

func (h *KafkaCandlesHandler) Topic() string { return h.topic }

type candleMessage struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"timeframe"`
	T         int64   `json:"t"`
	O         float64 `json:"o"`
	H         float64 `json:"h"`
	L         float64 `json:"l"`
	C         float64 `json:"c"`
	V         float64 `json:"v"`
}

// incoming message schema: {symbol, timeframe, t, o, h, l, c, v}, t in seconds or milliseconds
func (h *KafkaCandlesHandler) Handle(ctx context.Context, b []byte) error {
	var m candleMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	tf, err := models.ParseTimeframe(m.Timeframe)
	if err != nil {
		h.metrics.RecordError("consumer_timeframe")
		return err
	}
	if m.Symbol == "" || m.T <= 0 || m.H < m.L {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("invalid candle %q at %d", m.Symbol, m.T)
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	bucket := time.Unix(m.T, 0).UTC()
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(bucket).Seconds())

	symbol := strings.ToUpper(m.Symbol)
	start := time.Now()
	err = h.writer.InsertCandles(ctx, tf, []models.Candle{{
		Bucket: bucket,
		Symbol: symbol,
		Open:   m.O,
		High:   m.H,
		Low:    m.L,
		Close:  m.C,
		Volume: m.V,
	}})
	h.metrics.RecordLatency("ch_insert_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, symbol); err != nil {
			h.metrics.RecordError("consumer_invalidate")
		}
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaCandlesHandler)(nil)
