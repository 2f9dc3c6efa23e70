package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	xhttp "SignalDesk/pkg/http"
)

// BridgeProvider talks to the trading-platform bridge over REST.
type BridgeProvider struct {
	baseURL string
	client  *xhttp.Client
}

type bridgeCandle struct {
	Time   int64   `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

type bridgeCandlesResponse struct {
	Symbol  string         `json:"symbol"`
	Candles []bridgeCandle `json:"candles"`
}

type bridgePriceResponse struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

// NewBridgeFactory returns a ProviderFactory that opens BridgeProviders against baseURL.
// The connection id travels as a header so the bridge can route to the right terminal.
func NewBridgeFactory(baseURL, apiKey string) ProviderFactory {
	return func(_ context.Context, connectionID string) (repository.MarketDataProvider, error) {
		if baseURL == "" {
			return nil, fmt.Errorf("bridge base url is empty")
		}
		opts := []xhttp.ClientOption{
			// the gateway enforces its own per-call deadline
			xhttp.WithTimeout(0),
			xhttp.WithHeader("X-Connection-ID", connectionID),
		}
		if apiKey != "" {
			opts = append(opts, xhttp.WithHeader("X-API-Key", apiKey))
		}
		return &BridgeProvider{
			baseURL: strings.TrimRight(baseURL, "/"),
			client:  xhttp.NewClient(opts...),
		}, nil
	}
}

func (b *BridgeProvider) Candles(ctx context.Context, symbol string, tf models.Timeframe, lookback int) ([]models.Candle, error) {
	var resp bridgeCandlesResponse
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		URL: b.baseURL + "/candles",
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"timeframe": {tf.String()},
			"count":     {strconv.Itoa(lookback)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("bridge candles: %w", err)
	}

	out := make([]models.Candle, 0, len(resp.Candles))
	for _, c := range resp.Candles {
		out = append(out, models.Candle{
			Bucket: time.Unix(c.Time, 0).UTC(),
			Symbol: symbol,
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		})
	}
	return out, nil
}

func (b *BridgeProvider) Price(ctx context.Context, symbol string, side models.PriceSide) (float64, error) {
	var resp bridgePriceResponse
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		URL:         b.baseURL + "/price",
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("bridge price: %w", err)
	}

	switch side {
	case models.PriceAsk:
		return resp.Ask, nil
	case models.PriceBid:
		return resp.Bid, nil
	default:
		if resp.Last > 0 {
			return resp.Last, nil
		}
		return (resp.Ask + resp.Bid) / 2, nil
	}
}

func (b *BridgeProvider) Close() error { return nil }
