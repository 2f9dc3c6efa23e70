package usecase

import (
	"context"
	"fmt"
	"strings"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
)

// CandlesUseCase serves candle windows through the market data gateway.
type CandlesUseCase struct {
	market domrepo.MarketData
}

func NewCandlesUseCase(market domrepo.MarketData) *CandlesUseCase {
	return &CandlesUseCase{market: market}
}

type GetCandlesParams struct {
	Symbol    string
	Timeframe models.Timeframe
	Lookback  int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return nil, models.NewValidationError("symbol required")
	}
	if !models.IsValidTimeframe(p.Timeframe) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidTimeframe, p.Timeframe)
	}
	if p.Lookback <= 0 {
		p.Lookback = 200
	}
	if p.Lookback > 5000 {
		p.Lookback = 5000
	}

	candles, err := uc.market.GetCandles(ctx, p.Symbol, p.Timeframe, p.Lookback)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}

	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
