package usecase

import (
	"context"
	"fmt"
	"math"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/services/indicators"
)

// Stop distance bases.
const (
	StopBasisPrice = "price"
	StopBasisATR   = "atr"
)

// RiskLevels are the priced exit levels of a signal.
type RiskLevels struct {
	Entry      float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	RiskReward float64 `json:"risk_reward_ratio"`
}

// ComputeRiskLevels places stop and target around entry. The stop sits unit*riskPct away from
// entry and the target rewardRatio times further on the other side. A zero unit means the
// stop is a percentage of entry.
func ComputeRiskLevels(side models.SignalType, entry, riskPct, unit, rewardRatio float64) (RiskLevels, error) {
	if !side.Actionable() {
		return RiskLevels{}, models.NewValidationError("cannot price a %s signal", side)
	}
	if entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		return RiskLevels{}, models.NewValidationError("entry price must be positive, got %v", entry)
	}
	if riskPct <= 0 || rewardRatio <= 0 {
		return RiskLevels{}, models.NewValidationError("risk percentage and reward ratio must be positive")
	}
	if unit < 0 {
		return RiskLevels{}, models.NewValidationError("volatility unit must not be negative")
	}
	if unit == 0 {
		unit = entry
	}

	d := unit * riskPct
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return RiskLevels{}, models.NewValidationError("stop distance must be positive, got %v", d)
	}
	lv := RiskLevels{Entry: entry}
	if side == models.SignalBuy {
		lv.StopLoss = entry - d
		lv.TakeProfit = entry + d*rewardRatio
	} else {
		lv.StopLoss = entry + d
		lv.TakeProfit = entry - d*rewardRatio
	}
	lv.RiskReward = RiskReward(entry, lv.StopLoss, lv.TakeProfit)
	return lv, nil
}

// RiskReward is |tp-entry| / |sl-entry|, or 0 when the stop distance is 0.
func RiskReward(entry, sl, tp float64) float64 {
	risk := math.Abs(sl - entry)
	if risk == 0 {
		return 0
	}
	return math.Abs(tp-entry) / risk
}

// EntrySide is the quote a new position would fill at: ask to buy, bid to sell.
func EntrySide(t models.SignalType) models.PriceSide {
	if t == models.SignalSell {
		return models.PriceBid
	}
	return models.PriceAsk
}

type PricerConfig struct {
	RiskPercentage float64
	RewardRatio    float64
	StopBasis      string
	ATRPeriod      int
	ATRMultiplier  float64
	Lookback       int
}

// Quote is a fused signal with its entry and exit levels.
type Quote struct {
	Signal         *models.TradingSignal
	VolatilityUnit float64
	Levels         RiskLevels
}

// Pricer fetches the entry quote for a fused signal and derives its levels.
type Pricer struct {
	market domrepo.MarketData
	cfg    PricerConfig
}

func NewPricer(market domrepo.MarketData, cfg PricerConfig) *Pricer {
	if cfg.RiskPercentage <= 0 {
		cfg.RiskPercentage = 0.02
	}
	if cfg.RewardRatio <= 0 {
		cfg.RewardRatio = 2
	}
	if cfg.StopBasis == "" {
		cfg.StopBasis = StopBasisPrice
	}
	if cfg.ATRPeriod <= 0 {
		cfg.ATRPeriod = 14
	}
	if cfg.ATRMultiplier <= 0 {
		cfg.ATRMultiplier = 50
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 300
	}
	return &Pricer{market: market, cfg: cfg}
}

func (p *Pricer) RiskPercentage() float64 { return p.cfg.RiskPercentage }

func (p *Pricer) RewardRatio() float64 { return p.cfg.RewardRatio }

func (p *Pricer) Quote(ctx context.Context, sig *models.TradingSignal) (*Quote, error) {
	entry, err := p.market.GetCurrentPrice(ctx, sig.Symbol, EntrySide(sig.SignalType))
	if err != nil {
		return nil, fmt.Errorf("entry price %s: %w", sig.Symbol, err)
	}

	var unit float64
	if p.cfg.StopBasis == StopBasisATR {
		unit, err = p.atrUnit(ctx, sig.Symbol, sig.Timeframe)
		if err != nil {
			return nil, err
		}
	}

	lv, err := ComputeRiskLevels(sig.SignalType, entry, p.cfg.RiskPercentage, unit, p.cfg.RewardRatio)
	if err != nil {
		return nil, err
	}
	return &Quote{Signal: sig, VolatilityUnit: unit, Levels: lv}, nil
}

// atrUnit reads the window through the same cache key the aggregator used. It returns 0 (fall
// back to a percent-of-price stop) when the window is too short for the ATR period.
func (p *Pricer) atrUnit(ctx context.Context, symbol string, tf models.Timeframe) (float64, error) {
	cs, err := p.market.GetCandles(ctx, symbol, tf, p.cfg.Lookback)
	if err != nil {
		return 0, fmt.Errorf("atr candles %s: %w", symbol, err)
	}
	atr := indicators.Last(indicators.ATR(models.Highs(cs), models.Lows(cs), models.Closes(cs), p.cfg.ATRPeriod))
	if math.IsNaN(atr) || atr <= 0 {
		return 0, nil
	}
	return atr * p.cfg.ATRMultiplier, nil
}
