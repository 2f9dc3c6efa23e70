package usecase

import (
	"sort"
	"strings"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

// PositionManager tracks open positions in memory and sizes new ones by fixed fractional risk.
type PositionManager struct {
	mu           sync.Mutex
	positions    map[string]models.Position
	maxPositions int
	riskPerTrade decimal.Decimal
	now          func() time.Time
}

func NewPositionManager(maxPositions int, riskPerTrade float64) *PositionManager {
	if maxPositions <= 0 {
		maxPositions = 10
	}
	if riskPerTrade <= 0 {
		riskPerTrade = 0.02
	}
	return &PositionManager{
		positions:    make(map[string]models.Position),
		maxPositions: maxPositions,
		riskPerTrade: decimal.NewFromFloat(riskPerTrade),
		now:          time.Now,
	}
}

func (m *PositionManager) RiskPerTrade() float64 {
	return m.riskPerTrade.InexactFloat64()
}

// CanOpen reports whether another position may be opened for symbol.
func (m *PositionManager) CanOpen(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canOpenLocked(normalizeSymbol(symbol)) == nil
}

func (m *PositionManager) canOpenLocked(symbol string) error {
	if _, ok := m.positions[symbol]; ok {
		return ErrPositionExists
	}
	if len(m.positions) >= m.maxPositions {
		return ErrPositionLimit
	}
	return nil
}

// PositionSize = balance * risk_per_trade / |entry - stop|, 0 when entry equals stop.
func (m *PositionManager) PositionSize(balance, entry, stop float64) float64 {
	dist := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stop)).Abs()
	if dist.IsZero() {
		return 0
	}
	return decimal.NewFromFloat(balance).Mul(m.riskPerTrade).Div(dist).InexactFloat64()
}

// Open sizes and records a position. The limit check and the insert share one critical section.
func (m *PositionManager) Open(symbol string, entry, stop, balance float64) (models.Position, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return models.Position{}, models.NewValidationError("symbol is required")
	}
	if entry <= 0 || stop <= 0 || balance <= 0 {
		return models.Position{}, models.NewValidationError("entry, stop and balance must be positive")
	}
	size := m.PositionSize(balance, entry, stop)
	if size <= 0 {
		return models.Position{}, models.NewValidationError("stop must differ from entry")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.canOpenLocked(symbol); err != nil {
		return models.Position{}, err
	}
	p := models.Position{
		Symbol:       symbol,
		EntryPrice:   entry,
		StopLoss:     stop,
		PositionSize: size,
		OpenedAt:     m.now().UTC(),
	}
	m.positions[symbol] = p
	return p, nil
}

func (m *PositionManager) Close(symbol string) error {
	symbol = normalizeSymbol(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.positions[symbol]; !ok {
		return ErrPositionNotFound
	}
	delete(m.positions, symbol)
	return nil
}

// Positions returns a snapshot ordered by symbol.
func (m *PositionManager) Positions() []models.Position {
	m.mu.Lock()
	out := make([]models.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
