package models

import "time"

// SignalStatus is the lifecycle state of a persisted Signal.
type SignalStatus string

const (
	StatusPending     SignalStatus = "PENDING"
	StatusActive      SignalStatus = "ACTIVE"
	StatusTriggered   SignalStatus = "TRIGGERED"
	StatusExpired     SignalStatus = "EXPIRED"
	StatusInvalidated SignalStatus = "INVALIDATED"
)

// OpenStatuses are the states a sweep still re-evaluates.
var OpenStatuses = []SignalStatus{StatusPending, StatusActive}

// IsTerminal reports whether no further transition is allowed.
func (s SignalStatus) IsTerminal() bool {
	switch s {
	case StatusTriggered, StatusExpired, StatusInvalidated:
		return true
	default:
		return false
	}
}

func (s SignalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusTriggered, StatusExpired, StatusInvalidated:
		return true
	default:
		return false
	}
}

// Signal is the persisted trade recommendation with its risk parameters.
type Signal struct {
	ID                  int64        `json:"id"`
	Symbol              string       `json:"symbol"`
	Timeframe           Timeframe    `json:"timeframe"`
	SignalType          SignalType   `json:"signal_type"`
	Confidence          float64      `json:"confidence"`
	AlgorithmsTriggered []string     `json:"algorithms_triggered"`
	EntryPrice          float64      `json:"entry_price"`
	StopLoss            float64      `json:"stop_loss"`
	TakeProfit          float64      `json:"take_profit"`
	RiskRewardRatio     float64      `json:"risk_reward_ratio"`
	Status              SignalStatus `json:"status"`
	GeneratedAt         time.Time    `json:"generated_at"`
	ValidUntil          time.Time    `json:"valid_until"`
}

// Expired reports whether the validity window has passed at now.
func (s *Signal) Expired(now time.Time) bool {
	return now.After(s.ValidUntil)
}

// View projects the fields pushed to stream subscribers.
func (s *Signal) View() SignalView {
	return SignalView{
		SignalType:          s.SignalType,
		Confidence:          s.Confidence,
		AlgorithmsTriggered: s.AlgorithmsTriggered,
		EntryPrice:          s.EntryPrice,
		StopLoss:            s.StopLoss,
		TakeProfit:          s.TakeProfit,
		Timeframe:           s.Timeframe,
	}
}

// SignalView is the client-facing projection of a signal.
type SignalView struct {
	SignalType          SignalType `json:"signal_type"`
	Confidence          float64    `json:"confidence"`
	AlgorithmsTriggered []string   `json:"algorithms_triggered"`
	EntryPrice          float64    `json:"entry_price"`
	StopLoss            float64    `json:"stop_loss"`
	TakeProfit          float64    `json:"take_profit"`
	Timeframe           Timeframe  `json:"timeframe"`
}

// Signal lifecycle event names.
const (
	EventSignalCreated       = "signal.created"
	EventSignalStatusChanged = "signal.status_changed"
)

// SignalEvent is published whenever a signal is created or changes status.
type SignalEvent struct {
	Event          string       `json:"event"`
	Signal         Signal       `json:"signal"`
	PreviousStatus SignalStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
}
