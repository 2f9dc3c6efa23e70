package models

// Frame types exchanged over the signal stream.
const (
	FrameSubscribe          = "subscribe"
	FrameUnsubscribe        = "unsubscribe"
	FrameRequestSignals     = "request_signals"
	FrameAvailableSymbols   = "available_symbols"
	FrameSubscriptionUpdate = "subscription_update"
	FrameSignals            = "signals"
	FrameError              = "error"
)

// StreamRequest is any inbound client frame.
type StreamRequest struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
}

type AvailableSymbolsFrame struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type SubscriptionUpdateFrame struct {
	Type              string   `json:"type"`
	SubscribedSymbols []string `json:"subscribed_symbols"`
}

type SignalsFrame struct {
	Type      string                  `json:"type"`
	Data      map[string][]SignalView `json:"data"`
	Timestamp string                  `json:"timestamp"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
