package models

// Requests for the HTTP endpoints. Defined in domain for consistency and reuse.

type ListSignalsRequest struct {
	Symbol    string `query:"symbol" json:"symbol"`
	Timeframe string `query:"timeframe" json:"timeframe" validate:"omitempty,timeframe"`
	Status    string `query:"status" json:"status" validate:"omitempty,oneof=PENDING ACTIVE TRIGGERED EXPIRED INVALIDATED"`
	Page      int    `query:"page" json:"page" default:"1" validate:"gte=1"`
	PageSize  int    `query:"page_size" json:"page_size" default:"10" validate:"gte=1,lte=1000"`
}

type SignalDetailRequest struct {
	ID int64 `param:"id" validate:"required,gt=0"`
}

type EvaluateRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1h" validate:"timeframe"`
}

type CandlesRequest struct {
	Symbol    string `query:"symbol" json:"symbol" validate:"required"`
	Timeframe string `query:"timeframe" json:"timeframe" default:"1h" validate:"timeframe"`
	Lookback  int    `query:"lookback" json:"lookback" default:"200" validate:"gte=1,lte=5000"`
}

type GenerateJobRequest struct {
	Timeframe string `json:"timeframe" validate:"required,timeframe"`
}

type OpenPositionRequest struct {
	Symbol     string  `json:"symbol" validate:"required"`
	EntryPrice float64 `json:"entry_price" validate:"gt=0"`
	StopLoss   float64 `json:"stop_loss" validate:"gt=0"`
	Balance    float64 `json:"balance" validate:"gt=0"`
}

type ClosePositionRequest struct {
	Symbol string `param:"symbol" validate:"required"`
}

type PositionSizeRequest struct {
	Balance float64 `query:"balance" json:"balance" validate:"gt=0"`
	Entry   float64 `query:"entry" json:"entry" validate:"gt=0"`
	Stop    float64 `query:"stop" json:"stop" validate:"gt=0"`
}

type PositionSizeResponse struct {
	Balance      float64 `json:"balance"`
	Entry        float64 `json:"entry"`
	Stop         float64 `json:"stop"`
	RiskPerTrade float64 `json:"risk_per_trade"`
	PositionSize float64 `json:"position_size"`
}
