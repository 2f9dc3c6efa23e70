package api

import (
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

type CandlesHandler struct {
	log *logger.Logger
	uc  *usecase.CandlesUseCase
}

func NewCandlesHandler(log *logger.Logger, uc *usecase.CandlesUseCase) *CandlesHandler {
	return &CandlesHandler{log: log, uc: uc}
}

func (h *CandlesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/candles", h.Candles)
}

func (h *CandlesHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf, err := models.ParseTimeframe(req.Timeframe)
	if err != nil {
		return errorResponse(c, h.log, err)
	}

	res, err := h.uc.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		Timeframe: tf,
		Lookback:  req.Lookback,
	})
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}
