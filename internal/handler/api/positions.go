package api

import (
	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

type PositionsHandler struct {
	log *logger.Logger
	pm  *usecase.PositionManager
}

func NewPositionsHandler(log *logger.Logger, pm *usecase.PositionManager) *PositionsHandler {
	return &PositionsHandler{log: log, pm: pm}
}

func (h *PositionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/positions")
	g.GET("", h.List)
	g.POST("", h.Open)
	g.GET("/size", h.Size)
	g.DELETE("/:symbol", h.Close)
}

func (h *PositionsHandler) List(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.pm.Positions())
}

func (h *PositionsHandler) Open(c echo.Context) error {
	req := &models.OpenPositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	pos, err := h.pm.Open(req.Symbol, req.EntryPrice, req.StopLoss, req.Balance)
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	h.log.Info("position opened",
		logger.String("symbol", pos.Symbol),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("size", pos.PositionSize),
	)
	return xhttp.CreatedResponse(c, pos)
}

func (h *PositionsHandler) Close(c echo.Context) error {
	req := &models.ClosePositionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.pm.Close(req.Symbol); err != nil {
		return errorResponse(c, h.log, err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *PositionsHandler) Size(c echo.Context) error {
	req := &models.PositionSizeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, models.PositionSizeResponse{
		Balance:      req.Balance,
		Entry:        req.Entry,
		Stop:         req.Stop,
		RiskPerTrade: h.pm.RiskPerTrade(),
		PositionSize: h.pm.PositionSize(req.Balance, req.Entry, req.Stop),
	})
}
