package api

import (
	"context"
	"strings"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

type SignalReader interface {
	List(ctx context.Context, req models.ListSignalsRequest) (*usecase.SignalPage, error)
	Get(ctx context.Context, id int64) (*models.Signal, error)
}

type Assessor interface {
	Assess(ctx context.Context, symbol string, tf models.Timeframe) (*usecase.Assessment, error)
}

// SignalsHandler serves the symbol universe, signal history and live evaluation.
type SignalsHandler struct {
	log      *logger.Logger
	signals  SignalReader
	assessor Assessor
	symbols  []string
	known    map[string]struct{}
}

func NewSignalsHandler(log *logger.Logger, signals SignalReader, assessor Assessor, symbols []string) *SignalsHandler {
	known := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		known[s] = struct{}{}
	}
	return &SignalsHandler{log: log, signals: signals, assessor: assessor, symbols: symbols, known: known}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/symbols", h.Symbols)
	g.GET("/signals", h.List)
	g.GET("/signals/evaluate", h.Evaluate)
	g.GET("/signals/:id", h.Detail)
}

func (h *SignalsHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.symbols)
}

func (h *SignalsHandler) List(c echo.Context) error {
	req := &models.ListSignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	page, err := h.signals.List(c.Request().Context(), *req)
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	return xhttp.SuccessResponse(c, page)
}

func (h *SignalsHandler) Detail(c echo.Context) error {
	req := &models.SignalDetailRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sig, err := h.signals.Get(c.Request().Context(), req.ID)
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	return xhttp.SuccessResponse(c, sig)
}

// Evaluate runs the ensemble now and returns every vote, whether or not consensus was reached.
func (h *SignalsHandler) Evaluate(c echo.Context) error {
	req := &models.EvaluateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf, err := models.ParseTimeframe(req.Timeframe)
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if _, ok := h.known[symbol]; !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %s", symbol))
	}

	as, err := h.assessor.Assess(c.Request().Context(), symbol, tf)
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, as)
}
