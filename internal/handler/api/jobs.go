package api

import (
	"context"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"

	"github.com/labstack/echo/v4"
)

// JobRunner is the scheduler's entry point for externally triggered cycles.
type JobRunner interface {
	GenerateForTimeframe(ctx context.Context, tf models.Timeframe) (usecase.GenerationResult, error)
	SweepStatuses(ctx context.Context) (usecase.SweepResult, error)
}

// QueueStats reports the depth of the background job queue.
type QueueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type JobsHandler struct {
	log    *logger.Logger
	runner JobRunner
	queue  QueueStats
}

type JobsOption func(*JobsHandler)

// WithQueueStats exposes GET /api/v1/jobs/queue.
func WithQueueStats(q QueueStats) JobsOption {
	return func(h *JobsHandler) { h.queue = q }
}

func NewJobsHandler(log *logger.Logger, runner JobRunner, opts ...JobsOption) *JobsHandler {
	h := &JobsHandler{log: log, runner: runner}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *JobsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/jobs")
	g.POST("/generate", h.Generate)
	g.POST("/sweep", h.Sweep)
	if h.queue != nil {
		g.GET("/queue", h.QueueStats)
	}
}

func (h *JobsHandler) Generate(c echo.Context) error {
	req := &models.GenerateJobRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf, err := models.ParseTimeframe(req.Timeframe)
	if err != nil {
		return errorResponse(c, h.log, err)
	}

	// a cron caller that hangs up must not abort the cycle halfway
	ctx := context.WithoutCancel(c.Request().Context())
	res, err := h.runner.GenerateForTimeframe(ctx, tf)
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	h.log.Info("generation triggered over http", logger.String("timeframe", string(tf)), logger.Int("signals", res.Signals))
	return xhttp.SuccessResponse(c, res)
}

func (h *JobsHandler) Sweep(c echo.Context) error {
	res, err := h.runner.SweepStatuses(context.WithoutCancel(c.Request().Context()))
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *JobsHandler) QueueStats(c echo.Context) error {
	st, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		return errorResponse(c, h.log, err)
	}
	return xhttp.SuccessResponse(c, st)
}
