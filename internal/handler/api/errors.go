package api

import (
	"errors"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/scheduler"
	"SignalDesk/internal/service/marketdata"
	"SignalDesk/internal/usecase"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/logger"

	"github.com/labstack/echo/v4"
)

func init() {
	xhttp.RegisterValidation("timeframe", "must be one of: 1m, 5m, 15m, 1h, 4h, 1d", func(s string) bool {
		_, err := models.ParseTimeframe(s)
		return err == nil
	})
}

// toAppError maps domain errors onto HTTP errors. Unknown errors come back as nil.
func toAppError(err error) *xhttp.AppError {
	var (
		verr    *models.ValidationError
		connErr *marketdata.ConnectivityError
		appErr  *xhttp.AppError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &verr):
		return xhttp.BadRequestError(verr.Message).WithError(err)
	case errors.Is(err, models.ErrInvalidTimeframe):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrSignalNotFound):
		return xhttp.NotFoundError("signal not found").WithError(err)
	case errors.Is(err, usecase.ErrPositionNotFound):
		return xhttp.NotFoundError("position not found").WithError(err)
	case errors.Is(err, usecase.ErrPositionLimit), errors.Is(err, usecase.ErrPositionExists):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return xhttp.ConflictError("job already running").WithError(err)
	case errors.Is(err, marketdata.ErrNoData):
		return xhttp.NotFoundError("no market data for symbol").WithError(err)
	case errors.As(err, &connErr), errors.Is(err, marketdata.ErrProviderUnavailable):
		return xhttp.ServiceUnavailableError("market data provider unavailable").WithError(err)
	}
	return nil
}

func errorResponse(c echo.Context, log *logger.Logger, err error) error {
	if appErr := toAppError(err); appErr != nil {
		if appErr.Status >= 500 {
			log.Warn("request failed", logger.String("path", c.Path()), logger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}
	log.Error("request failed", logger.String("path", c.Path()), logger.Error(err))
	return xhttp.InternalServerErrorResponse(c)
}
