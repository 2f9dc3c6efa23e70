package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net"

	xhttp "SignalDesk/pkg/http"
)

var (
	// ErrProviderUnavailable marks a failure to reach the provider at all.
	ErrProviderUnavailable = errors.New("market data provider unavailable")

	// ErrNoData means the provider answered but has nothing for the symbol.
	ErrNoData = errors.New("no market data")

	ErrInvalidSide = errors.New("invalid price side")
)

// ConnectivityError is returned once retries are exhausted. Err is the last provider error.
type ConnectivityError struct {
	Op       string
	Symbol   string
	Attempts int
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s %s: gave up after %d attempts: %v", e.Op, e.Symbol, e.Attempts, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsTransient reports whether a retry may succeed: connectivity, timeouts and 5xx answers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *xhttp.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return false
}

// isConnectivity reports errors after which the cached provider connection should be rebuilt.
func isConnectivity(err error) bool {
	if errors.Is(err, ErrProviderUnavailable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && !netErr.Timeout()
}
