package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrPositionLimit    = errors.New("position limit reached")
	ErrPositionExists   = errors.New("position already open for symbol")
	ErrPositionNotFound = errors.New("position not found")
)

// AlgorithmError records a strategy that failed or panicked while scoring a window.
type AlgorithmError struct {
	Algorithm string
	Symbol    string
	Err       error
}

func (e *AlgorithmError) Error() string {
	return fmt.Sprintf("algorithm %s on %s: %v", e.Algorithm, e.Symbol, e.Err)
}

func (e *AlgorithmError) Unwrap() error { return e.Err }
