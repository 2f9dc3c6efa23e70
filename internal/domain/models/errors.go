package models

import "fmt"

// ValidationError reports a malformed request from a consumer.
// It is returned to that consumer and never closes its connection.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError formats a ValidationError.
func NewValidationError(format string, a ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, a...)}
}
