package http

import (
	"fmt"
	"net/http"
)

// AppError is an error with the HTTP status and code it is reported under.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithError records the cause. It is logged but never serialized.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func newAppError(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func BadRequestError(message string) *AppError {
	return newAppError("ERR_BAD_REQUEST", http.StatusBadRequest, message)
}

func NotFoundError(message string) *AppError {
	return newAppError("ERR_NOT_FOUND", http.StatusNotFound, message)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

func ConflictError(message string) *AppError {
	return newAppError("ERR_CONFLICT", http.StatusConflict, message)
}

func ServiceUnavailableError(message string) *AppError {
	return newAppError("ERR_UNAVAILABLE", http.StatusServiceUnavailable, message)
}
