package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeServiceUnavailable   ErrorType = "service_unavailable"
	ErrorTypeDecode               ErrorType = "decode_error"
	ErrorTypeInvalidRegion        ErrorType = "invalid_region"
	ErrorTypeCacheIO              ErrorType = "cache_io"
	ErrorTypeExtractorUnavailable ErrorType = "extractor_unavailable"
	ErrorTypeValidation           ErrorType = "validation"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeInternal             ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewServiceUnavailableError is used for transport failures, non-2xx answers and timeouts
// of the crop service or a source image store.
func NewServiceUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeServiceUnavailable, http.StatusBadGateway, message, cause)
}

// NewDecodeError is used when returned bytes are not a decodable image
func NewDecodeError(message string, cause error) *AppError {
	return newError(ErrorTypeDecode, http.StatusUnprocessableEntity, message, cause)
}

// NewInvalidRegionError is used for zero-area or fully out-of-bounds regions
func NewInvalidRegionError(message string, cause error) *AppError {
	return newError(ErrorTypeInvalidRegion, http.StatusUnprocessableEntity, message, cause)
}

// NewCacheIOError creates a new cache I/O error. These never fail an item.
func NewCacheIOError(message string, cause error) *AppError {
	return newError(ErrorTypeCacheIO, http.StatusInternalServerError, message, cause)
}

// NewExtractorUnavailableError creates a new extractor error
func NewExtractorUnavailableError(message string, cause error) *AppError {
	return newError(ErrorTypeExtractorUnavailable, http.StatusServiceUnavailable, message, cause)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// FromRemote classifies an error of a remote call. Cancellation is passed
// through untouched so callers can tell it apart from a failure; timeouts and
// everything else become ServiceUnavailable.
func FromRemote(message string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewServiceUnavailableError(message+": timed out", err)
	}
	return NewServiceUnavailableError(message, err)
}

// IsType checks if the error, or any error it wraps, is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// TypeOf returns the ErrorType of err, or "" when err is not an AppError
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
