package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"gastbokning/internal/models"
)

// ValidationError is a user-correctable problem with the input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidation builds a validation error for a single field.
func NewValidation(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Add records a field problem.
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// Empty reports whether no field problems were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError reports a missing booking or resident.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError is returned when a booking would overlap active bookings.
type ConflictError struct {
	Conflicts []models.Booking
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("dates overlap %d existing booking(s)", len(e.Conflicts))
}

// ExternalServiceError wraps failures of the booking store, the resident
// directory or a delivery transport. The caller may retry.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

// External wraps err unless it is nil or already an ExternalServiceError.
func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Retryable is always true for external failures.
func (e *ExternalServiceError) Retryable() bool { return true }

// RenderError reports a failure to build an output document.
type RenderError struct {
	Format string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Format, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// HTTPStatus maps an error onto the status code returned to callers.
func HTTPStatus(err error) int {
	var (
		verr *ValidationError
		nerr *NotFoundError
		cerr *ConflictError
		eerr *ExternalServiceError
		rerr *RenderError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &nerr):
		return http.StatusNotFound
	case errors.As(err, &cerr):
		return http.StatusConflict
	case errors.As(err, &eerr):
		return http.StatusBadGateway
	case errors.As(err, &rerr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	var eerr *ExternalServiceError
	return errors.As(err, &eerr) && eerr.Retryable()
}
