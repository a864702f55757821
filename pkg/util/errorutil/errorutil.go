package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

// NewInvalidTransition signals an action not legal from the current state.
func NewInvalidTransition(action, state string) error {
	return NewDomainError("INVALID_TRANSITION",
		fmt.Sprintf("action %s is not allowed from state %s", action, state),
		http.StatusConflict,
		map[string]any{"action": action, "state": state})
}

// NewPermissionDenied signals that the performer's role does not satisfy the action guard.
func NewPermissionDenied(action string) error {
	return NewDomainError("PERMISSION_DENIED",
		fmt.Sprintf("performer is not allowed to execute %s", action),
		http.StatusForbidden,
		map[string]any{"action": action})
}

// NewMissingRequiredFields lists absent action-specific fields.
func NewMissingRequiredFields(fields ...string) error {
	return NewDomainError("MISSING_REQUIRED_FIELDS",
		"one or more required fields are missing",
		http.StatusBadRequest,
		map[string]any{"fields": fields})
}

// NewTimeLimitExceeded signals an action attempted outside its time window.
func NewTimeLimitExceeded(message string) error {
	return NewDomainError("TIME_LIMIT_EXCEEDED", message, http.StatusConflict, nil)
}

// NewRateLimitExceeded signals a per-day action quota exhausted.
func NewRateLimitExceeded(action string, limit int) error {
	return NewDomainError("RATE_LIMIT_EXCEEDED",
		fmt.Sprintf("daily quota of %d for %s exhausted", limit, action),
		http.StatusTooManyRequests,
		map[string]any{"action": action, "limit": limit})
}

// NewDeleted signals an operation against a deleted aggregate.
func NewDeleted(resource string) error {
	return NewDomainError("DELETED",
		fmt.Sprintf("%s has been deleted", resource),
		http.StatusGone, nil)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// CodeOf extracts the machine-readable code, or empty string for nil.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return ToDomainError(err).Code
}
