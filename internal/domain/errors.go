package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Category classifies a ServiceError for programmatic handling. The set
// is closed; callers switch over it exhaustively.
type Category string

const (
	CategoryValidation         Category = "validation"
	CategoryNotFound           Category = "not_found"
	CategoryServiceUnavailable Category = "service_unavailable"
	CategoryNetwork            Category = "network"
	CategoryParse              Category = "parse"
	CategoryGeneral            Category = "general"
)

// KindLocationUnavailable marks the validation error raised when no
// location tier produced a position and falling back to the persisted
// default was not allowed.
const KindLocationUnavailable = "location_unavailable"

// ServiceError is the error type that crosses package boundaries.
// Adapters translate raw transport and store failures into one of these
// before returning, so callers never branch on provider-specific types.
type ServiceError struct {
	Category   Category
	Kind       string // optional machine-readable subtype, e.g. KindLocationUnavailable
	Message    string
	StatusCode int   // upstream HTTP status, 0 when not applicable
	Err        error // wrapped cause
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Category, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewError builds a ServiceError with the given category.
func NewError(category Category, message string) *ServiceError {
	return &ServiceError{Category: category, Message: message}
}

// WrapError attaches a category and message to an underlying cause.
func WrapError(category Category, message string, err error) *ServiceError {
	return &ServiceError{Category: category, Message: message, Err: err}
}

// ErrorFromStatus classifies a non-2xx upstream response per MapStatus.
// The raw status is kept on the error so retry policy can separate 4xx
// from 5xx.
func ErrorFromStatus(status int, message string) *ServiceError {
	return &ServiceError{Category: MapStatus(status), Message: message, StatusCode: status}
}

// MapStatus returns the error category for an upstream HTTP status:
//
//	404 → not_found | 503 → service_unavailable | other → general
func MapStatus(status int) Category {
	switch status {
	case http.StatusNotFound:
		return CategoryNotFound
	case http.StatusServiceUnavailable:
		return CategoryServiceUnavailable
	default:
		return CategoryGeneral
	}
}

// CategoryOf extracts the category from err's chain. Errors that carry
// no ServiceError report CategoryGeneral.
func CategoryOf(err error) Category {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryGeneral
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category Category) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Category == category
}

// IsKind reports whether err carries the given error kind.
func IsKind(err error, kind string) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Kind == kind
}

// StatusOf returns the upstream HTTP status attached to err, or 0 when
// none is recorded.
func StatusOf(err error) int {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
