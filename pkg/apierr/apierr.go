// Package apierr defines the error taxonomy shared by every component
// boundary: validation, conflict, not-found, transport, handler, and
// fatal errors, plus the HTTP status each maps to at the API boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error taxonomy's six categories.
type Kind int

const (
	Validation Kind = iota
	Conflict
	NotFound
	Transport
	Handler
	Fatal
)

// Sentinel errors; wrap with fmt.Errorf("...: %w", err) and test with
// errors.Is, matching the plain-wrapping style used throughout the rest
// of this module.
var (
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
	ErrTransport  = errors.New("transport error")
	ErrHandler    = errors.New("handler error")
	ErrFatal      = errors.New("fatal error")
)

func sentinelFor(k Kind) error {
	switch k {
	case Validation:
		return ErrValidation
	case Conflict:
		return ErrConflict
	case NotFound:
		return ErrNotFound
	case Transport:
		return ErrTransport
	case Handler:
		return ErrHandler
	default:
		return ErrFatal
	}
}

// New wraps msg and cause under the given taxonomy kind.
func New(k Kind, msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", msg, sentinelFor(k))
	}
	return fmt.Errorf("%s: %w: %w", msg, sentinelFor(k), cause)
}

// HTTPStatus maps an error wrapping one of the sentinels above to its
// API status code. Errors that wrap none of them default to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, ErrHandler):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Body is the wire shape of an API error response.
type Body struct {
	Code    uint16 `json:"code" yaml:"code"`
	Message string `json:"message" yaml:"message"`
}

// BodyFor builds the wire error body for err.
func BodyFor(err error) Body {
	status := HTTPStatus(err)
	return Body{Code: uint16(status), Message: err.Error()}
}
