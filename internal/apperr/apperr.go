// Package apperr defines the error taxonomy shared by the chat core.
//
// Failures in side effects (previews, pushes) are recovered locally and never
// reach a caller through these types; failures on the primary write path
// always do.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP mapping and logging.
type Kind int

const (
	// KindAuthorization: caller is not a participant, owner, or admin.
	KindAuthorization Kind = iota
	// KindValidation: the request payload violates a documented rule.
	KindValidation
	// KindRateLimit: the per-conversation send interval was violated.
	KindRateLimit
	// KindNotFound: the referenced entity does not exist.
	KindNotFound
	// KindUpstream: an outbound fetch failed; recovered locally.
	KindUpstream
	// KindInternal: anything else.
	KindInternal
)

// Error is the single error type surfaced by services.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two apperr values by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func Authorization(msg string) *Error { return &Error{Kind: KindAuthorization, Msg: msg} }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func RateLimit(msg string) *Error { return &Error{Kind: KindRateLimit, Msg: msg} }

func NotFound(what string) *Error { return &Error{Kind: KindNotFound, Msg: what + " not found"} }

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Msg: msg, Err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Status returns the HTTP status for any error, defaulting to 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
