package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the failure taxonomy every boundary reports in.
type Kind string

const (
	KindUnauthorized          Kind = "unauthorized"
	KindServiceUnavailable    Kind = "service_unavailable"
	KindCapabilityUnavailable Kind = "capability_unavailable"
	KindInvalidRequest        Kind = "invalid_request"
	KindStorageFailure        Kind = "storage_failure"
	KindNotFound              Kind = "not_found"
	KindMisconfigured         Kind = "misconfigured"
	KindInternal              Kind = "internal"
)

type Error struct {
	Kind   Kind
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code string, err error) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Status: StatusFor(kind), Code: code, Err: err}
}

func Unauthorized(code string, err error) *Error { return New(KindUnauthorized, code, err) }
func ServiceUnavailable(code string, err error) *Error {
	return New(KindServiceUnavailable, code, err)
}
func CapabilityUnavailable(code string, err error) *Error {
	return New(KindCapabilityUnavailable, code, err)
}
func InvalidRequest(code string, err error) *Error { return New(KindInvalidRequest, code, err) }
func StorageFailure(code string, err error) *Error { return New(KindStorageFailure, code, err) }
func NotFound(code string, err error) *Error       { return New(KindNotFound, code, err) }
func Misconfigured(code string, err error) *Error  { return New(KindMisconfigured, code, err) }
func Internal(err error) *Error                    { return New(KindInternal, "internal_error", err) }

// Invalidf is shorthand for the common InvalidRequest-with-message case.
func Invalidf(code, format string, args ...any) *Error {
	return InvalidRequest(code, fmt.Errorf(format, args...))
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e, true
	}
	return nil, false
}

// KindOf reports the taxonomy kind of err; untyped errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

func StatusFor(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindServiceUnavailable, KindCapabilityUnavailable:
		return http.StatusServiceUnavailable
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
