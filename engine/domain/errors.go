package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an API error class. Codes are stable wire values; the
// HTTP status is derived, never stored.
type Code string

const (
	CodeInvalidVIN          Code = "invalid_vin"
	CodeMissingParams       Code = "missing_params"
	CodeInvalidParams       Code = "invalid_params"
	CodeDecodeFailed        Code = "decode_failed"
	CodeMethodNotAllowed    Code = "method_not_allowed"
	CodeNotFound            Code = "not_found"
	CodeGone                Code = "gone"
	CodeRateLimited         Code = "rate_limited"
	CodeQuotaExceeded       Code = "quota_exceeded"
	CodeUpstreamUnavailable Code = "upstream_unavailable"
	CodeInternal            Code = "internal_error"
)

// HTTPStatus maps an error code to its response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidVIN, CodeMissingParams, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeGone:
		return http.StatusGone
	case CodeRateLimited, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		// decode_failed and upstream_unavailable land here too: the API
		// surfaces every server-side failure as 500.
		return http.StatusInternalServerError
	}
}

// Error is an API-visible error: a code plus a caller-safe message.
// Internal detail stays in the wrapped error and is only ever logged.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E creates an Error with a caller-safe message.
func E(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches an internal cause to a coded error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the Code from err, or CodeInternal for anything untyped.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
