// Package domainerrors defines the coded error taxonomy shared by the
// frontend gateways. Services and clients return these; the HTTP layer
// translates them into JSON envelopes via httputil.WriteError so Authority
// internals never leak past the boundary.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error category with a stable wire representation.
type Code string

const (
	// CodeBadRequest covers malformed or incomplete caller input.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized covers missing, invalid, or expired credentials,
	// including explicit Authority rejections surfaced to the caller.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden covers authenticated callers with insufficient role
	// or entitlement.
	CodeForbidden Code = "forbidden"
	// CodeAuthorityUnavailable covers network failures and timeouts while
	// talking to the Authority.
	CodeAuthorityUnavailable Code = "authority_unavailable"
	// CodeAuthorityRejected covers explicit Authority denials of a
	// credential or token.
	CodeAuthorityRejected Code = "authority_rejected"
	// CodeAuthorityContract covers 2xx Authority responses missing fields
	// the contract requires.
	CodeAuthorityContract Code = "authority_contract"
	// CodeNotFound covers resources the backend reports as absent.
	CodeNotFound Code = "not_found"
	// CodeInternal is the fallback for everything else.
	CodeInternal Code = "internal_error"
)

// Error is a coded error with a human-readable message safe to return to
// callers. Wrapped causes stay server-side.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error with a caller-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error that records cause for logs while exposing only
// message to callers.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the caller-safe message from err. Internal errors get a
// generic message so wrapped causes never reach the wire.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) && de.Code != CodeInternal {
		return de.Message
	}
	return "internal error"
}

// ToHTTPStatus maps a code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAuthorityRejected:
		return http.StatusUnauthorized
	case CodeAuthorityUnavailable:
		return http.StatusBadGateway
	case CodeAuthorityContract:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
