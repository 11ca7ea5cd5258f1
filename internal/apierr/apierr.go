// Package apierr defines the typed rejection taxonomy shared by the gate
// chain and the HTTP layer. Gates return *Error values; handlers and
// middleware map Kind to a transport status code in exactly one place.
package apierr

import (
	"errors"
	"net/http"
)

// Kind classifies a rejection.
type Kind int

const (
	// KindUnauthenticated means no usable credential was presented.
	KindUnauthenticated Kind = iota
	// KindInvalidCredential means the credential is malformed or fails verification.
	KindInvalidCredential
	// KindExpiredCredential means the credential is past its validity window.
	KindExpiredCredential
	// KindDomainNotAllowed means the authenticated email is outside the allow-list.
	KindDomainNotAllowed
	// KindForbidden means the caller is authenticated but lacks the required role.
	KindForbidden
	// KindNotFound means the referenced resource or user is absent.
	KindNotFound
	// KindMFANotConfigured means the caller has no active TOTP secret.
	KindMFANotConfigured
	// KindMFACodeRequired means a sensitive call arrived without a one-time code.
	KindMFACodeRequired
	// KindMFACodeInvalid means the supplied one-time code did not verify.
	KindMFACodeInvalid
	// KindValidation means the request body or a field value is invalid.
	KindValidation
	// KindUpstream means a partner API or the identity provider failed.
	KindUpstream
	// KindConfiguration means a required secret or setting is missing.
	KindConfiguration
)

// Error is a typed rejection with a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
}

// New constructs a typed rejection.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Status maps a rejection kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindUnauthenticated, KindInvalidCredential, KindExpiredCredential:
		return http.StatusUnauthorized
	case KindDomainNotAllowed, KindForbidden, KindMFANotConfigured:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindMFACodeRequired, KindMFACodeInvalid, KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	case KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// As extracts a typed rejection from an error chain.
func As(err error) (*Error, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}
