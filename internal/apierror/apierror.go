// Package apierror defines the normalized error shape returned by every wallet
// client operation.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by where it originated.
type Kind string

const (
	KindNetwork    Kind = "NETWORK_ERROR"
	KindAPI        Kind = "API_ERROR"
	KindAuth       Kind = "AUTH_ERROR"
	KindValidation Kind = "VALIDATION_ERROR"
)

// Error is the normalized client error. Status is zero when no response arrived.
type Error struct {
	Kind    Kind   `json:"type"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil && e.Err.Error() != e.Message:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Network reports that no response was received (timeout, offline, cancelled).
func Network(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: cause}
}

// API reports a non-2xx response.
func API(status int, code, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindAPI, Status: status, Code: code, Message: message}
}

// Auth reports a rejected login or refresh. cause may be nil.
func Auth(message string, cause error) *Error {
	e := &Error{Kind: KindAuth, Message: message, Err: cause}
	var inner *Error
	if errors.As(cause, &inner) {
		e.Status = inner.Status
		e.Code = inner.Code
	}
	return e
}

// Validation reports an argument rejected before any request was sent.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: field, Message: message}
}

func kindOf(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsNetwork(err error) bool {
	e, ok := kindOf(err)
	return ok && e.Kind == KindNetwork
}

func IsAPI(err error) bool {
	e, ok := kindOf(err)
	return ok && e.Kind == KindAPI
}

func IsAuth(err error) bool {
	e, ok := kindOf(err)
	return ok && e.Kind == KindAuth
}

// IsValidation is true for client-side validation failures and for server
// responses that reject the request body (400, 422).
func IsValidation(err error) bool {
	e, ok := kindOf(err)
	if !ok {
		return false
	}
	if e.Kind == KindValidation {
		return true
	}
	return e.Kind == KindAPI && (e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity)
}

// IsUnauthorized is true for a 401 that reached the caller.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if e, ok := kindOf(err); ok {
		return e.Status
	}
	return 0
}
