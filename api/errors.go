// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for netpair.

package api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Common errors used across the library.
//
// ErrSuspended is advisory backpressure: the caller should stop offering
// frames until UpperLayer.ResumeTransmit fires for the endpoint.
var (
	ErrSuspended       = errors.New("transmit suspended")
	ErrExhausted       = errors.New("buffer pool exhausted")
	ErrRejected        = errors.New("rejected")
	ErrInvalidArgument = errors.WithMessage(ErrRejected, "invalid argument")
	ErrFrameTooLarge   = errors.WithMessage(ErrRejected, "frame too large")
	ErrClosed          = errors.New("endpoint is closed")
	ErrNotBudgeted     = errors.New("endpoint is not in budgeted mode")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeSuspended
	ErrCodeClosed
	ErrCodeNotFound
	ErrCodeInternal
)

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// Unwrap returns the sentinel this error was built from, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// CodeOf maps err onto an ErrorCode. Structured errors keep their code.
func CodeOf(err error) ErrorCode {
	var se *Error
	switch {
	case err == nil:
		return ErrCodeOK
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, ErrRejected):
		return ErrCodeInvalidArgument
	case errors.Is(err, ErrSuspended), errors.Is(err, ErrExhausted):
		return ErrCodeSuspended
	case errors.Is(err, ErrClosed):
		return ErrCodeClosed
	case errors.Is(err, ErrUnknownEndpoint):
		return ErrCodeNotFound
	default:
		return ErrCodeInternal
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithCause records the sentinel behind the structured error so that
// errors.Is keeps working on it.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}
