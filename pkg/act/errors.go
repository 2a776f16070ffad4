// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package act

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// GenericErrorMessage replaces the text of unexpected errors in production.
const GenericErrorMessage = "Something went wrong"

// SafeMessager is implemented by errors whose message may be shown to
// untrusted callers.
type SafeMessager interface {
	SafeMessage() string
}

// Error is an expected action failure. Its message is always shown to the
// caller, while the optional cause is kept for logging.
type Error struct {
	msg   string
	cause error
}

var _ SafeMessager = &Error{}

// NewError returns an Error with the given message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// Errorf returns an Error with a formatted message.
func Errorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	return &Error{msg: e.msg, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// SafeMessage returns the message without the cause.
func (e *Error) SafeMessage() string { return e.msg }

func (e *Error) Unwrap() error { return e.cause }

// DefaultErrorMapper maps errors to the text shown to callers. Errors with a
// safe message keep it; any other error is replaced by GenericErrorMessage
// when the process runs in production mode.
//
// Providers created without a MapError apply ContextErrorMapper instead, so
// that the mode set by the host with WithEnv wins.
func DefaultErrorMapper(err error) string {
	return mapError(err, productionMode(context.Background()))
}

// ContextErrorMapper is DefaultErrorMapper with the mode of the call taken
// from ctx.
func ContextErrorMapper(ctx context.Context, err error) string {
	return mapError(err, productionMode(ctx))
}

// ErrorMapper returns a mapper like DefaultErrorMapper with a fixed mode.
func ErrorMapper(production bool) func(error) string {
	return func(err error) string {
		return mapError(err, production)
	}
}

func mapError(err error, production bool) string {
	var sm SafeMessager
	if errors.As(err, &sm) {
		return sm.SafeMessage()
	}
	if production || err == nil {
		return GenericErrorMessage
	}
	return err.Error()
}
