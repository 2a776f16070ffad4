// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package validate provides validators converting untrusted action input
// into typed values.
package validate

import (
	"fmt"
	"strings"

	"github.com/google/actionrpc/pkg/wire"
	"github.com/pkg/errors"
)

// Error is a validation failure. Its violations are safe to show to the
// caller.
type Error struct {
	Violations []string
}

func (e *Error) Error() string {
	return "invalid input: " + strings.Join(e.Violations, "; ")
}

// SafeMessage returns the violations as a single message.
func (e *Error) SafeMessage() string {
	if len(e.Violations) == 1 {
		return e.Violations[0]
	}
	return strings.Join(e.Violations, "; ")
}

// Failf returns an Error with a single violation.
func Failf(format string, args ...any) *Error {
	return &Error{Violations: []string{fmt.Sprintf(format, args...)}}
}

// Func is a validator built from a function.
type Func[T any] func(raw any) (T, error)

// Parse implements the validator contract.
func (f Func[T]) Parse(raw any) (T, error) { return f(raw) }

// Coerce returns a validator converting decoded values into T, matching
// struct fields by json tag. Values already of type T pass through.
func Coerce[T any]() Func[T] {
	return coerceWith[T](wire.Coerce)
}

// Weak is like Coerce but converts strings into numbers and booleans, for use
// with form fields.
func Weak[T any]() Func[T] {
	return coerceWith[T](wire.WeakCoerce)
}

func coerceWith[T any](coerce func(in, out any) error) Func[T] {
	return func(raw any) (T, error) {
		if v, ok := raw.(T); ok {
			return v, nil
		}
		var out T
		if err := coerce(raw, &out); err != nil {
			return out, fromError(err)
		}
		return out, nil
	}
}

// Chain runs validators in order, each parsing the previous output.
func Chain[T any](first Func[T], rest ...Func[T]) Func[T] {
	return func(raw any) (T, error) {
		v, err := first(raw)
		if err != nil {
			return v, err
		}
		for _, f := range rest {
			if v, err = f(v); err != nil {
				return v, err
			}
		}
		return v, nil
	}
}

// Check returns a validator that passes values of type T through when check
// accepts them.
func Check[T any](check func(T) error) Func[T] {
	return func(raw any) (T, error) {
		v, ok := raw.(T)
		if !ok {
			var zero T
			return zero, Failf("expected %T, got %T", zero, raw)
		}
		if err := check(v); err != nil {
			return v, fromError(err)
		}
		return v, nil
	}
}

func fromError(err error) error {
	var verr *Error
	if errors.As(err, &verr) {
		return verr
	}
	var violations []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			violations = append(violations, e.Error())
		}
	}
	if len(violations) == 0 {
		violations = []string{err.Error()}
	}
	return &Error{Violations: violations}
}
