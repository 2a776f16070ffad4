// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"

	"github.com/google/actionrpc/pkg/act/validate"
	"github.com/pkg/errors"
)

// Func adapts a function over raw positional arguments.
type Func func(ctx context.Context, args []any) (any, error)

// Call implements Callable.
func (f Func) Call(ctx context.Context, args []any) (any, error) {
	return f(ctx, args)
}

// arg converts the i-th argument into A. Missing arguments convert from nil.
func arg[A any](args []any, i int) (A, error) {
	var raw any
	if i < len(args) {
		raw = args[i]
	}
	a, err := validate.Coerce[A]().Parse(raw)
	return a, errors.Wrapf(err, "argument %d", i)
}

// Func0 adapts a function taking no arguments.
func Func0[R any](fn func(context.Context) (R, error)) Func {
	return func(ctx context.Context, _ []any) (any, error) {
		return fn(ctx)
	}
}

// Func1 adapts a function taking one typed argument.
func Func1[A, R any](fn func(context.Context, A) (R, error)) Func {
	return func(ctx context.Context, args []any) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a)
	}
}

// Func2 adapts a function taking two typed arguments.
func Func2[A, B, R any](fn func(context.Context, A, B) (R, error)) Func {
	return func(ctx context.Context, args []any) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b)
	}
}

// Func3 adapts a function taking three typed arguments.
func Func3[A, B, C, R any](fn func(context.Context, A, B, C) (R, error)) Func {
	return func(ctx context.Context, args []any) (any, error) {
		a, err := arg[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := arg[B](args, 1)
		if err != nil {
			return nil, err
		}
		c, err := arg[C](args, 2)
		if err != nil {
			return nil, err
		}
		return fn(ctx, a, b, c)
	}
}

// Variadic adapts a function taking any number of arguments of one type.
func Variadic[A, R any](fn func(context.Context, ...A) (R, error)) Func {
	return func(ctx context.Context, args []any) (any, error) {
		as := make([]A, len(args))
		for i := range args {
			a, err := arg[A](args, i)
			if err != nil {
				return nil, err
			}
			as[i] = a
		}
		return fn(ctx, as...)
	}
}
