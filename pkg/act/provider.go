// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package act

import (
	"context"
)

// Before is passed to an OnBeforeExecute hook.
type Before[C any] struct {
	// Input is the raw, unvalidated input of the call.
	Input   any
	Context C
}

// After is passed to an OnAfterExecute hook.
type After[C any] struct {
	Result  any
	Context C
}

// Options configure a Provider.
type Options[C, E any] struct {
	// Context derives the base context of every call. It runs once per call.
	Context func(context.Context) (C, error)
	// OnBeforeExecute runs before validation. A non-nil return replaces the
	// context for the rest of the call, and a returned error (or Signal)
	// ends the call.
	OnBeforeExecute func(context.Context, Before[C]) (*C, error)
	// OnAfterExecute runs after a successful handler.
	OnAfterExecute func(context.Context, After[C]) error
	// MapError converts failures into the error value of a Result.
	MapError func(error) E
}

// Provider holds the configuration shared by the actions defined with it.
type Provider[C, E any] struct {
	opts     Options[C, E]
	mapError func(context.Context, error) E
}

// New returns a Provider whose errors are strings produced by MapError, or
// ContextErrorMapper when unset.
func New[C any](opts Options[C, string]) *Provider[C, string] {
	p := &Provider[C, string]{opts: opts, mapError: ContextErrorMapper}
	if opts.MapError != nil {
		p.mapError = ignoreContext(opts.MapError)
	}
	return p
}

// NewWithErrors returns a Provider with a custom error type. MapError is
// required.
func NewWithErrors[C, E any](opts Options[C, E]) *Provider[C, E] {
	if opts.MapError == nil {
		panic("act: NewWithErrors requires MapError")
	}
	return &Provider[C, E]{opts: opts, mapError: ignoreContext(opts.MapError)}
}

func ignoreContext[E any](f func(error) E) func(context.Context, error) E {
	return func(_ context.Context, err error) E { return f(err) }
}

// derive computes the context for one call.
func (p *Provider[C, E]) derive(ctx context.Context, raw any) (C, error) {
	var c C
	if p.opts.Context != nil {
		var err error
		if c, err = p.opts.Context(ctx); err != nil {
			return c, err
		}
	}
	if p.opts.OnBeforeExecute != nil {
		next, err := p.opts.OnBeforeExecute(ctx, Before[C]{Input: raw, Context: c})
		if err != nil {
			return c, err
		}
		if next != nil {
			c = *next
		}
	}
	return c, nil
}

func (p *Provider[C, E]) after(ctx context.Context, result any, c C) error {
	if p.opts.OnAfterExecute == nil {
		return nil
	}
	return p.opts.OnAfterExecute(ctx, After[C]{Result: result, Context: c})
}
