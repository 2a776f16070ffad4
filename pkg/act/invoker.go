// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package act

import (
	"context"

	"github.com/google/actionrpc/pkg/act/validate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Validator converts an untrusted value into a typed input.
type Validator[I any] interface {
	Parse(raw any) (I, error)
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc[I any] func(raw any) (I, error)

// Parse implements Validator.
func (f ValidatorFunc[I]) Parse(raw any) (I, error) { return f(raw) }

// Handler is the body of an action.
type Handler[I, O, C any] func(ctx context.Context, in I, c C) (O, error)

// Invoker runs an action through its provider's pipeline: derive the
// context, run the before hook, validate, call the handler and run the after
// hook.
type Invoker[I, O, E any] struct {
	run func(context.Context, any) (Result[O, E], error)
}

// Define creates an action. Without validators the raw input is converted
// with validate.Coerce. With several validators, each one parses the output of
// the previous one.
func Define[I, O, C, E any](p *Provider[C, E], handler Handler[I, O, C], validators ...Validator[I]) *Invoker[I, O, E] {
	if len(validators) == 0 {
		validators = []Validator[I]{validate.Coerce[I]()}
	}
	return define(p, handler, validators)
}

func define[I, O, C, E any](p *Provider[C, E], handler Handler[I, O, C], validators []Validator[I]) *Invoker[I, O, E] {
	return &Invoker[I, O, E]{run: func(ctx context.Context, raw any) (Result[O, E], error) {
		c, err := p.derive(ctx, raw)
		if err != nil {
			return fail[O](ctx, p, err)
		}
		in, err := parse(raw, validators)
		if err != nil {
			return fail[O](ctx, p, err)
		}
		out, err := handler(ctx, in, c)
		if err != nil {
			return fail[O](ctx, p, err)
		}
		if err := p.after(ctx, out, c); err != nil {
			return fail[O](ctx, p, err)
		}
		return Ok[E](out), nil
	}}
}

// Invoke runs the action with an untrusted input. The returned error is only
// ever a Signal; every other failure is reported in the Result.
func (iv *Invoker[I, O, E]) Invoke(ctx context.Context, raw any) (Result[O, E], error) {
	return iv.run(ctx, raw)
}

// Run runs the action with an already typed input. Validators still apply.
func (iv *Invoker[I, O, E]) Run(ctx context.Context, in I) (Result[O, E], error) {
	return iv.run(ctx, in)
}

// Call invokes the action with positional arguments, of which only the first
// is used. It lets an Invoker be registered as a remote action.
func (iv *Invoker[I, O, E]) Call(ctx context.Context, args []any) (any, error) {
	var raw any
	if len(args) > 0 {
		raw = args[0]
	}
	r, err := iv.run(ctx, raw)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// FormInvoker is an action taking key/value form fields. Field values are
// converted to the input type leniently, since forms only carry strings and
// files.
type FormInvoker[I, O, E any] struct {
	inner *Invoker[I, O, E]
}

// DefineForm creates a form action. Without validators the fields are
// converted with validate.Weak.
func DefineForm[I, O, C, E any](p *Provider[C, E], handler Handler[I, O, C], validators ...Validator[I]) *FormInvoker[I, O, E] {
	if len(validators) == 0 {
		validators = []Validator[I]{validate.Weak[I]()}
	}
	return &FormInvoker[I, O, E]{inner: define(p, handler, validators)}
}

// InvokeForm runs the action with the fields of a submitted form.
func (f *FormInvoker[I, O, E]) InvokeForm(ctx context.Context, fields map[string]any) (Result[O, E], error) {
	if fields == nil {
		fields = map[string]any{}
	}
	return f.inner.run(ctx, fields)
}

// Action returns the underlying invoker for direct typed calls.
func (f *FormInvoker[I, O, E]) Action() *Invoker[I, O, E] {
	return f.inner
}

// Call invokes the action with a form object as its first argument.
func (f *FormInvoker[I, O, E]) Call(ctx context.Context, args []any) (any, error) {
	var fields map[string]any
	if len(args) > 0 && args[0] != nil {
		var ok bool
		if fields, ok = args[0].(map[string]any); !ok {
			return nil, status.Errorf(codes.InvalidArgument, "form action expects an object, got %T", args[0])
		}
	}
	r, err := f.InvokeForm(ctx, fields)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func parse[I any](raw any, validators []Validator[I]) (I, error) {
	var in I
	value := raw
	for _, v := range validators {
		var err error
		if in, err = v.Parse(value); err != nil {
			return in, err
		}
		value = in
	}
	if i, ok := any(in).(Input); ok {
		if err := i.Validate(); err != nil {
			return in, err
		}
	}
	return in, nil
}

func fail[O, C, E any](ctx context.Context, p *Provider[C, E], err error) (Result[O, E], error) {
	if s, ok := AsSignal(err); ok {
		return Result[O, E]{}, s
	}
	return Fail[O](p.mapError(ctx, err)), nil
}
