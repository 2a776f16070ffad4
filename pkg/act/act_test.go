// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package act

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type valueContext struct {
	Value int
}

type textContext struct {
	TextInput string
}

func TestDefine(t *testing.T) {
	t.Setenv("ACTION_ENV", "development")
	p := New(Options[NoContext, string]{})
	tests := []struct {
		name    string
		handler Handler[int, int, NoContext]
		input   any
		want    Result[int, string]
	}{
		{
			name:    "success",
			handler: func(_ context.Context, in int, _ NoContext) (int, error) { return in * 2, nil },
			input:   float64(21),
			want:    Result[int, string]{Success: true, Data: 42},
		},
		{
			name:    "typed input",
			handler: func(_ context.Context, in int, _ NoContext) (int, error) { return in + 1, nil },
			input:   1,
			want:    Result[int, string]{Success: true, Data: 2},
		},
		{
			name:    "expected error",
			handler: func(context.Context, int, NoContext) (int, error) { return 0, NewError("Invalid title") },
			input:   1,
			want:    Result[int, string]{Error: "Invalid title"},
		},
		{
			name:    "wrapped expected error",
			handler: func(context.Context, int, NoContext) (int, error) { return 0, errors.Wrap(NewError("taken"), "saving") },
			input:   1,
			want:    Result[int, string]{Error: "taken"},
		},
		{
			name:    "unexpected error in development",
			handler: func(context.Context, int, NoContext) (int, error) { return 0, errors.New("db down") },
			input:   1,
			want:    Result[int, string]{Error: "db down"},
		},
		{
			name:    "invalid input",
			handler: func(context.Context, int, NoContext) (int, error) { t.Error("handler called"); return 0, nil },
			input:   "abc",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Define(p, tc.handler).Invoke(context.Background(), tc.input)
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if tc.name == "invalid input" {
				if got.Success || got.Error == "" {
					t.Errorf("Invoke() = %+v, want failure with a message", got)
				}
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProductionHidesUnexpectedErrors(t *testing.T) {
	t.Setenv("ACTION_ENV", "production")
	p := New(Options[NoContext, string]{})
	unexpected := Define(p, func(context.Context, any, NoContext) (any, error) { return nil, errors.New("secret") })
	expected := Define(p, func(context.Context, any, NoContext) (any, error) { return nil, Errorf("bad %s", "name") })
	got, _ := unexpected.Invoke(context.Background(), nil)
	if got.Error != GenericErrorMessage {
		t.Errorf("unexpected error = %q, want %q", got.Error, GenericErrorMessage)
	}
	got, _ = expected.Invoke(context.Background(), nil)
	if got.Error != "bad name" {
		t.Errorf("expected error = %q, want %q", got.Error, "bad name")
	}
}

func TestWithEnvOverridesProcessMode(t *testing.T) {
	t.Setenv("ACTION_ENV", "development")
	p := New(Options[NoContext, string]{})
	unexpected := Define(p, func(context.Context, any, NoContext) (any, error) { return nil, errors.New("secret") })
	for _, tc := range []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "process environment", ctx: context.Background(), want: "secret"},
		{name: "production host", ctx: WithEnv(context.Background(), Env{Mode: ModeProduction}), want: GenericErrorMessage},
		{name: "development host", ctx: WithEnv(context.Background(), Env{Mode: "development"}), want: "secret"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := unexpected.Invoke(tc.ctx, nil)
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if got.Error != tc.want {
				t.Errorf("error = %q, want %q", got.Error, tc.want)
			}
		})
	}
	custom := Define(New(Options[NoContext, string]{MapError: func(error) string { return "custom" }}),
		func(context.Context, any, NoContext) (any, error) { return nil, errors.New("secret") })
	got, _ := custom.Invoke(WithEnv(context.Background(), Env{Mode: ModeProduction}), nil)
	if got.Error != "custom" {
		t.Errorf("custom mapper error = %q, want %q", got.Error, "custom")
	}
}

func TestContextThreading(t *testing.T) {
	p := New(Options[valueContext, string]{
		Context: func(context.Context) (valueContext, error) { return valueContext{Value: 6}, nil },
	})
	inv := Define(p, func(_ context.Context, _ any, c valueContext) (int, error) { return 4 * c.Value, nil })
	got, err := inv.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if diff := cmp.Diff(Ok[string](24), got); diff != "" {
		t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
	}
}

func TestBeforeExecuteReplacesContext(t *testing.T) {
	p := New(Options[textContext, string]{
		OnBeforeExecute: func(_ context.Context, b Before[textContext]) (*textContext, error) {
			return &textContext{TextInput: fmt.Sprintf("This is text now: %v", b.Input)}, nil
		},
	})
	inv := Define(p, func(_ context.Context, in int, c textContext) (string, error) {
		return fmt.Sprintf("%s = %d", c.TextInput, in), nil
	})
	got, err := inv.Invoke(context.Background(), 42)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if diff := cmp.Diff(Ok[string]("This is text now: 42 = 42"), got); diff != "" {
		t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
	}
}

func TestBeforeExecuteKeepsContext(t *testing.T) {
	p := New(Options[valueContext, string]{
		Context:         func(context.Context) (valueContext, error) { return valueContext{Value: 3}, nil },
		OnBeforeExecute: func(context.Context, Before[valueContext]) (*valueContext, error) { return nil, nil },
	})
	got, _ := Define(p, func(_ context.Context, _ any, c valueContext) (int, error) { return c.Value, nil }).Invoke(context.Background(), nil)
	if got.Data != 3 {
		t.Errorf("Data = %d, want 3", got.Data)
	}
}

func TestSignalsPropagate(t *testing.T) {
	var called bool
	p := New(Options[NoContext, string]{
		OnBeforeExecute: func(_ context.Context, b Before[NoContext]) (*NoContext, error) {
			if b.Input == "anonymous" {
				return nil, Redirect("/login")
			}
			return nil, nil
		},
	})
	inv := Define(p, func(_ context.Context, in string, _ NoContext) (string, error) {
		called = true
		if in == "missing" {
			return "", errors.Wrap(NotFound, "loading")
		}
		return in, nil
	})

	_, err := inv.Invoke(context.Background(), "anonymous")
	s, ok := AsSignal(err)
	if !ok {
		t.Fatalf("Invoke() error = %v, want a signal", err)
	}
	if diff := cmp.Diff("ACTION_REDIRECT;replace;/login;307;", s.Digest()); diff != "" {
		t.Errorf("Digest() mismatch (-want +got):\n%s", diff)
	}
	if called {
		t.Error("handler called after redirect from hook")
	}

	_, err = inv.Invoke(context.Background(), "missing")
	if s, ok := AsSignal(err); !ok || s.Digest() != NotFoundDigest {
		t.Errorf("Invoke() error = %v, want not found signal", err)
	}
}

func TestAfterExecute(t *testing.T) {
	var seen []After[valueContext]
	p := New(Options[valueContext, string]{
		Context: func(context.Context) (valueContext, error) { return valueContext{Value: 1}, nil },
		OnAfterExecute: func(_ context.Context, a After[valueContext]) error {
			seen = append(seen, a)
			return nil
		},
	})
	inv := Define(p, func(_ context.Context, in int, _ valueContext) (int, error) {
		if in < 0 {
			return 0, NewError("negative")
		}
		return in, nil
	})
	inv.Invoke(context.Background(), 5)
	inv.Invoke(context.Background(), -1)
	want := []After[valueContext]{{Result: 5, Context: valueContext{Value: 1}}}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("after hook calls mismatch (-want +got):\n%s", diff)
	}
}

func TestAfterExecuteError(t *testing.T) {
	p := New(Options[NoContext, string]{
		OnAfterExecute: func(context.Context, After[NoContext]) error { return NewError("audit failed") },
	})
	got, _ := Define(p, func(context.Context, any, NoContext) (int, error) { return 1, nil }).Invoke(context.Background(), nil)
	if diff := cmp.Diff(Fail[int]("audit failed"), got); diff != "" {
		t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
	}
}

func TestContextErrorIsMapped(t *testing.T) {
	p := New(Options[valueContext, string]{
		Context:  func(context.Context) (valueContext, error) { return valueContext{}, errors.New("no session") },
		MapError: ErrorMapper(false),
	})
	got, err := Define(p, func(context.Context, any, valueContext) (int, error) { return 1, nil }).Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if diff := cmp.Diff(Fail[int]("no session"), got); diff != "" {
		t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
	}
}

type apiError struct {
	Code    string
	Message string
}

func TestNewWithErrors(t *testing.T) {
	p := NewWithErrors(Options[NoContext, apiError]{
		MapError: func(err error) apiError { return apiError{Code: "E1", Message: err.Error()} },
	})
	got, _ := Define(p, func(context.Context, any, NoContext) (int, error) { return 0, errors.New("x") }).Invoke(context.Background(), nil)
	if diff := cmp.Diff(Fail[int](apiError{Code: "E1", Message: "x"}), got); diff != "" {
		t.Errorf("Invoke() mismatch (-want +got):\n%s", diff)
	}
	defer func() {
		if recover() == nil {
			t.Error("NewWithErrors() without MapError did not panic")
		}
	}()
	NewWithErrors(Options[NoContext, apiError]{})
}

type evenInput struct {
	N int `json:"n"`
}

func (e evenInput) Validate() error {
	if e.N%2 != 0 {
		return NewError("n must be even")
	}
	return nil
}

func TestValidators(t *testing.T) {
	p := New(Options[NoContext, string]{})
	double := ValidatorFunc[evenInput](func(raw any) (evenInput, error) {
		in, ok := raw.(evenInput)
		if !ok {
			return evenInput{N: 2}, nil
		}
		return evenInput{N: in.N * 2}, nil
	})
	handler := func(_ context.Context, in evenInput, _ NoContext) (int, error) { return in.N, nil }

	got, _ := Define(p, handler, double, double).Invoke(context.Background(), "anything")
	if diff := cmp.Diff(Ok[string](4), got); diff != "" {
		t.Errorf("chained validators mismatch (-want +got):\n%s", diff)
	}
	got, _ = Define(p, handler).Invoke(context.Background(), map[string]any{"n": float64(3)})
	if diff := cmp.Diff(Fail[int]("n must be even"), got); diff != "" {
		t.Errorf("Input.Validate mismatch (-want +got):\n%s", diff)
	}
}

type loginForm struct {
	Email    string `json:"email"`
	Remember bool   `json:"remember"`
	Age      int    `json:"age"`
}

func TestDefineForm(t *testing.T) {
	p := New(Options[NoContext, string]{})
	f := DefineForm(p, func(_ context.Context, in loginForm, _ NoContext) (loginForm, error) { return in, nil })
	want := loginForm{Email: "a@b.c", Remember: true, Age: 30}

	got, err := f.InvokeForm(context.Background(), map[string]any{"email": "a@b.c", "remember": "true", "age": "30"})
	if err != nil {
		t.Fatalf("InvokeForm() error = %v", err)
	}
	if diff := cmp.Diff(Ok[string](want), got); diff != "" {
		t.Errorf("InvokeForm() mismatch (-want +got):\n%s", diff)
	}
	got, _ = f.Action().Run(context.Background(), want)
	if diff := cmp.Diff(Ok[string](want), got); diff != "" {
		t.Errorf("Action().Run() mismatch (-want +got):\n%s", diff)
	}
	_, err = f.Call(context.Background(), []any{"not a form"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("Call() error = %v, want InvalidArgument", err)
	}
}

func TestCall(t *testing.T) {
	p := New(Options[NoContext, string]{})
	inv := Define(p, func(_ context.Context, in string, _ NoContext) (string, error) { return "hi " + in, nil })
	got, err := inv.Call(context.Background(), []any{"bob", "ignored"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if diff := cmp.Diff(any(Ok[string]("hi bob")), got); diff != "" {
		t.Errorf("Call() mismatch (-want +got):\n%s", diff)
	}
}

type requestKey struct{}

func TestConcurrentCallsDeriveOwnContext(t *testing.T) {
	p := New(Options[valueContext, string]{
		Context: func(ctx context.Context) (valueContext, error) {
			return valueContext{Value: ctx.Value(requestKey{}).(int)}, nil
		},
	})
	inv := Define(p, func(_ context.Context, _ any, c valueContext) (string, error) {
		return strconv.Itoa(c.Value), nil
	})
	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := context.WithValue(context.Background(), requestKey{}, i)
			r, err := inv.Invoke(ctx, nil)
			if err != nil || r.Data != strconv.Itoa(i) {
				errs <- errors.Errorf("call %d got %+v, %v", i, r, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestResultWireValue(t *testing.T) {
	if diff := cmp.Diff(map[string]any{"success": true, "data": 1}, Ok[string](1).WireValue()); diff != "" {
		t.Errorf("Ok.WireValue() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"success": false, "error": "e"}, Fail[int]("e").WireValue()); diff != "" {
		t.Errorf("Fail.WireValue() mismatch (-want +got):\n%s", diff)
	}
}

func TestEnv(t *testing.T) {
	tests := []struct {
		expose      string
		mode        string
		wantExposed bool
		wantProd    bool
	}{
		{"", "", false, false},
		{"1", "production", true, true},
		{"true", "development", true, false},
		{"false", "", false, false},
		{"yes", "", true, false},
	}
	for _, tc := range tests {
		t.Run(tc.expose+"/"+tc.mode, func(t *testing.T) {
			t.Setenv("EXPOSE_SERVER_ACTIONS", tc.expose)
			t.Setenv("ACTION_ENV", tc.mode)
			e, err := LoadEnv()
			if err != nil {
				t.Fatalf("LoadEnv() error = %v", err)
			}
			if e.Exposed() != tc.wantExposed || e.Production() != tc.wantProd {
				t.Errorf("LoadEnv() = %+v, exposed=%v production=%v", e, e.Exposed(), e.Production())
			}
		})
	}
}
