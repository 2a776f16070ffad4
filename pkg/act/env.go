// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package act

import (
	"context"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// ModeProduction is the Env.Mode value that hides unexpected error details.
const ModeProduction = "production"

// Env is the process configuration read by actions and their endpoint.
type Env struct {
	// Expose enables the HTTP endpoint. Any value other than empty, "0" or
	// "false" counts as set.
	Expose string `env:"EXPOSE_SERVER_ACTIONS"`
	// Mode is the execution mode, such as "development" or "production".
	Mode string `env:"ACTION_ENV" envDefault:"development"`
}

// LoadEnv reads Env from the process environment.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, errors.Wrap(err, "parsing environment")
	}
	return e, nil
}

// Exposed reports whether the endpoint may execute actions.
func (e Env) Exposed() bool {
	switch strings.ToLower(strings.TrimSpace(e.Expose)) {
	case "", "0", "false":
		return false
	}
	return true
}

// Production reports whether e selects production mode.
func (e Env) Production() bool {
	return e.Mode == ModeProduction
}

type envKey struct{}

// WithEnv returns a context whose calls are configured by e rather than by
// the process environment. Hosts use it to pass their fixed configuration to
// the actions they run.
func WithEnv(ctx context.Context, e Env) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

// EnvFromContext returns the Env attached by WithEnv.
func EnvFromContext(ctx context.Context) (Env, bool) {
	e, ok := ctx.Value(envKey{}).(Env)
	return e, ok
}

// productionMode reports the mode of the call, falling back to the process
// environment. An unreadable environment counts as production.
func productionMode(ctx context.Context) bool {
	if e, ok := EnvFromContext(ctx); ok {
		return e.Production()
	}
	e, err := LoadEnv()
	if err != nil {
		return true
	}
	return e.Production()
}
