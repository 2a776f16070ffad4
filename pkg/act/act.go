// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package act provides typed actions: server functions wrapped with input
// validation, per-call context derivation and error mapping, which always
// report expected failures as data in a Result.
//
// Actions are transport agnostic. Package api exposes them over HTTP and
// package cli binds them to cobra commands.
package act

import "context"

// Input is a validated input type (request, config, etc.)
//
// Action inputs implementing Input are checked with Validate after the
// configured validators run.
type Input interface {
	Validate() error
}

// Deps is a marker type for dependency containers.
type Deps any

// InitDeps initializes dependencies from context.
type InitDeps[D Deps] func(context.Context) (D, error)

// Action is a transport-agnostic operation.
type Action[I Input, O any, D Deps] func(context.Context, I, D) (*O, error)

// NoDeps is a zero-value dependency container.
type NoDeps struct{}

// NoDepsInit is an InitDeps that returns NoDeps.
func NoDepsInit(context.Context) (*NoDeps, error) { return &NoDeps{}, nil }

// NoOutput is a zero-value output for actions that only produce side effects.
type NoOutput struct{}

// NoContext is the context type of providers that do not derive one.
type NoContext = struct{}
