// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package act

// Result is the outcome of an action: either Data on success or Error on
// failure. Exactly one of the two is meaningful, as reported by Success.
type Result[T, E any] struct {
	Success bool
	Data    T
	Error   E
}

// Ok returns a successful Result holding data.
func Ok[E, T any](data T) Result[T, E] {
	return Result[T, E]{Success: true, Data: data}
}

// Fail returns a failed Result holding err.
func Fail[T, E any](err E) Result[T, E] {
	return Result[T, E]{Error: err}
}

// WireValue implements wire.Valuer so that only the populated branch is sent.
func (r Result[T, E]) WireValue() any {
	if r.Success {
		return map[string]any{"success": true, "data": r.Data}
	}
	return map[string]any{"success": false, "error": r.Error}
}
