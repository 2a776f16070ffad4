// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/actionrpc/pkg/wire"
	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

var schemaCount atomic.Int64

// Schema returns a validator checking input against a JSON Schema before
// coercing it into T. Dates are checked as RFC 3339 strings and files as
// objects with name, type and size.
func Schema[T any](schemaJSON string) (Func[T], error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, errors.Wrap(err, "unmarshalling schema")
	}
	url := fmt.Sprintf("actionrpc://schema/%d", schemaCount.Add(1))
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, errors.Wrap(err, "adding schema resource")
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, errors.Wrap(err, "compiling schema")
	}
	coerce := Coerce[T]()
	return func(raw any) (T, error) {
		var zero T
		inst, err := toJSONValue(raw)
		if err != nil {
			return zero, Failf("input is not representable as JSON")
		}
		if err := compiled.Validate(inst); err != nil {
			return zero, schemaError(err)
		}
		return coerce(raw)
	}, nil
}

// MustSchema is like Schema but panics on an invalid schema.
func MustSchema[T any](schemaJSON string) Func[T] {
	f, err := Schema[T](schemaJSON)
	if err != nil {
		panic(err)
	}
	return f
}

// toJSONValue round-trips v through JSON so that numbers become json.Number,
// as the schema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(wire.Plain(v))
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func schemaError(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return &Error{Violations: []string{err.Error()}}
	}
	violations := collectViolations(verr)
	if len(violations) == 0 {
		violations = []string{verr.Error()}
	}
	return &Error{Violations: violations}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{verr.Error()}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
