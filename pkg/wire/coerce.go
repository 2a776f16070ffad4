// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

var (
	setType = reflect.TypeOf(Set{})
	mapType = reflect.TypeOf(Map{})
)

// Coerce converts a decoded value into out, which must be a pointer.
//
// Struct fields are matched by their json tag. Dates, files and big integers
// are assigned as is, and RFC 3339 strings are accepted for time.Time.
func Coerce(in, out any) error {
	return coerce(in, out, false)
}

// WeakCoerce is Coerce with lenient scalar conversions, suited to form input
// where every field arrives as a string.
func WeakCoerce(in, out any) error {
	return coerce(in, out, true)
}

func coerce(in, out any, weak bool) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		Squash:           true,
		WeaklyTypedInput: weak,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			setHook,
			mapHook,
			bigIntHook,
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			// Last, since the composed hooks cannot see a nil value.
			undefinedHook,
		),
	})
	if err != nil {
		return errors.Wrap(err, "creating decoder")
	}
	return dec.Decode(in)
}

func undefinedHook(from, to reflect.Type, data any) (any, error) {
	if _, ok := data.(Undefined); ok && to != reflect.TypeOf(Undefined{}) {
		return nil, nil
	}
	return data, nil
}

func setHook(from, to reflect.Type, data any) (any, error) {
	s, ok := data.(Set)
	if !ok || to == setType || to.Kind() == reflect.Interface {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Slice, reflect.Array:
		return []any(s), nil
	case reflect.Map:
		var member any
		switch to.Elem().Kind() {
		case reflect.Bool:
			member = true
		case reflect.Struct:
			if to.Elem().NumField() != 0 {
				return nil, errors.Errorf("cannot convert set to %s", to)
			}
			member = struct{}{}
		default:
			return nil, errors.Errorf("cannot convert set to %s", to)
		}
		m := make(map[any]any, len(s))
		for _, item := range s {
			if item != nil && !reflect.TypeOf(item).Comparable() {
				return nil, errors.Errorf("set member %T cannot be a map key", item)
			}
			m[item] = member
		}
		return m, nil
	}
	return data, nil
}

var bigIntType = reflect.TypeOf((*big.Int)(nil))

// bigIntHook converts big integers into Go integer and float fields, failing
// when the value does not fit.
func bigIntHook(from, to reflect.Type, data any) (any, error) {
	n, ok := data.(*big.Int)
	if !ok || n == nil || to == bigIntType || to.Kind() == reflect.Interface {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if !n.IsInt64() || reflect.Zero(to).OverflowInt(n.Int64()) {
			return nil, errors.Errorf("%s overflows %s", n, to)
		}
		return n.Int64(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if !n.IsUint64() || reflect.Zero(to).OverflowUint(n.Uint64()) {
			return nil, errors.Errorf("%s overflows %s", n, to)
		}
		return n.Uint64(), nil
	case reflect.Float32, reflect.Float64:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	}
	return data, nil
}

func mapHook(from, to reflect.Type, data any) (any, error) {
	wm, ok := data.(Map)
	if !ok || to == mapType || to.Kind() != reflect.Map {
		return data, nil
	}
	m := make(map[any]any, len(wm))
	for _, e := range wm {
		if e.Key != nil && !reflect.TypeOf(e.Key).Comparable() {
			return nil, errors.Errorf("map key %T cannot be a Go map key", e.Key)
		}
		m[e.Key] = e.Value
	}
	return m, nil
}

// Plain returns v with every value JSON cannot hold directly replaced by a
// JSON compatible stand-in: dates become RFC 3339 strings, sets become arrays,
// maps become arrays of [key, value] pairs and files become their metadata.
func Plain(v any) any {
	switch t := v.(type) {
	case Undefined:
		return nil
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case *big.Int:
		if t == nil {
			return nil
		}
		return t.String()
	case []byte:
		return t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Sprint(t)
		}
		return t
	case *File:
		if t == nil {
			return nil
		}
		return map[string]any{"name": t.Name, "type": t.Type, "size": t.Size}
	case Rejected:
		return map[string]any{"error": t.Message}
	case Set:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Plain(item)
		}
		return out
	case Map:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = []any{Plain(e.Key), Plain(e.Value)}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Plain(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = Plain(item)
		}
		return out
	}
	return v
}
