// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/pkg/errors"
)

// ErrNotSequence is wrapped by the DecodeError returned when an argument
// payload does not hold a list of arguments.
var ErrNotSequence = errors.New("payload is not an argument list")

// DecodeError reports a malformed payload.
type DecodeError struct {
	Msg string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "decoding payload: " + e.Msg + ": " + e.Err.Error()
	}
	return "decoding payload: " + e.Msg
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErrorf(format string, args ...any) *DecodeError {
	return &DecodeError{Msg: fmt.Sprintf(format, args...)}
}

func wrapDecodeError(err error, msg string) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		return de
	}
	return &DecodeError{Msg: msg, Err: err}
}

const defaultMaxArgsSize = 32 << 20

type decodeOptions struct {
	fs          billy.Filesystem
	maxArgsSize int64
}

// DecodeOption configures Decode and DecodeStream.
type DecodeOption func(*decodeOptions)

// WithFilesystem sets where received file contents are spooled. The default
// is a fresh in-memory filesystem per call.
func WithFilesystem(fs billy.Filesystem) DecodeOption {
	return func(o *decodeOptions) { o.fs = fs }
}

// WithMaxArgsSize bounds the size of the tagged JSON argument part.
func WithMaxArgsSize(n int64) DecodeOption {
	return func(o *decodeOptions) { o.maxArgsSize = n }
}

func makeDecodeOptions(opts []DecodeOption) decodeOptions {
	o := decodeOptions{maxArgsSize: defaultMaxArgsSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.fs == nil {
		o.fs = memfs.New()
	}
	return o
}

// reviver rebuilds values from a tagged JSON tree once every out-of-band part
// is known.
type reviver struct {
	files     map[string]*File
	deferred  map[int]json.RawMessage
	rejected  map[int]string
	resolved  map[int]any
	resolving map[int]bool
}

func newReviver() *reviver {
	return &reviver{
		files:     make(map[string]*File),
		deferred:  make(map[int]json.RawMessage),
		rejected:  make(map[int]string),
		resolved:  make(map[int]any),
		resolving: make(map[int]bool),
	}
}

func (r *reviver) parse(raw []byte) (any, error) {
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, wrapDecodeError(err, "invalid json")
	}
	return r.revive(tree, 0)
}

func (r *reviver) revive(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, decodeErrorf("value nested too deeply")
	}
	switch t := v.(type) {
	case string:
		return r.tag(t)
	case []any:
		if len(t) > 0 {
			switch t[0] {
			case tagSet:
				s := make(Set, 0, len(t)-1)
				for _, item := range t[1:] {
					rv, err := r.revive(item, depth+1)
					if err != nil {
						return nil, err
					}
					s = append(s, rv)
				}
				return s, nil
			case tagMap:
				if len(t)%2 != 1 {
					return nil, decodeErrorf("map with dangling key")
				}
				m := make(Map, 0, len(t)/2)
				for i := 1; i < len(t); i += 2 {
					k, err := r.revive(t[i], depth+1)
					if err != nil {
						return nil, err
					}
					val, err := r.revive(t[i+1], depth+1)
					if err != nil {
						return nil, err
					}
					m = append(m, Entry{Key: k, Value: val})
				}
				return m, nil
			}
		}
		out := make([]any, len(t))
		for i, item := range t {
			rv, err := r.revive(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			rv, err := r.revive(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	}
	return v, nil
}

func (r *reviver) tag(s string) (any, error) {
	if !strings.HasPrefix(s, "$") {
		return s, nil
	}
	switch {
	case strings.HasPrefix(s, "$$"):
		return s[1:], nil
	case s == tagUndefined:
		return Undefined{}, nil
	case s == tagNaN:
		return math.NaN(), nil
	case s == tagInf:
		return math.Inf(1), nil
	case s == tagNegInf:
		return math.Inf(-1), nil
	case strings.HasPrefix(s, tagDate):
		t, err := time.Parse(time.RFC3339Nano, s[len(tagDate):])
		if err != nil {
			return nil, wrapDecodeError(err, "invalid date")
		}
		return t, nil
	case strings.HasPrefix(s, tagBigInt):
		n, ok := new(big.Int).SetString(s[len(tagBigInt):], 10)
		if !ok {
			return nil, decodeErrorf("invalid big integer %q", s)
		}
		return n, nil
	case strings.HasPrefix(s, tagBytes):
		b, err := base64.StdEncoding.DecodeString(s[len(tagBytes):])
		if err != nil {
			return nil, wrapDecodeError(err, "invalid bytes")
		}
		return b, nil
	case strings.HasPrefix(s, tagFile):
		key := s[len(tagFile):]
		f, ok := r.files[key]
		if !ok {
			return nil, decodeErrorf("missing file part %q", key)
		}
		return f, nil
	case strings.HasPrefix(s, tagDeferred):
		id, err := strconv.Atoi(s[len(tagDeferred):])
		if err != nil {
			return nil, wrapDecodeError(err, "invalid deferred reference")
		}
		return r.deferredValue(id)
	}
	return nil, decodeErrorf("unknown tag %q", s)
}

func (r *reviver) deferredValue(id int) (any, error) {
	if v, ok := r.resolved[id]; ok {
		return v, nil
	}
	if msg, ok := r.rejected[id]; ok {
		return Rejected{Message: msg}, nil
	}
	raw, ok := r.deferred[id]
	if !ok {
		return nil, decodeErrorf("unresolved deferred value %d", id)
	}
	if r.resolving[id] {
		return nil, decodeErrorf("deferred value %d refers to itself", id)
	}
	r.resolving[id] = true
	defer delete(r.resolving, id)
	v, err := r.parse(raw)
	if err != nil {
		return nil, err
	}
	r.resolved[id] = v
	return v, nil
}
