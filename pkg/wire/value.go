// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package wire implements the argument and result codec used to carry action
// calls over HTTP.
//
// Values are written as tagged JSON: plain JSON covers the scalars, arrays and
// objects, and strings starting with '$' mark the richer types (dates, sets,
// maps, big integers, raw bytes and out-of-band file references). Arguments
// travel as a multipart form whose first part holds the tagged JSON and whose
// remaining parts hold file bytes. Results travel as a stream of newline
// delimited frames so that deferred values and large files can follow the
// root value.
package wire

import (
	"bytes"
	"encoding/json"
	"io"
	"reflect"

	"github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
)

// Undefined is the absent value. It is distinct from nil, which is null.
type Undefined struct{}

// Set is an unordered collection of distinct values.
//
// Insertion order is kept so that encoding is deterministic.
type Set []any

// NewSet returns a Set holding the distinct values of vs.
func NewSet(vs ...any) Set {
	s := make(Set, 0, len(vs))
	for _, v := range vs {
		s = s.Add(v)
	}
	return s
}

// Has reports whether v is a member of the set.
func (s Set) Has(v any) bool {
	for _, item := range s {
		if equal(item, v) {
			return true
		}
	}
	return false
}

// Add returns the set with v added, if not already present.
func (s Set) Add(v any) Set {
	if s.Has(v) {
		return s
	}
	return append(s, v)
}

// Entry is a single key/value pair of a Map.
type Entry struct {
	Key   any
	Value any
}

// Map is an ordered association whose keys may be any value, not only strings.
type Map []Entry

// Get returns the value stored for key.
func (m Map) Get(key any) (any, bool) {
	for _, e := range m {
		if equal(e.Key, key) {
			return e.Value, true
		}
	}
	return nil, false
}

// Set returns the map with key bound to value.
func (m Map) Set(key, value any) Map {
	for i, e := range m {
		if equal(e.Key, key) {
			m[i].Value = value
			return m
		}
	}
	return append(m, Entry{Key: key, Value: value})
}

func equal(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta == nil || ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// Valuer is implemented by types that choose their own wire representation.
type Valuer interface {
	WireValue() any
}

// Deferred is a value that is produced after the enclosing value has started
// streaming. Deferred values are only supported in result streams.
type Deferred struct {
	fn func() (any, error)
}

// Defer wraps fn so that its result is streamed once available.
func Defer(fn func() (any, error)) *Deferred {
	return &Deferred{fn: fn}
}

// Rejected stands in for a deferred value whose producer failed.
type Rejected struct {
	Message string
}

func (r Rejected) Error() string { return r.Message }

// File is a named binary attachment.
type File struct {
	Name string
	Type string
	Size int64
	open func() (io.ReadCloser, error)
}

// NewFile returns a File backed by data.
func NewFile(name, contentType string, data []byte) *File {
	return &File{
		Name: name,
		Type: contentType,
		Size: int64(len(data)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// LazyFile returns a File whose contents are produced by open.
func LazyFile(name, contentType string, size int64, open func() (io.ReadCloser, error)) *File {
	return &File{Name: name, Type: contentType, Size: size, open: open}
}

// OpenFile returns a File backed by path within fs.
func OpenFile(fs billy.Filesystem, path, name, contentType string) (*File, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	return &File{
		Name: name,
		Type: contentType,
		Size: info.Size(),
		open: func() (io.ReadCloser, error) {
			return fs.Open(path)
		},
	}, nil
}

// Open returns a reader over the file contents.
func (f *File) Open() (io.ReadCloser, error) {
	if f.open == nil {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	return f.open()
}

// MarshalJSON encodes the file metadata, matching Plain.
func (f *File) MarshalJSON() ([]byte, error) {
	return json.Marshal(Plain(f))
}

// Bytes reads the whole file into memory.
func (f *File) Bytes() ([]byte, error) {
	r, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
