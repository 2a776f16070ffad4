// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package form converts HTML form submissions to and from the key/value
// objects accepted by form actions.
package form

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/google/actionrpc/pkg/wire"
	"github.com/pkg/errors"
)

var (
	ErrInvalidType      = errors.New("invalid type")
	ErrUnsupportedField = errors.New("unsupported field")
	ErrNotForm          = errors.New("request is not a form submission")
)

// DefaultMaxMemory bounds the part of a multipart form held in memory.
const DefaultMaxMemory = 32 << 20

// Values returns the fields of v as an object. A key given once maps to its
// string and a repeated key to the list of its strings.
func Values(v url.Values) map[string]any {
	fields := make(map[string]any, len(v))
	for k, vs := range v {
		switch len(vs) {
		case 0:
		case 1:
			fields[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, s := range vs {
				list[i] = s
			}
			fields[k] = list
		}
	}
	return fields
}

// Multipart returns the fields of f as an object, with uploads as *wire.File.
// A file field shadows a text field of the same name.
func Multipart(f *multipart.Form) map[string]any {
	fields := Values(f.Value)
	for k, fhs := range f.File {
		if len(fhs) == 0 {
			continue
		}
		fh := fhs[len(fhs)-1]
		fields[k] = wire.LazyFile(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, func() (io.ReadCloser, error) {
			return fh.Open()
		})
	}
	return fields
}

// Parse reads the form submitted with r, which must be url-encoded or
// multipart.
func Parse(r *http.Request, maxMemory int64) (map[string]any, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.Wrap(ErrNotForm, err.Error())
	}
	switch mt {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, errors.Wrap(err, "parsing form")
		}
		return Values(r.PostForm), nil
	case "multipart/form-data":
		if maxMemory <= 0 {
			maxMemory = DefaultMaxMemory
		}
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, errors.Wrap(err, "parsing multipart form")
		}
		return Multipart(r.MultipartForm), nil
	default:
		return nil, errors.Wrap(ErrNotForm, mt)
	}
}

// fieldName returns the form key of field, or false if it is skipped.
func fieldName(field reflect.StructField) (string, bool) {
	tag, ok := field.Tag.Lookup("form")
	if !ok {
		tag = field.Tag.Get("json")
	}
	if tag == "-" {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	return name, true
}

// Marshal encodes a struct as form values. String fields and string slices
// are sent as-is, booleans and numbers in their text form, and any other
// field as JSON. Zero fields are omitted.
func Marshal(in any) (url.Values, error) {
	tvalue := reflect.ValueOf(in)
	if tvalue.Kind() == reflect.Pointer {
		tvalue = reflect.Indirect(tvalue)
	}
	if !tvalue.IsValid() || tvalue.Kind() != reflect.Struct {
		return nil, ErrInvalidType
	}
	ttype := tvalue.Type()
	v := url.Values{}
	for i := range ttype.NumField() {
		field, value := ttype.Field(i), tvalue.Field(i)
		if !field.IsExported() {
			continue
		} else if field.Anonymous {
			return nil, errors.Wrap(ErrUnsupportedField, field.Name)
		}
		name, ok := fieldName(field)
		if !ok || value.IsZero() {
			continue
		}
		switch field.Type.Kind() {
		case reflect.String:
			v.Set(name, value.String())
		case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			b, _ := json.Marshal(value.Interface())
			v.Set(name, string(b))
		case reflect.Slice:
			if field.Type.Elem().Kind() == reflect.String {
				v[name] = value.Convert(reflect.TypeFor[[]string]()).Interface().([]string)
				continue
			}
			fallthrough
		default:
			jsonv, err := json.Marshal(value.Interface())
			if err != nil {
				return nil, errors.Wrapf(err, "encoding field %s", field.Name)
			}
			v.Set(name, string(jsonv))
		}
	}
	return v, nil
}
