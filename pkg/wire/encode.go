// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const maxDepth = 1000

// maxSafeInteger is the largest integer a JSON number holds exactly once
// decoded as a float64. Larger integers are sent as big integers.
const maxSafeInteger = 1<<53 - 1

// Tags written in place of values that JSON cannot express.
const (
	tagUndefined = "$u"
	tagDate      = "$D"
	tagBigInt    = "$n"
	tagBytes     = "$B"
	tagFile      = "$F"
	tagDeferred  = "$P"
	tagSet       = "$S"
	tagMap       = "$M"
	tagNaN       = "$NaN"
	tagInf       = "$Inf"
	tagNegInf    = "$-Inf"
)

var timeType = reflect.TypeOf(time.Time{})

// member is a single key of an ordered JSON object.
type member struct {
	key   string
	value any
}

// object is a JSON object whose keys are written in order.
type object []member

func (o object) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, m := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(m.key)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		v, err := json.Marshal(m.value)
		if err != nil {
			return nil, err
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

type fileRef struct {
	key  string
	file *File
}

type deferredRef struct {
	id int
	d  *Deferred
}

// encoder converts Go values into a tagged JSON tree, collecting the files and
// deferred values that must be sent out of band.
type encoder struct {
	files    []fileRef
	deferred []deferredRef
	fileKeys map[*File]string
}

func newEncoder() *encoder {
	return &encoder{fileKeys: make(map[*File]string)}
}

func escape(s string) string {
	if strings.HasPrefix(s, "$") {
		return "$" + s
	}
	return s
}

func encodeFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return tagNaN
	case math.IsInf(f, 1):
		return tagInf
	case math.IsInf(f, -1):
		return tagNegInf
	}
	return f
}

func (e *encoder) value(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, errors.New("value nested too deeply")
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case Undefined:
		return tagUndefined, nil
	case Valuer:
		return e.value(t.WireValue(), depth+1)
	case *Deferred:
		if t == nil {
			return nil, nil
		}
		id := len(e.deferred)
		e.deferred = append(e.deferred, deferredRef{id: id, d: t})
		return tagDeferred + strconv.Itoa(id), nil
	case *File:
		if t == nil {
			return nil, nil
		}
		key, ok := e.fileKeys[t]
		if !ok {
			key = strconv.Itoa(len(e.files))
			e.fileKeys[t] = key
			e.files = append(e.files, fileRef{key: key, file: t})
		}
		return tagFile + key, nil
	case time.Time:
		return tagDate + t.Format(time.RFC3339Nano), nil
	case *big.Int:
		if t == nil {
			return nil, nil
		}
		return tagBigInt + t.String(), nil
	case []byte:
		if t == nil {
			return nil, nil
		}
		return tagBytes + base64.StdEncoding.EncodeToString(t), nil
	case string:
		return escape(t), nil
	case bool:
		return t, nil
	case float64:
		return encodeFloat(t), nil
	case Set:
		out := make([]any, 0, len(t)+1)
		out = append(out, tagSet)
		for _, item := range t {
			ev, err := e.value(item, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		return out, nil
	case Map:
		out := make([]any, 0, 2*len(t)+1)
		out = append(out, tagMap)
		for _, entry := range t {
			k, err := e.value(entry.Key, depth+1)
			if err != nil {
				return nil, err
			}
			ev, err := e.value(entry.Value, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, k, ev)
		}
		return out, nil
	}
	return e.reflectValue(reflect.ValueOf(v), depth)
}

func (e *encoder) reflectValue(rv reflect.Value, depth int) (any, error) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > maxSafeInteger || n < -maxSafeInteger {
			return tagBigInt + strconv.FormatInt(n, 10), nil
		}
		return n, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		if n > maxSafeInteger {
			return tagBigInt + strconv.FormatUint(n, 10), nil
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		return encodeFloat(rv.Float()), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return escape(rv.String()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return e.value(rv.Elem().Interface(), depth+1)
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return e.value(rv.Bytes(), depth+1)
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			ev, err := e.value(rv.Index(i).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case reflect.Map:
		if rv.IsNil() {
			return nil, nil
		}
		return e.mapValue(rv, depth)
	case reflect.Struct:
		return e.structValue(rv, depth)
	}
	return nil, errors.Errorf("unsupported type %s", rv.Type())
}

func (e *encoder) mapValue(rv reflect.Value, depth int) (any, error) {
	keys := rv.MapKeys()
	if rv.Type().Key().Kind() == reflect.String {
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		out := make(object, 0, len(keys))
		for _, k := range keys {
			ev, err := e.value(rv.MapIndex(k).Interface(), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, member{key: k.String(), value: ev})
		}
		return out, nil
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	m := make(Map, 0, len(keys))
	for _, k := range keys {
		m = append(m, Entry{Key: k.Interface(), Value: rv.MapIndex(k).Interface()})
	}
	return e.value(m, depth+1)
}

func (e *encoder) structValue(rv reflect.Value, depth int) (any, error) {
	var out object
	if err := e.appendFields(&out, rv, depth); err != nil {
		return nil, err
	}
	if out == nil {
		out = object{}
	}
	return out, nil
}

func (e *encoder) appendFields(out *object, rv reflect.Value, depth int) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		name, omitEmpty, skip := jsonField(field)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if field.Anonymous && name == "" && field.IsExported() {
			if fv.Kind() == reflect.Pointer {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Struct && fv.Type() != timeType {
				if err := e.appendFields(out, fv, depth+1); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		ev, err := e.value(fv.Interface(), depth+1)
		if err != nil {
			return errors.Wrapf(err, "field %s", field.Name)
		}
		*out = append(*out, member{key: name, value: ev})
	}
	return nil
}

// jsonField interprets the json struct tag of f.
func jsonField(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false, false
	}
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty, false
}
