// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"mime"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/google/actionrpc/pkg/wire"
	"github.com/pkg/errors"
)

// ParseValue converts a command-line argument into an action argument.
// "@path" attaches the file at path within fs, "@@..." is the literal string
// "@...", valid JSON is decoded, and anything else is taken as a string.
func ParseValue(fs billy.Filesystem, arg string) (any, error) {
	switch {
	case strings.HasPrefix(arg, "@@"):
		return arg[1:], nil
	case strings.HasPrefix(arg, "@"):
		return attach(fs, arg[1:])
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return arg, nil
	}
	return v, nil
}

// ParseValues applies ParseValue to each argument.
func ParseValues(fs billy.Filesystem, args []string) ([]any, error) {
	values := make([]any, 0, len(args))
	for i, arg := range args {
		v, err := ParseValue(fs, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "argument %d", i+1)
		}
		values = append(values, v)
	}
	return values, nil
}

// ParseFields converts "key=value" arguments into form fields. Values are
// kept as strings, except that "key=@path" attaches a file.
func ParseFields(fs billy.Filesystem, args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, errors.Errorf("field %q is not of the form key=value", arg)
		}
		if strings.HasPrefix(v, "@") && !strings.HasPrefix(v, "@@") {
			f, err := attach(fs, v[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "field %s", k)
			}
			fields[k] = f
			continue
		}
		fields[k] = strings.TrimPrefix(v, "@")
	}
	return fields, nil
}

func attach(fs billy.Filesystem, p string) (*wire.File, error) {
	if p == "" {
		return nil, errors.New("empty file path")
	}
	contentType := mime.TypeByExtension(path.Ext(p))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return wire.OpenFile(fs, p, path.Base(p), contentType)
}
