// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package urlx

import (
	"net/url"
	"strings"
)

// MustParse will call url.Parse and panic if there is an error, returning on success.
func MustParse(rawURL string) *url.URL {
	if u, err := url.Parse(rawURL); err != nil {
		panic(err)
	} else {
		return u
	}
}

// Join returns a copy of base with each segment appended to its path. Each
// segment is escaped so that it maps to exactly one path element.
func Join(base *url.URL, segments ...string) *url.URL {
	u := *base
	escaped := strings.TrimSuffix(u.EscapedPath(), "/")
	raw := strings.TrimSuffix(u.Path, "/")
	for _, s := range segments {
		escaped += "/" + url.PathEscape(s)
		raw += "/" + s
	}
	if len(segments) == 0 {
		return &u
	}
	u.Path, u.RawPath = raw, escaped
	return &u
}
