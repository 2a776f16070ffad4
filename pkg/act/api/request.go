// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"net/http"
	"time"
)

type requestKey struct{}

type requestState struct {
	req *http.Request
	rw  http.ResponseWriter
}

func withRequest(ctx context.Context, r *http.Request, rw http.ResponseWriter) context.Context {
	return context.WithValue(ctx, requestKey{}, &requestState{req: r, rw: rw})
}

// RequestFromContext returns the HTTP request of the call being served.
func RequestFromContext(ctx context.Context) (*http.Request, bool) {
	s, ok := ctx.Value(requestKey{}).(*requestState)
	if !ok {
		return nil, false
	}
	return s.req, true
}

// Cookie returns the named request cookie of the call being served.
func Cookie(ctx context.Context, name string) (*http.Cookie, bool) {
	s, ok := ctx.Value(requestKey{}).(*requestState)
	if !ok {
		return nil, false
	}
	c, err := s.req.Cookie(name)
	if err != nil {
		return nil, false
	}
	return c, true
}

// SetCookie adds a Set-Cookie header to the response of the call being
// served. It reports false outside of a call or once the response has
// started.
func SetCookie(ctx context.Context, c *http.Cookie) bool {
	s, ok := ctx.Value(requestKey{}).(*requestState)
	if !ok {
		return false
	}
	if lw, ok := s.rw.(*lazyWriter); ok && lw.started {
		return false
	}
	http.SetCookie(s.rw, c)
	return true
}

// DeleteCookie expires the named cookie on the caller.
func DeleteCookie(ctx context.Context, name string) bool {
	return SetCookie(ctx, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		Expires: time.Unix(0, 0),
		MaxAge:  -1,
	})
}
