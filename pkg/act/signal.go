// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package act

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Digest prefixes identifying the built-in signals.
const (
	RedirectDigestPrefix = "ACTION_REDIRECT"
	NotFoundDigest       = "ACTION_NOT_FOUND"
)

// Signal is a control-flow interruption raised from an action. Signals are
// never mapped into a Result: invokers return them as errors unchanged so the
// host can act on them.
//
// The digest encodes the signal for the host, for example
// "ACTION_REDIRECT;replace;/login;307;".
type Signal interface {
	error
	Digest() string
}

// RedirectMode tells a browser host how to apply a redirect.
type RedirectMode string

const (
	RedirectReplace RedirectMode = "replace"
	RedirectPush    RedirectMode = "push"
)

// RedirectSignal asks the host to send the caller elsewhere.
type RedirectSignal struct {
	Location string
	Mode     RedirectMode
	Status   int
}

var _ Signal = &RedirectSignal{}

// Redirect returns a signal redirecting to location with a 307 status.
func Redirect(location string) error {
	return RedirectWith(location, RedirectReplace, http.StatusTemporaryRedirect)
}

// RedirectWith returns a redirect signal with an explicit mode and status.
func RedirectWith(location string, mode RedirectMode, status int) error {
	return &RedirectSignal{Location: location, Mode: mode, Status: status}
}

func (r *RedirectSignal) Error() string {
	return "redirect to " + r.Location
}

// Digest implements Signal.
func (r *RedirectSignal) Digest() string {
	return fmt.Sprintf("%s;%s;%s;%d;", RedirectDigestPrefix, r.Mode, r.Location, r.Status)
}

type notFound struct{}

func (notFound) Error() string  { return "not found" }
func (notFound) Digest() string { return NotFoundDigest }

// NotFound is the signal for a missing resource.
var NotFound Signal = notFound{}

// AsSignal finds the first Signal in err's chain.
func AsSignal(err error) (Signal, bool) {
	var s Signal
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}
