// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/actionrpc/pkg/act"
	"github.com/pkg/errors"
)

// ParseRedirectDigest extracts the target and status code of a redirect
// signal digest of the form "ACTION_REDIRECT;mode;location;status;".
// The location may itself contain ';'.
func ParseRedirectDigest(digest string) (location string, code int, err error) {
	parts := strings.Split(digest, ";")
	if len(parts) < 5 || parts[0] != act.RedirectDigestPrefix || parts[len(parts)-1] != "" {
		return "", 0, errors.Errorf("malformed redirect digest %q", digest)
	}
	code, err = strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return "", 0, errors.Wrapf(err, "malformed redirect status in %q", digest)
	}
	if code < http.StatusMultipleChoices || code > 399 {
		return "", 0, errors.Errorf("redirect status %d out of range", code)
	}
	location = strings.Join(parts[2:len(parts)-2], ";")
	if location == "" {
		return "", 0, errors.Errorf("redirect digest %q has no location", digest)
	}
	return location, code, nil
}
