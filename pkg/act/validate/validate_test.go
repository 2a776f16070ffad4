// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/google/actionrpc/pkg/wire"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type newMedia struct {
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	ReleaseDate time.Time `json:"releaseDate"`
}

const newMediaSchema = `{
  "type": "object",
  "required": ["title", "type"],
  "properties": {
    "title": {"type": "string", "minLength": 1},
    "type": {"enum": ["movie", "series"]},
    "releaseDate": {"type": "string", "format": "date-time"}
  }
}`

func TestSchema(t *testing.T) {
	release := time.Date(1999, 3, 31, 0, 0, 0, 0, time.UTC)
	v, err := Schema[newMedia](newMediaSchema)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	tests := []struct {
		name           string
		input          any
		want           newMedia
		wantViolations int
	}{
		{
			name:  "valid",
			input: map[string]any{"title": "The Matrix", "type": "movie", "releaseDate": release},
			want:  newMedia{Title: "The Matrix", Type: "movie", ReleaseDate: release},
		},
		{
			name:           "empty title",
			input:          map[string]any{"title": "", "type": "movie"},
			wantViolations: 1,
		},
		{
			name:           "two problems",
			input:          map[string]any{"title": "", "type": "book"},
			wantViolations: 2,
		},
		{
			name:           "not an object",
			input:          wire.NewSet("a"),
			wantViolations: 1,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := v.Parse(tc.input)
			if tc.wantViolations == 0 {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				if diff := cmp.Diff(tc.want, got); diff != "" {
					t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("Parse() error = %v, want *Error", err)
			}
			if len(verr.Violations) != tc.wantViolations {
				t.Errorf("Violations = %q, want %d entries", verr.Violations, tc.wantViolations)
			}
			if verr.SafeMessage() == "" {
				t.Error("SafeMessage() is empty")
			}
		})
	}
}

func TestSchemaInvalid(t *testing.T) {
	if _, err := Schema[newMedia](`{"type": 12}`); err == nil {
		t.Error("Schema() accepted an invalid schema")
	}
	if _, err := Schema[newMedia](`{`); err == nil {
		t.Error("Schema() accepted malformed JSON")
	}
}

func TestCoerceAndWeak(t *testing.T) {
	type form struct {
		Count int  `json:"count"`
		On    bool `json:"on"`
	}
	in := map[string]any{"count": "3", "on": "true"}
	if _, err := Coerce[form]().Parse(in); err == nil {
		t.Error("Coerce() accepted string fields")
	} else {
		var verr *Error
		if !errors.As(err, &verr) {
			t.Errorf("Coerce() error = %T, want *Error", err)
		}
	}
	got, err := Weak[form]().Parse(in)
	if err != nil {
		t.Fatalf("Weak() error = %v", err)
	}
	if diff := cmp.Diff(form{Count: 3, On: true}, got); diff != "" {
		t.Errorf("Weak() mismatch (-want +got):\n%s", diff)
	}
	same, err := Coerce[form]().Parse(got)
	if err != nil || same != got {
		t.Errorf("Coerce() of typed value = %+v, %v", same, err)
	}
}

func TestChainAndCheck(t *testing.T) {
	nonEmpty := Check(func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("must not be empty")
		}
		return nil
	})
	trim := Func[string](func(raw any) (string, error) {
		return strings.TrimSpace(raw.(string)), nil
	})
	v := Chain(Coerce[string](), trim, nonEmpty)
	got, err := v.Parse("  hi ")
	if err != nil || got != "hi" {
		t.Errorf("Parse() = %q, %v, want %q", got, err, "hi")
	}
	_, err = v.Parse("   ")
	var verr *Error
	if !errors.As(err, &verr) || verr.SafeMessage() != "must not be empty" {
		t.Errorf("Parse() error = %v, want violation", err)
	}
	_, err = nonEmpty.Parse(3)
	if !errors.As(err, &verr) {
		t.Errorf("Check() with wrong type error = %v, want *Error", err)
	}
}
