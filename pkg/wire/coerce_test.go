// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type media struct {
	Title   string          `json:"title"`
	Year    int             `json:"year"`
	Watched bool            `json:"watched"`
	Added   time.Time       `json:"added"`
	Tags    []string        `json:"tags"`
	Genres  map[string]bool `json:"genres"`
	Cover   *File           `json:"cover"`
	Note    *string         `json:"note"`
}

func TestCoerce(t *testing.T) {
	added := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cover := NewFile("c.png", "image/png", []byte("png"))
	tests := []struct {
		name    string
		in      any
		weak    bool
		want    media
		wantErr bool
	}{
		{
			name: "decoded values",
			in: map[string]any{
				"title":   "Dune",
				"year":    float64(2021),
				"watched": true,
				"added":   added,
				"tags":    Set{"scifi", "book"},
				"genres":  Set{"drama"},
				"cover":   cover,
				"note":    Undefined{},
			},
			want: media{
				Title:   "Dune",
				Year:    2021,
				Watched: true,
				Added:   added,
				Tags:    []string{"scifi", "book"},
				Genres:  map[string]bool{"drama": true},
				Cover:   cover,
			},
		},
		{
			name: "date string",
			in:   map[string]any{"added": "2024-05-01T00:00:00Z"},
			want: media{Added: added},
		},
		{
			name: "weak form strings",
			in:   map[string]any{"year": "1999", "watched": "true", "tags": "one"},
			weak: true,
			want: media{Year: 1999, Watched: true, Tags: []string{"one"}},
		},
		{
			name:    "strict rejects strings",
			in:      map[string]any{"year": "1999"},
			wantErr: true,
		},
		{
			name:    "not an object",
			in:      "title",
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got media
			var err error
			if tc.weak {
				err = WeakCoerce(tc.in, &got)
			} else {
				err = Coerce(tc.in, &got)
			}
			if (err != nil) != tc.wantErr {
				t.Fatalf("Coerce() error = %v, wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if diff := cmp.Diff(tc.want, got, cmpopts.IgnoreUnexported(File{})); diff != "" {
				t.Errorf("Coerce() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCoerceBigInt(t *testing.T) {
	wide := big.NewInt(1<<62 + 1)
	var i64 int64
	if err := Coerce(wide, &i64); err != nil || i64 != 1<<62+1 {
		t.Errorf("Coerce(int64) = %d, %v, want %d", i64, err, int64(1<<62+1))
	}
	var u64 uint64
	if err := Coerce(new(big.Int).SetUint64(math.MaxUint64), &u64); err != nil || u64 != math.MaxUint64 {
		t.Errorf("Coerce(uint64) = %d, %v", u64, err)
	}
	var f float64
	if err := Coerce(wide, &f); err != nil || f != float64(1<<62) {
		t.Errorf("Coerce(float64) = %v, %v", f, err)
	}
	var kept *big.Int
	if err := Coerce(wide, &kept); err != nil || kept.Cmp(wide) != 0 {
		t.Errorf("Coerce(*big.Int) = %v, %v", kept, err)
	}
	var small int32
	if err := Coerce(wide, &small); err == nil {
		t.Errorf("Coerce(int32) = %d, want overflow error", small)
	}
	var unsigned uint
	if err := Coerce(big.NewInt(-1), &unsigned); err == nil {
		t.Errorf("Coerce(uint) = %d, want error for negative value", unsigned)
	}
}

func TestCoerceMap(t *testing.T) {
	var got map[float64]string
	if err := Coerce(Map{{Key: float64(1), Value: "a"}}, &got); err != nil {
		t.Fatalf("Coerce() error = %v", err)
	}
	if diff := cmp.Diff(map[float64]string{1: "a"}, got); diff != "" {
		t.Errorf("Coerce() mismatch (-want +got):\n%s", diff)
	}
}

func TestPlain(t *testing.T) {
	in := map[string]any{
		"when":  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		"set":   Set{"a", Undefined{}},
		"map":   Map{{Key: "k", Value: float64(1)}},
		"file":  NewFile("a.txt", "text/plain", []byte("abc")),
		"list":  []any{Rejected{Message: "no"}},
		"plain": "x",
	}
	want := map[string]any{
		"when":  "2024-01-01T00:00:00Z",
		"set":   []any{"a", nil},
		"map":   []any{[]any{"k", float64(1)}},
		"file":  map[string]any{"name": "a.txt", "type": "text/plain", "size": int64(3)},
		"list":  []any{map[string]any{"error": "no"}},
		"plain": "x",
	}
	if diff := cmp.Diff(want, Plain(in)); diff != "" {
		t.Errorf("Plain() mismatch (-want +got):\n%s", diff)
	}
}
