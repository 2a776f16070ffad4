// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"io"
	"log"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/actionrpc/pkg/act"
	"github.com/google/actionrpc/pkg/act/api"
	"github.com/google/actionrpc/pkg/act/registry"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTokens(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	tokens, err := NewTokens([]byte("secret"), clock)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := tokens.Encode(Session{UserID: 7})
	if err != nil {
		t.Fatal(err)
	}
	got, err := tokens.Decode(tok)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if diff := cmp.Diff(Session{UserID: 7}, got); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}

	other, _ := NewTokens([]byte("other"), clock)
	if _, err := other.Decode(tok); err == nil {
		t.Error("Decode() with another secret succeeded")
	}
	later, _ := NewTokens([]byte("secret"), func() time.Time { return now.Add(SessionTTL + time.Minute) })
	if _, err := later.Decode(tok); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("Decode() of expired token error = %v, want ErrTokenExpired", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, sessionClaims{UserID: 7}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tokens.Decode(unsigned); err == nil {
		t.Error("Decode() of unsigned token succeeded")
	}
	if _, err := NewTokens(nil, nil); err == nil {
		t.Error("NewTokens() without a secret succeeded")
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	id, err := s.Create(ctx, User{Email: "a@example.com", Username: "alice", PasswordHash: "h", SecretNumber: 3})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, User{Email: "a@example.com", Username: "other", PasswordHash: "h"}); err == nil {
		t.Error("Create() with a duplicate email succeeded")
	}
	if taken, err := s.UsernameTaken(ctx, "alice", 0); err != nil || !taken {
		t.Errorf("UsernameTaken(alice) = %v, %v", taken, err)
	}
	if taken, err := s.UsernameTaken(ctx, "alice", id); err != nil || taken {
		t.Errorf("UsernameTaken(alice, self) = %v, %v", taken, err)
	}
	if taken, err := s.EmailTaken(ctx, "b@example.com"); err != nil || taken {
		t.Errorf("EmailTaken(b) = %v, %v", taken, err)
	}
	if err := s.Update(ctx, User{ID: id, Username: "alicia", LikesCoffee: true, SecretNumber: -5}); err != nil {
		t.Fatal(err)
	}
	got, err := s.ByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatal(err)
	}
	want := User{ID: id, Email: "a@example.com", Username: "alicia", LikesCoffee: true, SecretNumber: -5, PasswordHash: "h"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ByEmail() mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.ByID(ctx, id+1); !errors.Is(err, ErrNoUser) {
		t.Errorf("ByID(missing) error = %v, want ErrNoUser", err)
	}
	if err := s.Update(ctx, User{ID: id + 1, Username: "x"}); !errors.Is(err, ErrNoUser) {
		t.Errorf("Update(missing) error = %v, want ErrNoUser", err)
	}
}

// browser is a client keeping the cookies set by the server.
type browser struct {
	t     *testing.T
	c     *api.Client
	jar   map[string]string
	store *Store
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	store := openStore(t)
	tokens, err := NewTokens([]byte("test secret"), nil)
	if err != nil {
		t.Fatal(err)
	}
	app := New(store, tokens, WithBcryptCost(bcrypt.MinCost))
	s, err := api.NewServer(api.Config{
		Endpoint: "/api/testactions",
		Registry: registry.Must(app.Actions()),
		Env:      &act.Env{Expose: "1"},
		Logger:   log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	forms, err := s.FormHandler("/forms")
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	mux.Handle("/api/testactions/", s)
	mux.Handle("/forms/", forms)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	b := &browser{t: t, jar: map[string]string{}, store: store}
	b.c, err = api.NewClient(srv.URL+"/api/testactions", api.WithCookies(func(context.Context) (map[string]string, error) {
		return maps.Clone(b.jar), nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func (b *browser) keep(resp *api.Response) {
	for _, c := range (&http.Response{Header: resp.Header}).Cookies() {
		if c.MaxAge < 0 || c.Value == "" {
			delete(b.jar, c.Name)
		} else {
			b.jar[c.Name] = c.Value
		}
	}
}

// submit posts a form and returns the redirect target, or the action error.
func (b *browser) submit(action string, values url.Values) (location, failure string) {
	b.t.Helper()
	resp, err := b.c.Submit(context.Background(), "/forms/"+action, values)
	if err != nil {
		b.t.Fatal(err)
	}
	defer resp.Close()
	b.keep(resp)
	r, err := api.DecodeResult[act.NoOutput, string](resp)
	var redirect *api.RedirectError
	if errors.As(err, &redirect) {
		return redirect.Location, ""
	}
	if err != nil {
		b.t.Fatalf("%s: %v", action, err)
	}
	if r.Success {
		b.t.Fatalf("%s succeeded without redirecting", action)
	}
	return "", r.Error
}

// call calls a plain action and returns its decoded value.
func (b *browser) call(action string) any {
	b.t.Helper()
	resp, err := b.c.Path(action).Call(context.Background())
	if err != nil {
		b.t.Fatal(err)
	}
	defer resp.Close()
	b.keep(resp)
	v, err := resp.JSON()
	var redirect *api.RedirectError
	if errors.As(err, &redirect) {
		return redirect
	}
	if err != nil {
		b.t.Fatalf("%s: %v", action, err)
	}
	return v
}

func registration(username, email string) url.Values {
	return url.Values{
		"username":     {" " + username + " "},
		"email":        {email},
		"password":     {"hunter2"},
		"likesCoffee":  {"on"},
		"secretNumber": {"42"},
	}
}

func TestAccountFlow(t *testing.T) {
	b := newBrowser(t)

	if got := b.call("getSession"); got != nil {
		t.Fatalf("getSession = %v, want null", got)
	}
	if loc, msg := b.submit("registerUser", registration("alice", "alice@example.com")); loc != "/" {
		t.Fatalf("registerUser = %q, %q, want redirect to /", loc, msg)
	}
	if _, ok := b.jar[CookieName]; !ok {
		t.Fatal("registerUser did not set the session cookie")
	}
	u, err := b.store.ByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" || !u.LikesCoffee || u.SecretNumber != 42 || u.PasswordHash == "hunter2" {
		t.Errorf("stored user = %+v", u)
	}
	want := map[string]any{"id": float64(u.ID), "email": "alice@example.com", "username": "alice"}
	if diff := cmp.Diff(want, b.call("getUser")); diff != "" {
		t.Errorf("getUser mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"userId": float64(u.ID)}, b.call("getSession")); diff != "" {
		t.Errorf("getSession mismatch (-want +got):\n%s", diff)
	}

	if loc, msg := b.submit("updateUser", url.Values{"username": {"alicia"}, "secretNumber": {"-7"}}); loc != "/" {
		t.Fatalf("updateUser = %q, %q", loc, msg)
	}
	u, _ = b.store.ByID(context.Background(), u.ID)
	if u.Username != "alicia" || u.LikesCoffee || u.SecretNumber != -7 {
		t.Errorf("updated user = %+v", u)
	}

	got := b.call("logoutUser")
	if r, ok := got.(*api.RedirectError); !ok || r.Location != "/login" {
		t.Fatalf("logoutUser = %v, want redirect to /login", got)
	}
	if _, ok := b.jar[CookieName]; ok {
		t.Error("logoutUser kept the session cookie")
	}
	if got := b.call("getUser"); got != nil {
		t.Errorf("getUser after logout = %v", got)
	}
	if loc, _ := b.submit("updateUser", url.Values{"username": {"mallory"}}); loc != "/login" {
		t.Errorf("updateUser without session = %q, want /login", loc)
	}

	if _, msg := b.submit("loginUser", url.Values{"email": {"alice@example.com"}, "password": {"wrong"}}); msg != invalidCredentials {
		t.Errorf("loginUser with bad password = %q", msg)
	}
	if _, msg := b.submit("loginUser", url.Values{"email": {"bob@example.com"}, "password": {"hunter2"}}); msg != invalidCredentials {
		t.Errorf("loginUser with unknown email = %q", msg)
	}
	if loc, msg := b.submit("loginUser", url.Values{"email": {"alice@example.com"}, "password": {"hunter2"}}); loc != "/" {
		t.Fatalf("loginUser = %q, %q", loc, msg)
	}
	if _, ok := b.jar[CookieName]; !ok {
		t.Error("loginUser did not set the session cookie")
	}
}

func TestRegisterRejects(t *testing.T) {
	b := newBrowser(t)
	if loc, msg := b.submit("registerUser", registration("bob", "bob@example.com")); loc == "" {
		t.Fatalf("registerUser = %q", msg)
	}
	b.jar = map[string]string{}
	tests := []struct {
		name   string
		values url.Values
		want   string
	}{
		{"username taken", registration("bob", "other@example.com"), "Username taken"},
		{"email taken", registration("robert", "bob@example.com"), "Email already exists"},
		{
			name:   "secret out of range",
			values: url.Values{"username": {"carol"}, "email": {"carol@example.com"}, "password": {"hunter2"}, "secretNumber": {"101"}},
			want:   "Secret number must be between -100 and 100",
		},
		{
			name:   "short password",
			values: url.Values{"username": {"carol"}, "email": {"carol@example.com"}, "password": {" ab "}},
			want:   "Password must contain at least 4 character(s)",
		},
		{
			name:   "bad email",
			values: url.Values{"username": {"carol"}, "email": {"Carol <carol@example.com>"}, "password": {"hunter2"}},
			want:   "Invalid email",
		},
		{
			name:   "blank username",
			values: url.Values{"username": {"   "}, "email": {"carol@example.com"}, "password": {"hunter2"}},
			want:   "Username must contain at least 1 character(s)",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc, msg := b.submit("registerUser", tc.values)
			if loc != "" {
				t.Fatalf("registerUser redirected to %q", loc)
			}
			if msg != tc.want {
				t.Errorf("registerUser error = %q, want %q", msg, tc.want)
			}
		})
	}
	if len(b.jar) != 0 {
		t.Errorf("failed registrations set cookies: %v", b.jar)
	}
}

func TestUpdateRejectsTakenUsername(t *testing.T) {
	b := newBrowser(t)
	b.submit("registerUser", registration("dave", "dave@example.com"))
	b.jar = map[string]string{}
	b.submit("registerUser", registration("erin", "erin@example.com"))
	if _, msg := b.submit("updateUser", url.Values{"username": {"dave"}}); msg != "Username taken" {
		t.Errorf("updateUser error = %q, want Username taken", msg)
	}
	// Keeping one's own name is fine.
	if loc, msg := b.submit("updateUser", url.Values{"username": {"erin"}, "likesCoffee": {"off"}}); loc != "/" {
		t.Errorf("updateUser = %q, %q", loc, msg)
	}
}

func TestCheckbox(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "true": true, "": false, "off": false, "false": false, "0": false} {
		got := checkbox(map[string]any{"likesCoffee": in}, "likesCoffee")["likesCoffee"]
		if got != want {
			t.Errorf("checkbox(%q) = %v, want %v", in, got, want)
		}
	}
	fields := map[string]any{"likesCoffee": "on"}
	checkbox(fields, "likesCoffee")
	if fields["likesCoffee"] != "on" {
		t.Error("checkbox modified its input")
	}
}
