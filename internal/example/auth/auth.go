// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package auth is an account app exposed as actions: registration, login and
// profile updates submitted as forms, with the session kept in a signed
// cookie.
package auth

import (
	"context"
	"maps"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/actionrpc/pkg/act"
	"github.com/google/actionrpc/pkg/act/api"
	"github.com/google/actionrpc/pkg/act/registry"
	"github.com/google/actionrpc/pkg/act/validate"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	invalidCredentials = "Invalid email or password"
	// LoginPath is where calls without a session are sent.
	LoginPath = "/login"
	// HomePath is where successful sign-ins are sent.
	HomePath = "/"
)

// RegisterRequest is the form of registerUser.
type RegisterRequest struct {
	Username     string  `json:"username"`
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	LikesCoffee  bool    `json:"likesCoffee"`
	SecretNumber float64 `json:"secretNumber"`
}

func (r RegisterRequest) Validate() error {
	var v []string
	v = append(v, checkUsername(r.Username)...)
	v = append(v, checkEmail(r.Email)...)
	if len(r.Password) < 4 {
		v = append(v, "Password must contain at least 4 character(s)")
	}
	v = append(v, checkSecret(r.SecretNumber)...)
	return violations(v)
}

// UpdateRequest is the form of updateUser.
type UpdateRequest struct {
	Username     string  `json:"username"`
	LikesCoffee  bool    `json:"likesCoffee"`
	SecretNumber float64 `json:"secretNumber"`
}

func (r UpdateRequest) Validate() error {
	return violations(append(checkUsername(r.Username), checkSecret(r.SecretNumber)...))
}

// LoginRequest is the form of loginUser.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	v := checkEmail(r.Email)
	if r.Password == "" {
		v = append(v, "Password is required")
	}
	return violations(v)
}

var (
	_ act.Input = RegisterRequest{}
	_ act.Input = UpdateRequest{}
	_ act.Input = LoginRequest{}
)

func checkUsername(name string) []string {
	if name == "" {
		return []string{"Username must contain at least 1 character(s)"}
	}
	return nil
}

// checkEmail accepts bare addresses only, not "Name <addr>" forms.
func checkEmail(email string) []string {
	a, err := mail.ParseAddress(email)
	if err != nil || a.Address != email {
		return []string{"Invalid email"}
	}
	return nil
}

func checkSecret(n float64) []string {
	if n < -100 || n > 100 {
		return []string{"Secret number must be between -100 and 100"}
	}
	return nil
}

func violations(v []string) error {
	if len(v) == 0 {
		return nil
	}
	return &validate.Error{Violations: v}
}

// checkbox rewrites a checkbox field of a form to a boolean. Browsers send
// "on" for a checked box and nothing otherwise.
func checkbox(fields map[string]any, name string) map[string]any {
	s, ok := fields[name].(string)
	if !ok {
		return fields
	}
	fields = maps.Clone(fields)
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "off":
		fields[name] = false
	default:
		fields[name] = true
	}
	return fields
}

// formValidator converts form fields into T and trims its strings.
func formValidator[T any](trim func(*T)) validate.Func[T] {
	weak := validate.Weak[T]()
	return func(raw any) (T, error) {
		if fields, ok := raw.(map[string]any); ok {
			raw = checkbox(fields, "likesCoffee")
		}
		v, err := weak(raw)
		if err != nil {
			return v, err
		}
		trim(&v)
		return v, nil
	}
}

// Context is the context of actions requiring a session.
type Context struct {
	Session *Session
}

// App serves accounts from a Store.
type App struct {
	store  *Store
	tokens *Tokens
	cost   int
	secure bool
}

// Option configures an App.
type Option func(*App)

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(a *App) { a.cost = cost }
}

// WithSecureCookies marks the session cookie as HTTPS only.
func WithSecureCookies() Option {
	return func(a *App) { a.secure = true }
}

// New returns an App.
func New(store *Store, tokens *Tokens, opts ...Option) *App {
	a := &App{store: store, tokens: tokens, cost: 10}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Actions returns the actions of the app.
func (a *App) Actions() registry.Branch {
	public := act.New(act.Options[act.NoContext, string]{})
	authed := act.New(act.Options[Context, string]{
		Context: func(ctx context.Context) (Context, error) {
			return Context{Session: a.session(ctx)}, nil
		},
		OnBeforeExecute: func(_ context.Context, b act.Before[Context]) (*Context, error) {
			if b.Context.Session == nil {
				return nil, act.Redirect(LoginPath)
			}
			return nil, nil
		},
	})
	return registry.Branch{
		"registerUser": registry.Action(act.DefineForm(public, a.register, formValidator(func(r *RegisterRequest) {
			r.Username = strings.TrimSpace(r.Username)
			r.Password = strings.TrimSpace(r.Password)
		}))),
		"loginUser": registry.Action(act.DefineForm(public, a.login, formValidator(func(*LoginRequest) {}))),
		"updateUser": registry.Action(act.DefineForm(authed, a.update, formValidator(func(r *UpdateRequest) {
			r.Username = strings.TrimSpace(r.Username)
		}))),
		"logoutUser": registry.Action(act.Define(authed, a.logout)),
		"getSession": registry.Action(registry.Func0(a.GetSession)),
		"getUser":    registry.Action(registry.Func0(a.GetUser)),
	}
}

// session returns the verified session of the call, if any.
func (a *App) session(ctx context.Context) *Session {
	c, ok := api.Cookie(ctx, CookieName)
	if !ok || c.Value == "" {
		return nil
	}
	s, err := a.tokens.Decode(c.Value)
	if err != nil {
		return nil
	}
	return &s
}

// GetSession returns the session of the call, or nil.
func (a *App) GetSession(ctx context.Context) (*Session, error) {
	return a.session(ctx), nil
}

// Profile is the public view of a User.
type Profile struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// GetUser returns the signed-in user, or nil.
func (a *App) GetUser(ctx context.Context) (*Profile, error) {
	s := a.session(ctx)
	if s == nil {
		return nil, nil
	}
	u, err := a.store.ByID(ctx, s.UserID)
	if errors.Is(err, ErrNoUser) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return &Profile{ID: u.ID, Email: u.Email, Username: u.Username}, nil
}

func (a *App) register(ctx context.Context, req RegisterRequest, _ act.NoContext) (act.NoOutput, error) {
	if taken, err := a.store.UsernameTaken(ctx, req.Username, 0); err != nil {
		return act.NoOutput{}, err
	} else if taken {
		return act.NoOutput{}, act.NewError("Username taken")
	}
	if taken, err := a.store.EmailTaken(ctx, req.Email); err != nil {
		return act.NoOutput{}, err
	} else if taken {
		return act.NoOutput{}, act.NewError("Email already exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), a.cost)
	if err != nil {
		return act.NoOutput{}, errors.Wrap(err, "hashing password")
	}
	id, err := a.store.Create(ctx, User{
		Email:        req.Email,
		Username:     req.Username,
		LikesCoffee:  req.LikesCoffee,
		SecretNumber: req.SecretNumber,
		PasswordHash: string(hash),
	})
	if err != nil {
		return act.NoOutput{}, err
	}
	if err := a.signIn(ctx, id); err != nil {
		return act.NoOutput{}, err
	}
	return act.NoOutput{}, act.Redirect(HomePath)
}

func (a *App) login(ctx context.Context, req LoginRequest, _ act.NoContext) (act.NoOutput, error) {
	u, err := a.store.ByEmail(ctx, req.Email)
	if errors.Is(err, ErrNoUser) {
		return act.NoOutput{}, act.NewError(invalidCredentials)
	} else if err != nil {
		return act.NoOutput{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return act.NoOutput{}, act.NewError(invalidCredentials)
	}
	if err := a.signIn(ctx, u.ID); err != nil {
		return act.NoOutput{}, err
	}
	return act.NoOutput{}, act.Redirect(HomePath)
}

func (a *App) update(ctx context.Context, req UpdateRequest, c Context) (act.NoOutput, error) {
	if taken, err := a.store.UsernameTaken(ctx, req.Username, c.Session.UserID); err != nil {
		return act.NoOutput{}, err
	} else if taken {
		return act.NoOutput{}, act.NewError("Username taken")
	}
	err := a.store.Update(ctx, User{
		ID:           c.Session.UserID,
		Username:     req.Username,
		LikesCoffee:  req.LikesCoffee,
		SecretNumber: req.SecretNumber,
	})
	if errors.Is(err, ErrNoUser) {
		return act.NoOutput{}, act.Redirect(LoginPath)
	} else if err != nil {
		return act.NoOutput{}, err
	}
	return act.NoOutput{}, act.Redirect(HomePath)
}

func (a *App) logout(ctx context.Context, _ any, _ Context) (act.NoOutput, error) {
	api.DeleteCookie(ctx, CookieName)
	return act.NoOutput{}, act.Redirect(LoginPath)
}

func (a *App) signIn(ctx context.Context, userID int64) error {
	token, err := a.tokens.Encode(Session{UserID: userID})
	if err != nil {
		return err
	}
	api.SetCookie(ctx, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
