// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// CookieName is the cookie holding the session token.
const CookieName = "jwt_token"

// SessionTTL is how long a session token stays valid.
const SessionTTL = 24 * time.Hour

// Session identifies the signed-in user.
type Session struct {
	UserID int64 `json:"userId"`
}

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"userId"`
}

// Tokens signs and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	now    func() time.Time
}

// NewTokens returns Tokens keyed by secret. now defaults to time.Now.
func NewTokens(secret []byte, now func() time.Time) (*Tokens, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if now == nil {
		now = time.Now
	}
	return &Tokens{secret: secret, now: now}, nil
}

// Encode returns a token for s expiring after SessionTTL.
func (t *Tokens) Encode(s Session) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(t.now().Add(SessionTTL)),
		},
		UserID: s.UserID,
	})
	signed, err := tok.SignedString(t.secret)
	return signed, errors.Wrap(err, "signing session")
}

// Decode verifies token and returns its session.
func (t *Tokens) Decode(token string) (Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Session{}, errors.Wrap(err, "verifying session")
	}
	if claims.UserID == 0 {
		return Session{}, errors.New("session has no user")
	}
	return Session{UserID: claims.UserID}, nil
}
