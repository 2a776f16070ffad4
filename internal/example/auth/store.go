// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var ErrNoUser = errors.New("user not found")

// User is a registered account.
type User struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	Username     string  `json:"username"`
	LikesCoffee  bool    `json:"likesCoffee"`
	SecretNumber float64 `json:"secretNumber"`
	PasswordHash string  `json:"-"`
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	likes_coffee  INTEGER NOT NULL DEFAULT 0,
	secret_number REAL NOT NULL DEFAULT 0
);`

// Store persists users in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens the database at path, creating the schema when missing.
// The path ":memory:" opens a private in-memory database.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening sqlite db")
	}
	if path == ":memory:" {
		// Every connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating schema")
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UsernameTaken reports whether a user other than exceptID has username.
func (s *Store) UsernameTaken(ctx context.Context, username string, exceptID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ? AND id != ?`, username, exceptID).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "counting usernames")
	}
	return n > 0, nil
}

// EmailTaken reports whether a user has email.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "counting emails")
	}
	return n > 0, nil
}

// Create inserts u and returns its id.
func (s *Store) Create(ctx context.Context, u User) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, username, password_hash, likes_coffee, secret_number) VALUES (?, ?, ?, ?, ?)`,
		u.Email, u.Username, u.PasswordHash, u.LikesCoffee, u.SecretNumber)
	if err != nil {
		return 0, errors.Wrap(err, "inserting user")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "reading user id")
}

// Update changes the profile fields of the user u.ID.
func (s *Store) Update(ctx context.Context, u User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = ?, likes_coffee = ?, secret_number = ? WHERE id = ?`,
		u.Username, u.LikesCoffee, u.SecretNumber, u.ID)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoUser
	}
	return nil
}

// ByID returns the user with id, or ErrNoUser.
func (s *Store) ByID(ctx context.Context, id int64) (User, error) {
	return s.queryUser(ctx, `WHERE id = ?`, id)
}

// ByEmail returns the user with email, or ErrNoUser.
func (s *Store) ByEmail(ctx context.Context, email string) (User, error) {
	return s.queryUser(ctx, `WHERE email = ?`, email)
}

func (s *Store) queryUser(ctx context.Context, where string, arg any) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, username, password_hash, likes_coffee, secret_number FROM users `+where, arg,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.LikesCoffee, &u.SecretNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoUser
	}
	if err != nil {
		return User{}, errors.Wrap(err, "querying user")
	}
	return u, nil
}
