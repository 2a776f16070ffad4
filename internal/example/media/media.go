// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package media is a small watch list app exposed as actions: media entries
// with poster uploads, kept in memory.
package media

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/google/actionrpc/internal/httpx"
	"github.com/google/actionrpc/internal/syncx"
	"github.com/google/actionrpc/pkg/act"
	"github.com/google/actionrpc/pkg/act/registry"
	"github.com/google/actionrpc/pkg/act/validate"
	"github.com/google/actionrpc/pkg/wire"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Kind is the type of a media entry.
type Kind string

const (
	Movie  Kind = "movie"
	Series Kind = "series"
)

// WatchMedia is one entry of the watch list.
type WatchMedia struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Type        Kind      `json:"type"`
	Watched     bool      `json:"watched"`
	ReleaseDate time.Time `json:"releaseDate"`
	Genres      wire.Set  `json:"genres"`
	Notes       string    `json:"notes,omitempty"`
	ImageURL    string    `json:"imageUrl"`
}

// CreateRequest is the input of createWatchMedia.
type CreateRequest struct {
	Title       string     `json:"title"`
	Type        Kind       `json:"type"`
	Watched     bool       `json:"watched"`
	ReleaseDate time.Time  `json:"releaseDate"`
	Genres      []string   `json:"genres"`
	Notes       string     `json:"notes,omitempty"`
	Image       *wire.File `json:"image"`
}

// ToggleRequest is the input of toggleWatched.
type ToggleRequest struct {
	MediaID string `json:"mediaId"`
	Watched bool   `json:"watched"`
}

var _ act.Input = ToggleRequest{}

func (r ToggleRequest) Validate() error {
	if r.MediaID == "" {
		return validate.Failf("mediaId is required")
	}
	return nil
}

// DeleteRequest is the form input of deleteWatchMedia.
type DeleteRequest struct {
	MediaID string `json:"mediaId"`
}

var _ act.Input = DeleteRequest{}

func (r DeleteRequest) Validate() error {
	if r.MediaID == "" {
		return validate.Failf("mediaId is required")
	}
	return nil
}

const createSchema = `{
  "type": "object",
  "required": ["title", "type", "watched", "releaseDate", "genres"],
  "properties": {
    "title": {"type": "string"},
    "type": {"enum": ["movie", "series"]},
    "watched": {"type": "boolean"},
    "releaseDate": {"type": "string", "format": "date-time"},
    "genres": {"type": "array", "items": {"type": "string"}, "uniqueItems": true},
    "notes": {"type": "string"},
    "image": {
      "type": "object",
      "required": ["type"],
      "properties": {"type": {"type": "string", "pattern": "^image/"}}
    }
  }
}`

var createValidator = validate.Chain(
	validate.MustSchema[CreateRequest](createSchema),
	func(raw any) (CreateRequest, error) {
		req := raw.(CreateRequest)
		req.Title = strings.TrimSpace(req.Title)
		req.Notes = strings.TrimSpace(req.Notes)
		return req, nil
	},
)

// Config configures an App.
type Config struct {
	// Images stores uploaded posters. Defaults to an in-memory filesystem.
	Images billy.Filesystem
	// ImageURL is the URL prefix the Images filesystem is served under.
	ImageURL string
	// Seed fills the list with sample entries, and refills it when cleared.
	Seed bool
}

// App holds the watch list.
type App struct {
	store    syncx.Map[string, WatchMedia]
	images   billy.Filesystem
	imageURL string
	seed     bool
	// imu guards images, which may not be safe for concurrent use.
	imu sync.RWMutex
}

// New returns an App configured by cfg.
func New(cfg Config) *App {
	a := &App{images: cfg.Images, imageURL: strings.TrimSuffix(cfg.ImageURL, "/"), seed: cfg.Seed}
	if a.images == nil {
		a.images = memfs.New()
	}
	if a.imageURL == "" {
		a.imageURL = "/images"
	}
	a.reset()
	return a
}

// Actions returns the actions of the app.
func (a *App) Actions() registry.Branch {
	p := act.New(act.Options[act.NoContext, string]{})
	return registry.Branch{
		"getWatchMediaList":   registry.Action(registry.Func0(a.List)),
		"createWatchMedia":    registry.Action(act.Define(p, a.create, createValidator)),
		"toggleWatched":       registry.Action(act.Define(p, a.toggle)),
		"deleteWatchMedia":    registry.Action(act.DefineForm(p, a.delete)),
		"deleteAllWatchMedia": registry.Action(registry.Func0(a.deleteAll)),
	}
}

// Images serves the uploaded images. Mount it under the ImageURL prefix with
// http.StripPrefix.
func (a *App) Images() http.Handler {
	files := httpx.FSHandler(a.images)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.imu.RLock()
		defer a.imu.RUnlock()
		files.ServeHTTP(w, r)
	})
}

// List returns the entries, most recently added first.
func (a *App) List(context.Context) ([]WatchMedia, error) {
	list := make([]WatchMedia, 0, a.store.Len())
	for _, m := range a.store.Backward() {
		list = append(list, m)
	}
	return list, nil
}

func (a *App) create(_ context.Context, req CreateRequest, _ act.NoContext) (WatchMedia, error) {
	if req.Image == nil {
		return WatchMedia{}, act.NewError("Missing image")
	}
	imageURL, err := a.upload(req.Image)
	if err != nil {
		return WatchMedia{}, errors.Wrap(err, "uploading image")
	}
	genres := wire.NewSet()
	for _, g := range req.Genres {
		genres = genres.Add(g)
	}
	m := WatchMedia{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Type:        req.Type,
		Watched:     req.Watched,
		ReleaseDate: req.ReleaseDate,
		Genres:      genres,
		Notes:       req.Notes,
		ImageURL:    imageURL,
	}
	a.store.Store(m.ID, m)
	return m, nil
}

func (a *App) toggle(_ context.Context, req ToggleRequest, _ act.NoContext) (wire.Undefined, error) {
	a.store.Update(req.MediaID, func(m WatchMedia) WatchMedia {
		m.Watched = req.Watched
		return m
	})
	return wire.Undefined{}, nil
}

func (a *App) delete(_ context.Context, req DeleteRequest, _ act.NoContext) (bool, error) {
	m, deleted := a.store.LoadAndDelete(req.MediaID)
	if !deleted {
		return false, nil
	}
	if err := a.removeImage(m.ImageURL); err != nil {
		return true, errors.Wrap(err, "removing image")
	}
	return true, nil
}

func (a *App) deleteAll(context.Context) (wire.Undefined, error) {
	a.reset()
	return wire.Undefined{}, nil
}

func (a *App) reset() {
	a.store.Clear()
	if !a.seed {
		return
	}
	for _, m := range seedMedia() {
		a.store.Store(m.ID, m)
	}
}

// upload writes f to the image store under a random name and returns its URL.
func (a *App) upload(f *wire.File) (string, error) {
	name := base64.RawURLEncoding.EncodeToString([]byte(uuid.NewString())) + path.Ext(f.Name)
	r, err := f.Open()
	if err != nil {
		return "", err
	}
	defer r.Close()
	a.imu.Lock()
	defer a.imu.Unlock()
	w, err := a.images.Create(name)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return a.imageURL + "/" + name, nil
}

// removeImage deletes an uploaded image. URLs outside the image store, like
// those of seeded entries, are left alone.
func (a *App) removeImage(imageURL string) error {
	name, ok := strings.CutPrefix(imageURL, a.imageURL+"/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return nil
	}
	a.imu.Lock()
	defer a.imu.Unlock()
	if err := a.images.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func seedMedia() []WatchMedia {
	date := func(s string) time.Time {
		t, err := time.Parse(time.DateOnly, s)
		if err != nil {
			panic(err)
		}
		return t
	}
	return []WatchMedia{
		{
			ID:          "1",
			Title:       "Pulp Fiction",
			Type:        Movie,
			Watched:     true,
			ReleaseDate: date("1994-10-14"),
			Genres:      wire.NewSet("Crime", "Drama"),
			ImageURL:    "https://image.tmdb.org/t/p/w600_and_h900_bestv2/d5iIlFn5s0ImszYzBPb8JPIfbXD.jpg",
			Notes:       "Quentin Tarantino's iconic crime drama with intersecting storylines.",
		},
		{
			ID:          "2",
			Title:       "Inception",
			Type:        Movie,
			Watched:     true,
			ReleaseDate: date("2010-07-16"),
			Genres:      wire.NewSet("Action", "Adventure", "Sci-Fi"),
			ImageURL:    "https://image.tmdb.org/t/p/w600_and_h900_bestv2/oYuLEt3zVCKq57qu2F8dT7NIa6f.jpg",
			Notes:       "Mind-bending sci-fi thriller directed by Christopher Nolan.",
		},
		{
			ID:          "3",
			Title:       "Attack on Titan",
			Type:        Series,
			Watched:     true,
			ReleaseDate: date("2013-04-07"),
			Genres:      wire.NewSet("Action", "Fantasy", "Drama"),
			ImageURL:    "https://image.tmdb.org/t/p/w600_and_h900_bestv2/7PzZ3amc7hNJi0CiMcwC4BhoWKL.jpg",
			Notes: "An engrossing anime series that delves into complex themes of survival, human nature, " +
				"and the cost of war. 'Attack on Titan' presents a dark and intense narrative set in a world " +
				"besieged by monstrous giants. The animation is striking, and the storyline is both profound " +
				"and thought-provoking.",
		},
	}
}
