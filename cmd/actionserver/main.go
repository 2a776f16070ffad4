// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// actionserver serves the example apps as actions.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/actionrpc/internal/example/auth"
	"github.com/google/actionrpc/internal/example/media"
	"github.com/google/actionrpc/pkg/act/api"
	"github.com/google/actionrpc/pkg/act/registry"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	addr          = flag.String("addr", ":8080", "address to listen on")
	endpoint      = flag.String("endpoint", "/api/testactions", "path prefix of the action endpoint")
	formPrefix    = flag.String("forms", "/forms", "path prefix of the form handler")
	dbPath        = flag.String("db", ":memory:", "sqlite database of the auth app")
	imageDir      = flag.String("image-dir", "", "directory for uploaded images; empty keeps them in memory")
	jwtSecret     = flag.String("jwt-secret", "", "session signing secret; defaults to $JWT_SECRET")
	noSeed        = flag.Bool("no-seed", false, "start with an empty watch list")
	secureCookies = flag.Bool("secure-cookies", false, "mark session cookies as HTTPS only")
	maxArgsSize   = flag.Int64("max-args-size", 1<<20, "maximum size of encoded arguments, excluding files")
)

// serverEnv holds the settings also read from the environment.
type serverEnv struct {
	JWTSecret string `env:"JWT_SECRET"`
	NoSeed    bool   `env:"NO_SEED_DATABASE"`
}

const imagePrefix = "/images"

func imageStore() (billy.Filesystem, error) {
	if *imageDir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(*imageDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating image directory")
	}
	return osfs.New(*imageDir), nil
}

func run(ctx context.Context) error {
	var e serverEnv
	if err := env.Parse(&e); err != nil {
		return errors.Wrap(err, "parsing environment")
	}
	secret := *jwtSecret
	if secret == "" {
		secret = e.JWTSecret
	}
	images, err := imageStore()
	if err != nil {
		return err
	}
	mediaApp := media.New(media.Config{
		Images:   images,
		ImageURL: imagePrefix,
		Seed:     !*noSeed && !e.NoSeed,
	})
	store, err := auth.OpenStore(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	tokens, err := auth.NewTokens([]byte(secret), time.Now)
	if err != nil {
		return errors.Wrap(err, "configuring sessions")
	}
	var opts []auth.Option
	if *secureCookies {
		opts = append(opts, auth.WithSecureCookies())
	}
	authApp := auth.New(store, tokens, opts...)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := api.NewMetrics("actionserver", reg)
	if err != nil {
		return err
	}
	server, err := api.NewServer(api.Config{
		Endpoint: *endpoint,
		Registry: registry.Must(registry.Branch{
			"media": mediaApp.Actions(),
			"auth":  authApp.Actions(),
		}),
		Metrics:     metrics,
		MaxArgsSize: *maxArgsSize,
	})
	if err != nil {
		return err
	}
	forms, err := server.FormHandler(*formPrefix)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(*endpoint, server)
	if *endpoint != "/" {
		mux.Handle(*endpoint+"/", server)
	}
	mux.Handle(*formPrefix+"/", forms)
	mux.Handle(imagePrefix+"/", http.StripPrefix(imagePrefix, mediaApp.Images()))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.Printf("Serving actions at %s on %s", *endpoint, *addr)
	return http.ListenAndServe(*addr, mux)
}

func main() {
	flag.Parse()
	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
