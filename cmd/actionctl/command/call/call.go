// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package call

import (
	"context"
	"flag"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/actionrpc/cmd/actionctl/remote"
	"github.com/google/actionrpc/pkg/act"
	"github.com/google/actionrpc/pkg/act/api"
	"github.com/google/actionrpc/pkg/act/cli"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// Config holds all configuration for the call command.
type Config struct {
	remote.Options
	Path string
	Args []string
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if len(remote.SplitPath(c.Path)) == 0 {
		return errors.New("action path is required")
	}
	return c.Options.Validate()
}

// Deps holds dependencies for the command.
type Deps struct {
	IO cli.IO
	// FS resolves @file arguments and the profile.
	FS      billy.Filesystem
	Options []api.ClientOption
}

func (d *Deps) SetIO(cio cli.IO) { d.IO = cio }

// InitDeps initializes Deps.
func InitDeps(context.Context) (*Deps, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, "getting working directory")
	}
	return &Deps{FS: osfs.New(wd)}, nil
}

func parseArgs(cfg *Config, args []string) error {
	if len(args) == 0 {
		return errors.New("expected an action path")
	}
	cfg.Path, cfg.Args = args[0], args[1:]
	return nil
}

// Handler calls the action and prints its result.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*act.NoOutput, error) {
	values, err := cli.ParseValues(deps.FS, cfg.Args)
	if err != nil {
		return nil, err
	}
	c, err := cfg.Client(deps.FS, deps.Options...)
	if err != nil {
		return nil, err
	}
	resp, err := remote.Call(ctx, c, cfg.Path, values)
	if err != nil {
		return nil, errors.Wrap(err, "calling action")
	}
	if err := cfg.Print(deps.IO, resp); err != nil {
		return nil, err
	}
	return &act.NoOutput{}, nil
}

// Command creates a new call command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "call --url <endpoint> <path> [args...]",
		Short: "Call an action with positional arguments",
		Long: `Call an action with positional arguments.

Each argument is decoded as JSON when it parses as JSON and taken as a string
otherwise. An argument of the form @path uploads the file at path; use @@ for
a literal leading @.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: cli.RunE(
			&cfg,
			parseArgs,
			InitDeps,
			Handler,
		),
	}
	cmd.Flags().AddGoFlagSet(flagSet(cmd.Name(), &cfg))
	return cmd
}

// flagSet returns the command-line flags for the Config struct.
func flagSet(name string, cfg *Config) *flag.FlagSet {
	set := flag.NewFlagSet(name, flag.ContinueOnError)
	remote.AddFlags(set, &cfg.Options)
	return set
}
