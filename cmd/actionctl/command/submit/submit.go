// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package submit

import (
	"context"
	"flag"
	"net/url"
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

// Config holds all configuration for the submit command.
type Config struct {
	remote.Options
	// Form posts a url-encoded form to this URL, resolved against the
	// endpoint, instead of calling the endpoint.
	Form   string
	Path   string
	Fields []string
}

// Validate ensures the configuration is valid.
func (c Config) Validate() error {
	if c.Form == "" && len(remote.SplitPath(c.Path)) == 0 {
		return errors.New("action path is required")
	}
	return c.Options.Validate()
}

// Deps holds dependencies for the command.
type Deps struct {
	IO      cli.IO
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
	if cfg.Form != "" {
		cfg.Fields = args
		return nil
	}
	if len(args) == 0 {
		return errors.New("expected an action path")
	}
	cfg.Path, cfg.Fields = args[0], args[1:]
	return nil
}

// Handler submits the fields to a form action and prints its result.
func Handler(ctx context.Context, cfg Config, deps *Deps) (*act.NoOutput, error) {
	fields, err := cli.ParseFields(deps.FS, cfg.Fields)
	if err != nil {
		return nil, err
	}
	c, err := cfg.Client(deps.FS, deps.Options...)
	if err != nil {
		return nil, err
	}
	var resp *api.Response
	if cfg.Form != "" {
		values := url.Values{}
		for k, v := range fields {
			s, ok := v.(string)
			if !ok {
				return nil, errors.Errorf("field %s: files cannot be sent in a url-encoded form", k)
			}
			values.Set(k, s)
		}
		resp, err = c.Submit(ctx, cfg.Form, values)
	} else {
		resp, err = remote.Call(ctx, c, cfg.Path, []any{fields})
	}
	if err != nil {
		return nil, errors.Wrap(err, "submitting form")
	}
	if err := cfg.Print(deps.IO, resp); err != nil {
		return nil, err
	}
	return &act.NoOutput{}, nil
}

// Command creates a new submit command instance.
func Command() *cobra.Command {
	cfg := Config{}
	cmd := &cobra.Command{
		Use:   "submit --url <endpoint> [--form <url>] [<path>] [key=value...]",
		Short: "Submit fields to a form action",
		Long: `Submit fields to a form action.

Fields are sent as strings, the way a browser sends them. key=@path uploads
the file at path. With --form the fields are posted as a url-encoded form to
that URL instead of going through the endpoint.`,
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
	set.StringVar(&cfg.Form, "form", "", "form handler URL, like /forms/auth/loginUser")
	return set
}
