// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

// Package remote holds the connection settings shared by actionctl commands.
package remote

import (
	"context"
	"flag"
	"net/http"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/actionrpc/pkg/act/api"
	"github.com/google/actionrpc/pkg/act/cli"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

const userAgent = "actionctl"

// Profile is a saved connection, read from a TOML file:
//
//	url = "http://localhost:8080/api/testactions"
//
//	[headers]
//	X-Trace = "1"
//
//	[cookies]
//	jwt_token = "..."
type Profile struct {
	URL     string            `toml:"url"`
	Headers map[string]string `toml:"headers"`
	Cookies map[string]string `toml:"cookies"`
}

// LoadProfile reads the profile at path within fs.
func LoadProfile(fs billy.Filesystem, path string) (Profile, error) {
	var p Profile
	b, err := util.ReadFile(fs, path)
	if err != nil {
		return p, errors.Wrap(err, "reading profile")
	}
	if err := toml.Unmarshal(b, &p); err != nil {
		return p, errors.Wrapf(err, "parsing profile %s", path)
	}
	return p, nil
}

// pairs is a repeatable "name=value" flag.
type pairs []string

func (p *pairs) String() string { return strings.Join(*p, ",") }

func (p *pairs) Set(v string) error {
	if k, _, ok := strings.Cut(v, "="); !ok || k == "" {
		return errors.Errorf("%q is not of the form name=value", v)
	}
	*p = append(*p, v)
	return nil
}

func (p pairs) apply(m map[string]string) map[string]string {
	if m == nil {
		m = map[string]string{}
	}
	for _, kv := range p {
		k, v, _ := strings.Cut(kv, "=")
		m[k] = v
	}
	return m
}

// Options locate the endpoint and shape the output.
type Options struct {
	URL     string
	Profile string
	Cookies pairs
	Headers pairs
	Format  string
}

// Validate checks the options that do not need the profile.
func (o Options) Validate() error {
	if o.URL == "" && o.Profile == "" {
		return errors.New("one of --url or --profile is required")
	}
	_, err := cli.ParseFormat(o.Format)
	return err
}

// AddFlags registers the options on set.
func AddFlags(set *flag.FlagSet, o *Options) {
	set.StringVar(&o.URL, "url", "", "action endpoint URL, like http://localhost:8080/api/testactions")
	set.StringVar(&o.Profile, "profile", "", "TOML file with url, headers and cookies")
	set.Var(&o.Cookies, "cookie", "cookie sent with the call as name=value (repeatable)")
	set.Var(&o.Headers, "header", "header sent with the call as name=value (repeatable)")
	set.StringVar(&o.Format, "format", "json", "output format (json|yaml)")
}

// Client builds the client described by o, with files read from fs. Flags
// override the profile.
func (o Options) Client(fs billy.Filesystem, opts ...api.ClientOption) (*api.Client, error) {
	var p Profile
	if o.Profile != "" {
		var err error
		if p, err = LoadProfile(fs, o.Profile); err != nil {
			return nil, err
		}
	}
	if o.URL != "" {
		p.URL = o.URL
	}
	if p.URL == "" {
		return nil, errors.New("no endpoint URL in flags or profile")
	}
	h := http.Header{}
	for k, v := range o.Headers.apply(p.Headers) {
		h.Set(k, v)
	}
	opts = append([]api.ClientOption{
		api.WithUserAgent(userAgent),
		api.WithStaticHeaders(h),
		api.WithStaticCookies(o.Cookies.apply(p.Cookies)),
	}, opts...)
	return api.NewClient(p.URL, opts...)
}

// Print writes the outcome of a call. Redirects are reported on the error
// stream rather than followed.
func (o Options) Print(cio cli.IO, resp *api.Response) error {
	defer resp.Close()
	if resp.Redirected() {
		cli.PrintNotice(cio.Err, "Redirected (%d) to %s", resp.StatusCode, resp.Location())
		return nil
	}
	v, err := resp.JSON()
	if err != nil {
		return err
	}
	f, err := cli.ParseFormat(o.Format)
	if err != nil {
		return err
	}
	return cli.Render(cio.Out, f, v)
}

// Call calls the action at path with args.
func Call(ctx context.Context, c *api.Client, path string, args []any) (*api.Response, error) {
	return c.Path(SplitPath(path)...).Call(ctx, args...)
}

// SplitPath splits an action path like "auth/getUser" or "auth.getUser".
func SplitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '.' })
}
