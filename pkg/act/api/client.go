// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/google/actionrpc/internal/httpx"
	"github.com/google/actionrpc/internal/urlx"
	"github.com/google/actionrpc/pkg/act"
	"github.com/google/actionrpc/pkg/act/api/form"
	"github.com/google/actionrpc/pkg/wire"
	"github.com/pkg/errors"
)

const unexpectedMessage = "Unexpected error"

var ErrBodyUsed = errors.New("response body already used")

// RedirectError is returned when decoding a response that redirected.
type RedirectError struct {
	Location string
	Status   int
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("action redirected (%d) to %s", e.Status, e.Location)
}

// CallError is a failed call. Message is the server's text when it was
// marked as meant for the caller, GenericErrorMessage for other JSON
// failures, and "Unexpected error" when the body was not JSON.
type CallError struct {
	Status      int
	Message     string
	ActionError bool
}

func (e *CallError) Error() string {
	return fmt.Sprintf("action call failed (%d): %s", e.Status, e.Message)
}

// Client calls the actions served under a base URL.
type Client struct {
	base      *url.URL
	http      httpx.BasicClient
	userAgent string
	cookies   func(context.Context) (map[string]string, error)
	headers   func(context.Context) (http.Header, error)
	fs        billy.Filesystem
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the client used for requests. It must not follow
// redirects, since redirects are reported to the caller.
func WithHTTPClient(c httpx.BasicClient) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithCookies sets a function returning the cookies sent with each call.
func WithCookies(f func(context.Context) (map[string]string, error)) ClientOption {
	return func(cl *Client) { cl.cookies = f }
}

// WithStaticCookies sends the same cookies with each call.
func WithStaticCookies(cookies map[string]string) ClientOption {
	cookies = maps.Clone(cookies)
	return WithCookies(func(context.Context) (map[string]string, error) { return cookies, nil })
}

// WithHeaders sets a function returning extra headers sent with each call.
func WithHeaders(f func(context.Context) (http.Header, error)) ClientOption {
	return func(cl *Client) { cl.headers = f }
}

// WithStaticHeaders sends the same extra headers with each call.
func WithStaticHeaders(h http.Header) ClientOption {
	h = h.Clone()
	return WithHeaders(func(context.Context) (http.Header, error) { return h, nil })
}

// WithUserAgent sets the User-Agent of each call.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithResponseFilesystem sets where files of decoded results are spooled.
func WithResponseFilesystem(fs billy.Filesystem) ClientOption {
	return func(cl *Client) { cl.fs = fs }
}

// NewClient returns a Client for the endpoint at baseURL, like
// "https://example.com/api/actions".
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{base: u}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpx.NoRedirectClient(nil)
	}
	if c.userAgent != "" {
		c.http = &httpx.WithUserAgent{BasicClient: c.http, UserAgent: c.userAgent}
	}
	return c, nil
}

// Path returns a Caller for the action at the given path.
func (c *Client) Path(names ...string) Caller {
	return Caller{client: c, path: slices.Clone(names)}
}

// Caller addresses one path below the endpoint.
type Caller struct {
	client *Client
	path   []string
}

// Access returns a Caller one level deeper.
func (c Caller) Access(name string) Caller {
	return Caller{client: c.client, path: append(slices.Clip(c.path), name)}
}

// Path returns the segments addressed.
func (c Caller) Path() []string { return slices.Clone(c.path) }

// URL returns the address called.
func (c Caller) URL() *url.URL { return urlx.Join(c.client.base, c.path...) }

// Call sends args to the action. The response must be closed.
func (c Caller) Call(ctx context.Context, args ...any) (*Response, error) {
	if args == nil {
		args = []any{}
	}
	payload, err := wire.Encode(args)
	if err != nil {
		return nil, errors.Wrap(err, "encoding arguments")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL().String(), payload.Body)
	if err != nil {
		payload.Body.Close()
		return nil, errors.Wrap(err, "building http request")
	}
	req.Header.Set("Content-Type", payload.ContentType)
	return c.client.do(ctx, req)
}

// Submit posts values as a url-encoded form to ref, resolved against the
// base URL. It is the client side of Server.FormHandler.
func (c *Client) Submit(ctx context.Context, ref string, values url.Values) (*Response, error) {
	u, err := c.base.Parse(ref)
	if err != nil {
		return nil, errors.Wrap(err, "parsing form url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "building http request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, req *http.Request) (*Response, error) {
	if err := c.prepare(ctx, req); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "making http request")
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, resp: resp, fs: c.fs}, nil
}

// prepare adds the headers and cookies of the call.
func (c *Client) prepare(ctx context.Context, req *http.Request) error {
	req.Header.Set("Accept", wire.StreamContentType+", application/json")
	if c.headers != nil {
		h, err := c.headers(ctx)
		if err != nil {
			return errors.Wrap(err, "computing headers")
		}
		for k, vs := range h {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	}
	if c.cookies != nil {
		cookies, err := c.cookies(ctx)
		if err != nil {
			return errors.Wrap(err, "computing cookies")
		}
		for _, name := range slices.Sorted(maps.Keys(cookies)) {
			req.AddCookie(&http.Cookie{Name: name, Value: cookies[name]})
		}
	}
	return nil
}

// Response is the raw outcome of a call.
type Response struct {
	StatusCode int
	Header     http.Header

	resp *http.Response
	fs   billy.Filesystem
	used bool
}

// OK reports whether the call succeeded.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Redirected reports whether the action redirected.
func (r *Response) Redirected() bool {
	return r.StatusCode >= 300 && r.StatusCode < 400
}

// Location returns the redirect target, if any.
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// BodyUsed reports whether the body was consumed.
func (r *Response) BodyUsed() bool { return r.used }

// Close releases the body.
func (r *Response) Close() error {
	return r.resp.Body.Close()
}

// JSON decodes the body, once. A successful call yields the result value;
// other outcomes yield a *RedirectError, a *CallError or, when the server is
// throttling, ErrUnavailable or ErrExhausted. A redirect is reported on every
// call, since it carries no body.
func (r *Response) JSON() (any, error) {
	if r.Redirected() {
		if !r.used {
			r.used = true
			r.resp.Body.Close()
		}
		return nil, &RedirectError{Location: r.Location(), Status: r.StatusCode}
	}
	if r.used {
		return nil, ErrBodyUsed
	}
	r.used = true
	defer r.resp.Body.Close()
	switch {
	case r.OK():
		var opts []wire.DecodeOption
		if r.fs != nil {
			opts = append(opts, wire.WithFilesystem(r.fs))
		}
		return wire.DecodeStream(r.resp.Body, opts...)
	}
	if err := statusFromResponse(r.resp); err != nil {
		return nil, err
	}
	return nil, r.callError()
}

func (r *Response) callError() *CallError {
	e := &CallError{Status: r.StatusCode, Message: unexpectedMessage}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		return e
	}
	var body messageBody
	if err := json.NewDecoder(io.LimitReader(r.resp.Body, 1<<20)).Decode(&body); err != nil {
		return e
	}
	e.Message = act.GenericErrorMessage
	if r.Header.Get(ActionErrorHeader) != "" {
		e.Message = body.Message
		e.ActionError = true
	}
	return e
}

// DecodeResult decodes the body of a call to an action defined with act into
// a typed Result.
func DecodeResult[T, E any](resp *Response) (act.Result[T, E], error) {
	var r act.Result[T, E]
	v, err := resp.JSON()
	if err != nil {
		return r, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return r, errors.Errorf("result is %T, not an action result", v)
	}
	success, ok := m["success"].(bool)
	if !ok {
		return r, errors.New("result has no success flag")
	}
	r.Success = success
	if success {
		err = wire.Coerce(m["data"], &r.Data)
	} else {
		err = wire.Coerce(m["error"], &r.Error)
	}
	if err != nil {
		return r, errors.Wrap(err, "decoding result")
	}
	return r, nil
}

// StubFunc calls a remote action with a typed input.
type StubFunc[I, O, E any] func(context.Context, I) (act.Result[O, E], error)

// Stub returns a typed function calling the action at path.
func Stub[I, O, E any](c *Client, path ...string) StubFunc[I, O, E] {
	caller := c.Path(path...)
	return func(ctx context.Context, in I) (act.Result[O, E], error) {
		resp, err := caller.Call(ctx, in)
		if err != nil {
			return act.Result[O, E]{}, err
		}
		defer resp.Close()
		return DecodeResult[O, E](resp)
	}
}

// FormStub returns a typed function submitting its input as a form to ref.
// String fields are sent as-is and other fields in their JSON text form.
func FormStub[I, O, E any](c *Client, ref string) StubFunc[I, O, E] {
	return func(ctx context.Context, in I) (act.Result[O, E], error) {
		values, err := form.Marshal(in)
		if err != nil {
			return act.Result[O, E]{}, errors.Wrap(err, "serializing request")
		}
		resp, err := c.Submit(ctx, ref, values)
		if err != nil {
			return act.Result[O, E]{}, err
		}
		defer resp.Close()
		return DecodeResult[O, E](resp)
	}
}
