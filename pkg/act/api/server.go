// Copyright 2025 Google LLC
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/google/actionrpc/pkg/act"
	"github.com/google/actionrpc/pkg/act/api/form"
	"github.com/google/actionrpc/pkg/act/registry"
	"github.com/google/actionrpc/pkg/wire"
	"github.com/pkg/errors"
	"google.golang.org/grpc/status"
)

// Response headers marking failed calls.
const (
	// ActionErrorHeader marks a failure whose message is meant for the caller.
	ActionErrorHeader = "X-Server-Action-Error"
	// FrameworkErrorHeader marks a failure of the endpoint itself.
	FrameworkErrorHeader = "X-Server-Action-Framework-Error"
)

const (
	notExposedMessage = "Set `EXPOSE_SERVER_ACTIONS` environment variable to allow call server actions from an endpoint"
	failedMessage     = "Server action call failed"
)

// Config configures a Server.
type Config struct {
	// Endpoint is the path prefix actions are served under, like "/api/actions".
	Endpoint string
	Registry *registry.Registry
	// Env fixes the configuration. When nil it is read from the environment
	// on every request.
	Env *act.Env
	// Logger defaults to log.Default().
	Logger  *log.Logger
	Metrics *Metrics
	// Filesystem receives uploaded files. When nil each request spools
	// uploads to its own in-memory filesystem.
	Filesystem billy.Filesystem
	// MaxArgsSize bounds the encoded arguments, excluding files.
	MaxArgsSize int64
}

// Server is an http.Handler dispatching calls to the actions of a registry.
type Server struct {
	cfg    Config
	logger *log.Logger
}

var _ http.Handler = &Server{}

// NewServer validates cfg and returns a Server.
func NewServer(cfg Config) (*Server, error) {
	if err := validEndpoint(cfg.Endpoint); err != nil {
		return nil, err
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{cfg: cfg, logger: logger}, nil
}

func validEndpoint(e string) error {
	switch {
	case !strings.HasPrefix(e, "/"):
		return errors.Errorf("endpoint %q must start with '/'", e)
	case len(e) > 1 && strings.HasSuffix(e, "/"):
		return errors.Errorf("endpoint %q must not end with '/'", e)
	case strings.Contains(e, "//"):
		return errors.Errorf("endpoint %q has an empty segment", e)
	}
	return nil
}

// Endpoint returns the path prefix served.
func (s *Server) Endpoint() string { return s.cfg.Endpoint }

func (s *Server) env() act.Env {
	if s.cfg.Env != nil {
		return *s.cfg.Env
	}
	e, err := act.LoadEnv()
	if err != nil {
		s.logger.Println(errors.Wrap(err, "loading environment"))
		return act.Env{Mode: act.ModeProduction}
	}
	return e
}

// callPath extracts the action path following prefix.
func callPath(prefix, urlPath string) ([]string, error) {
	var rest string
	switch {
	case prefix == "/":
		rest = urlPath
	case urlPath == prefix:
	case strings.HasPrefix(urlPath, prefix+"/"):
		rest = strings.TrimPrefix(urlPath, prefix)
	default:
		return nil, errors.Errorf("request path %q is not under endpoint %q", urlPath, prefix)
	}
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil, nil
	}
	return strings.Split(rest, "/"), nil
}

// argsDecoder reads the arguments of a call. On failure it also returns the
// message shown to the caller.
type argsDecoder func(r *http.Request) ([]any, string, error)

func (s *Server) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	s.handle(rw, r, s.cfg.Endpoint, s.decodeArgs)
}

// FormHandler returns a handler calling the actions of the registry with
// submitted HTML forms. Actions are addressed as {prefix}/{path/to/action}
// and receive the form fields as a single object argument.
func (s *Server) FormHandler(prefix string) (http.Handler, error) {
	if err := validEndpoint(prefix); err != nil {
		return nil, err
	}
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		s.handle(rw, r, prefix, s.decodeForm)
	}), nil
}

func (s *Server) decodeArgs(r *http.Request) ([]any, string, error) {
	var opts []wire.DecodeOption
	if s.cfg.Filesystem != nil {
		opts = append(opts, wire.WithFilesystem(s.cfg.Filesystem))
	}
	if s.cfg.MaxArgsSize > 0 {
		opts = append(opts, wire.WithMaxArgsSize(s.cfg.MaxArgsSize))
	}
	args, err := wire.Decode(r.Body, r.Header.Get("Content-Type"), opts...)
	if err != nil {
		if errors.Is(err, wire.ErrNotSequence) {
			return nil, "Server action input should be an array", err
		}
		return nil, "Server action input could not be decoded", err
	}
	return args, "", nil
}

func (s *Server) decodeForm(r *http.Request) ([]any, string, error) {
	fields, err := form.Parse(r, s.cfg.MaxArgsSize)
	if err != nil {
		return nil, "Server action form could not be parsed", err
	}
	return []any{fields}, "", nil
}

func (s *Server) handle(rw http.ResponseWriter, r *http.Request, prefix string, decode argsDecoder) {
	lw := &lazyWriter{rw: rw}
	action := "unknown"
	done := s.cfg.Metrics.start()
	outcome := OutcomeError
	defer func() {
		done(action, outcome)
	}()
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			s.logger.Printf("panic serving %s: %v", r.URL.Path, p)
			outcome = OutcomeError
			if !lw.started {
				lw.Header().Set(FrameworkErrorHeader, "1")
				writeJSON(lw, http.StatusInternalServerError, failedMessage)
			}
		}
	}()
	if r.Method != http.MethodPost {
		lw.Header().Set("Allow", http.MethodPost)
		outcome = OutcomeBadRequest
		writeJSON(lw, http.StatusMethodNotAllowed, "Server actions must be called with POST")
		return
	}
	env := s.env()
	if !env.Exposed() {
		if env.Production() {
			s.logger.Printf("refusing call to %s: actions are not exposed", r.URL.Path)
			writeJSON(lw, http.StatusInternalServerError, failedMessage)
			return
		}
		outcome = OutcomeBadRequest
		writeJSON(lw, http.StatusOK, notExposedMessage)
		return
	}
	path, err := callPath(prefix, r.URL.Path)
	if err != nil {
		s.logger.Println(errors.Wrap(err, "misconfigured endpoint"))
		lw.Header().Set(FrameworkErrorHeader, "1")
		writeJSON(lw, http.StatusInternalServerError, failedMessage)
		return
	}
	if len(path) == 0 {
		outcome = OutcomeNotFound
		writeJSON(lw, http.StatusNotFound, "No action to call")
		return
	}
	name := strings.Join(path, "/")
	callable, ok := s.cfg.Registry.Resolve(path)
	if !ok {
		outcome = OutcomeNotFound
		writeJSON(lw, http.StatusNotFound, fmt.Sprintf("Server action '%s' was not found", name))
		return
	}
	action = name
	args, msg, err := decode(r)
	if err != nil {
		s.logger.Println(errors.Wrapf(err, "decoding arguments of %s", name))
		outcome = OutcomeBadRequest
		writeJSON(lw, http.StatusBadRequest, msg)
		return
	}
	ctx := withRequest(act.WithEnv(r.Context(), env), r, lw)
	out, err := callable.Call(ctx, args)
	if err != nil {
		outcome = s.fail(lw, name, err, env)
		return
	}
	lw.header = streamHeaders
	enc := wire.NewStreamEncoder(lw, lw.Flush)
	enc.RejectMessage = act.ErrorMapper(env.Production())
	if err := enc.Encode(out); err != nil {
		s.logger.Println(errors.Wrapf(err, "encoding result of %s", name))
		if !lw.started {
			lw.Header().Set(FrameworkErrorHeader, "1")
			writeJSON(lw, http.StatusInternalServerError, failedMessage)
		}
		return
	}
	outcome = OutcomeSuccess
}

// fail writes the response for a call that returned err.
func (s *Server) fail(lw *lazyWriter, name string, err error, env act.Env) string {
	if sig, ok := act.AsSignal(err); ok {
		return s.signal(lw, name, sig)
	}
	var sm act.SafeMessager
	if errors.As(err, &sm) {
		lw.Header().Set(ActionErrorHeader, "1")
		writeJSON(lw, http.StatusBadRequest, sm.SafeMessage())
		return OutcomeActionError
	}
	s.logger.Println(errors.Wrapf(err, "calling %s", name))
	st := status.Convert(err)
	code := httpStatus(lw, st)
	msg := st.Message()
	if _, isStatus := status.FromError(err); !isStatus {
		msg = failedMessage
		if !env.Production() {
			msg = err.Error()
		}
	}
	writeJSON(lw, code, msg)
	if code < http.StatusInternalServerError {
		return OutcomeBadRequest
	}
	return OutcomeError
}

func (s *Server) signal(lw *lazyWriter, name string, sig act.Signal) string {
	digest := sig.Digest()
	switch {
	case digest == act.NotFoundDigest:
		lw.WriteHeader(http.StatusNotFound)
		return OutcomeNotFound
	case strings.HasPrefix(digest, act.RedirectDigestPrefix+";"):
		location, code, err := ParseRedirectDigest(digest)
		if err != nil {
			break
		}
		lw.Header().Set("Location", location)
		lw.WriteHeader(code)
		return OutcomeRedirect
	}
	s.logger.Printf("unhandled signal from %s: %q", name, digest)
	lw.Header().Set(FrameworkErrorHeader, "1")
	writeJSON(lw, http.StatusInternalServerError, failedMessage)
	return OutcomeError
}

func streamHeaders(h http.Header) {
	h.Set("Content-Type", wire.StreamContentType)
	h.Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Content-Type-Options", "nosniff")
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(rw http.ResponseWriter, code int, message string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	if err := json.NewEncoder(rw).Encode(messageBody{Message: message}); err != nil {
		log.Println(errors.Wrap(err, "encoding response"))
	}
}

// lazyWriter defers the status line until the first body byte so that a
// result which fails to encode can still be reported as an error.
type lazyWriter struct {
	rw      http.ResponseWriter
	started bool
	header  func(http.Header)
}

func (w *lazyWriter) Header() http.Header { return w.rw.Header() }

func (w *lazyWriter) WriteHeader(code int) {
	if w.started {
		return
	}
	w.started = true
	if w.header != nil {
		w.header(w.rw.Header())
	}
	w.rw.WriteHeader(code)
}

func (w *lazyWriter) Write(b []byte) (int, error) {
	if !w.started {
		w.WriteHeader(http.StatusOK)
	}
	return w.rw.Write(b)
}

func (w *lazyWriter) Flush() {
	if f, ok := w.rw.(http.Flusher); ok {
		f.Flush()
	}
}
