// Package dispatch serves stored files over HTTP from under a URL prefix,
// passing every other request through to the wrapped handler.
//
// A request for "/<prefix>/<identifier>" is answered with the object the
// identifier resolves to: 200 with the object's content type and content, or,
// when a default object is served in its place, the configured fallback
// status (200 or 302). If nothing is found, or the identifier is malformed,
// the answer is 404 with a plain text body. The identifier may contain
// slashes. Verbs are not inspected.
package dispatch

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nicolagi/gridserve/resolve"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPrefix = "gridfs"

	notFoundBody = "File not found."
)

// Resolver is what the middleware needs from resolve.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, req resolve.Request) (resolve.Outcome, error)
}

type rulesetResolver interface {
	Ruleset() resolve.Ruleset
}

// ErrorHandler answers a request whose resolution failed for a reason other
// than the file not being there, e.g., a lost connection to the store.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type Option func(*options)

type options struct {
	prefix         string
	mode           resolve.Mode
	fallbackStatus int
	onError        ErrorHandler
	metrics        *Metrics
}

// WithPrefix sets the URL prefix to serve files from. A leading slash is
// ignored.
func WithPrefix(value string) Option {
	return func(o *options) {
		o.prefix = strings.TrimPrefix(value, "/")
	}
}

func WithMode(value resolve.Mode) Option {
	return func(o *options) {
		o.mode = value
	}
}

// WithFallbackStatus sets the status code for default objects served in place
// of missing ones. Without it, the status is the resolver's ruleset default if
// the resolver exposes its ruleset, 200 otherwise.
func WithFallbackStatus(value int) Option {
	return func(o *options) {
		o.fallbackStatus = value
	}
}

func WithErrorHandler(value ErrorHandler) Option {
	return func(o *options) {
		o.onError = value
	}
}

func WithMetrics(value *Metrics) Option {
	return func(o *options) {
		o.metrics = value
	}
}

// Middleware intercepts requests under its prefix. It holds no per-request
// state.
type Middleware struct {
	resolver Resolver
	opts     options
	pattern  *regexp.Regexp
}

func New(resolver Resolver, opts ...Option) *Middleware {
	m := &Middleware{resolver: resolver}
	m.opts.prefix = DefaultPrefix
	m.opts.mode = resolve.ByID
	m.opts.onError = InternalServerError
	for _, o := range opts {
		o(&m.opts)
	}
	if m.opts.fallbackStatus == 0 {
		m.opts.fallbackStatus = http.StatusOK
		if rr, ok := resolver.(rulesetResolver); ok && rr.Ruleset().DefaultStatus != 0 {
			m.opts.fallbackStatus = rr.Ruleset().DefaultStatus
		}
	}
	m.pattern = regexp.MustCompile(`^/` + regexp.QuoteMeta(m.opts.prefix) + `/(.+)$`)
	return m
}

// Wrap returns a handler serving files under the prefix and delegating
// anything else to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier, ok := m.match(r.URL.Path)
		if !ok {
			m.opts.metrics.passedThrough()
			next.ServeHTTP(w, r)
			return
		}
		m.serve(w, r, identifier)
	})
}

// ServeHTTP implements http.Handler, answering 404 outside the prefix.
func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.Wrap(http.NotFoundHandler()).ServeHTTP(w, r)
}

func (m *Middleware) match(path string) (identifier string, ok bool) {
	sm := m.pattern.FindStringSubmatch(path)
	if sm == nil {
		return "", false
	}
	return sm[1], true
}

func (m *Middleware) serve(w http.ResponseWriter, r *http.Request, identifier string) {
	start := time.Now()
	logger := log.WithFields(log.Fields{
		"op":         r.Method,
		"identifier": identifier,
	})
	out, err := m.resolver.Resolve(r.Context(), resolve.Request{
		Identifier: identifier,
		Mode:       m.opts.mode,
	})
	if err != nil {
		logger.WithField("err", err).Error("Could not resolve")
		m.opts.metrics.observe("error", start, 0)
		m.opts.onError(w, r, err)
		return
	}
	if out.Kind == resolve.NotFound {
		logger.Debug("Not found")
		m.opts.metrics.observe(out.Kind.String(), start, 0)
		writeNotFound(w)
		return
	}
	defer func() {
		if err := out.Object.Close(); err != nil {
			logger.WithField("err", err).Warn("Could not close object")
		}
	}()
	status := http.StatusOK
	if out.Kind == resolve.FoundViaFallback {
		status = m.opts.fallbackStatus
		logger = logger.WithFields(log.Fields{
			"rule":     out.Rule,
			"fallback": out.Identifier,
		})
	}
	h := w.Header()
	h.Set("Content-Type", out.Object.ContentType)
	if out.Object.Length >= 0 {
		h.Set("Content-Length", strconv.FormatInt(out.Object.Length, 10))
	}
	w.WriteHeader(status)
	var n int64
	if r.Method != http.MethodHead {
		n, err = io.Copy(w, out.Object.Body)
		if err != nil {
			// Too late to change the status.
			logger.WithFields(log.Fields{
				"err":     err,
				"written": n,
			}).Error("Failed writing response")
		}
	}
	logger.WithField("status", status).Debug("Success")
	m.opts.metrics.observe(out.Kind.String(), start, n)
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	_, _ = io.WriteString(w, notFoundBody)
}

// InternalServerError is the default ErrorHandler. It does not leak the error.
func InternalServerError(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = io.WriteString(w, "Internal server error.")
}
