package telemetry

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddleware returns HTTP middleware that extracts trace context from
// incoming requests and creates a span for each of them. Requests for the
// excluded paths, typically probes, are served without a span.
//
// The middleware uses the global providers, so it is a no-op until
// Initialize has installed them.
//
//	traced := telemetry.TracingMiddleware("fish-store-bot", "/health")(router)
func TracingMiddleware(serviceName string, excludedPaths ...string) func(http.Handler) http.Handler {
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	}
	if len(excludedPaths) > 0 {
		excluded := make(map[string]bool, len(excludedPaths))
		for _, p := range excludedPaths {
			excluded[p] = true
		}
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !excluded[r.URL.Path]
		}))
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, opts...)
	}
}

// Redacted replaces secrets in URLs recorded on spans.
const Redacted = "REDACTED"

// ClientOption configures NewTracedHTTPClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	secret string
}

// WithRedactedSecret keeps secret out of the recorded request URL. The
// Telegram Bot API carries the bot token in the path, for example.
func WithRedactedSecret(secret string) ClientOption {
	return func(o *clientOptions) { o.secret = secret }
}

// NewTracedHTTPClient creates an HTTP client that propagates trace context to
// the servers it calls and records a client span per request.
//
// The client uses a pooled transport and should be reused.
func NewTracedHTTPClient(timeout time.Duration, opts ...ClientOption) *http.Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	if o.secret == "" {
		return &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		}
	}

	// otelhttp sees the redacted URL; the real one is put back underneath it.
	traced := otelhttp.NewTransport(restoreURL{next: transport})
	return &http.Client{
		Timeout:   timeout,
		Transport: redactURL{next: traced, secret: o.secret},
	}
}

type originalURLKey struct{}

type redactURL struct {
	next   http.RoundTripper
	secret string
}

func (t redactURL) RoundTrip(r *http.Request) (*http.Response, error) {
	if !strings.Contains(r.URL.String(), t.secret) {
		return t.next.RoundTrip(r)
	}
	shown := r.Clone(context.WithValue(r.Context(), originalURLKey{}, r.URL))
	u := *r.URL
	u.Path = strings.ReplaceAll(u.Path, t.secret, Redacted)
	u.RawPath = ""
	u.RawQuery = strings.ReplaceAll(u.RawQuery, t.secret, Redacted)
	shown.URL = &u
	return t.next.RoundTrip(shown)
}

type restoreURL struct {
	next http.RoundTripper
}

func (t restoreURL) RoundTrip(r *http.Request) (*http.Response, error) {
	original, ok := r.Context().Value(originalURLKey{}).(*url.URL)
	if !ok {
		return t.next.RoundTrip(r)
	}
	sent := r.Clone(r.Context())
	sent.URL = original
	return t.next.RoundTrip(sent)
}
