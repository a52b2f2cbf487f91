// Package strapi is a small client for the Strapi v5 REST API that stores the
// shop's products, carts, cart items and orders.
//
// Every request carries the API token as a bearer credential. Request bodies
// are wrapped in {"data": ...} and responses are decoded into explicit
// schemas, so a payload that does not match is reported as an upstream error
// instead of leaking zero values into the bot.
//
// Error mapping:
//   - 404 responses match core.ErrNotFound
//   - other non-2xx responses, transport errors and malformed payloads match core.ErrUpstream
//
// No retries and no caching happen here; callers decide what to do on failure.
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yelena0000/fish-store/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Collection names as exposed by the CMS.
const (
	CollectionProducts  = "products"
	CollectionCarts     = "carts"
	CollectionCartItems = "cart-products"
	CollectionOrders    = "orders"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// ErrMalformedResponse marks a payload that does not match the expected schema.
var ErrMalformedResponse = errors.New("malformed CMS response")

// APIError is a non-success response from the CMS.
type APIError struct {
	Op      string
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s: CMS returned %d %s: %s", e.Op, e.Status, e.Name, msg)
}

// Is lets errors.Is match the error taxonomy: 404 is NotFound, everything else Upstream.
func (e *APIError) Is(target error) bool {
	switch target {
	case core.ErrNotFound:
		return e.Status == http.StatusNotFound
	case core.ErrUpstream:
		return e.Status != http.StatusNotFound
	}
	return false
}

// Client talks to one Strapi instance.
type Client struct {
	rootURL    string // server root, used to resolve media paths
	apiURL     string // rootURL + "/api"
	token      string
	httpClient *http.Client
	logger     core.Logger
	requests   metric.Int64Counter

	Products  *Collection[Product]
	Carts     *Collection[Cart]
	CartItems *Collection[CartItem]
	Orders    *Collection[Order]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client, e.g. with a traced one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		c.logger = core.LoggerOrNoOp(logger)
	}
}

// NewClient creates a client for the CMS at baseURL (the server root, without "/api").
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	root := strings.TrimRight(baseURL, "/")
	u, err := url.Parse(root)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &core.Error{
			Op:      "strapi.NewClient",
			Kind:    core.KindConfig,
			Message: fmt.Sprintf("invalid CMS URL: %q", baseURL),
			Err:     core.ErrInvalidConfiguration,
		}
	}

	c := &Client{
		rootURL:    root,
		apiURL:     root + "/api",
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.requests, err = otel.Meter("github.com/yelena0000/fish-store/strapi").Int64Counter(
		"strapi.requests",
		metric.WithDescription("CMS requests by collection, method and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create request counter: %w", err)
	}

	c.Products = newCollection[Product](c, CollectionProducts)
	c.Carts = newCollection[Cart](c, CollectionCarts)
	c.CartItems = newCollection[CartItem](c, CollectionCartItems)
	c.Orders = newCollection[Order](c, CollectionOrders)

	return c, nil
}

// MediaURL resolves a media path returned by the CMS into an absolute URL.
// Absolute URLs (e.g. from an external upload provider) are returned unchanged.
func (c *Client) MediaURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return c.rootURL + "/" + strings.TrimLeft(path, "/")
}

// Ping lists a single product to check that the CMS is reachable and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	_, _, err := c.Products.List(ctx, NewQuery().Paginate(1, 1))
	return err
}

// HealthCheck implements core.HealthChecker.
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx)
}

// errorEnvelope is the error body Strapi sends with non-2xx responses.
type errorEnvelope struct {
	Error *struct {
		Status  int    `json:"status"`
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// do performs one request. body, when not nil, is wrapped as {"data": body}.
// out, when not nil, receives the decoded response. A 204 or empty body leaves out untouched.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	endpoint := c.apiURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(map[string]interface{}{"data": body})
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	collection, _, _ := strings.Cut(path, "/")
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(ctx, collection, method, 0)
		c.logger.Warn("CMS request failed", map[string]interface{}{
			"op":     op,
			"method": method,
			"path":   path,
			"error":  err,
		})
		return core.NewUpstreamError(op, err)
	}
	defer resp.Body.Close()
	c.record(ctx, collection, method, resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return core.NewUpstreamError(op, fmt.Errorf("read response: %w", err))
	}

	c.logger.Debug("CMS request", map[string]interface{}{
		"op":          op,
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode}
		var env errorEnvelope
		if json.Unmarshal(data, &env) == nil && env.Error != nil {
			apiErr.Name = env.Error.Name
			apiErr.Message = env.Error.Message
		}
		if resp.StatusCode != http.StatusNotFound {
			c.logger.Error("CMS returned an error", map[string]interface{}{
				"op":      op,
				"status":  resp.StatusCode,
				"name":    apiErr.Name,
				"message": apiErr.Message,
			})
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return malformed(op, err)
	}
	return nil
}

func (c *Client) record(ctx context.Context, collection, method string, status int) {
	c.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("collection", collection),
		attribute.String("method", method),
		attribute.Int("status", status),
	))
}

func malformed(op string, cause error) error {
	return core.NewUpstreamError(op, fmt.Errorf("%w: %v", ErrMalformedResponse, cause))
}
