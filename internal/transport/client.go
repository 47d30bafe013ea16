// Package transport issues JSON requests against the download service and
// unwraps its {success, data, error} response envelope.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 8 << 20

	// HeaderRequestID carries a per-call correlation id.
	HeaderRequestID = "X-Request-ID"
)

// envelope is the response wrapper used by every JSON endpoint.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client wraps HTTP calls to the download service.
// It performs no retries; retry policy belongs to callers.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "transport")
	return c
}

// BaseURL returns the service base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request performs a typed call and decodes the envelope's data into T.
func Request[T any](ctx context.Context, c *Client, method, endpoint string, body any) (T, error) {
	var out T
	if err := c.Do(ctx, method, endpoint, body, &out); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Get is Request with GET and no body.
func Get[T any](ctx context.Context, c *Client, endpoint string) (T, error) {
	return Request[T](ctx, c, http.MethodGet, endpoint, nil)
}

// Post is Request with POST and a JSON body.
func Post[T any](ctx context.Context, c *Client, endpoint string, body any) (T, error) {
	return Request[T](ctx, c, http.MethodPost, endpoint, body)
}

// Do sends a request and decodes the envelope's data into out (which may be nil).
// Every failure is returned as an *APIError.
func (c *Client) Do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &APIError{Message: "encode request body", Kind: KindValidation, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return &APIError{Message: "build request", Kind: KindValidation, Err: err}
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", method, "path", endpoint, "request_id", requestID, "error", err)
		return NewNetworkError(fmt.Sprintf("%s %s failed", method, endpoint), err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return NewNetworkError("read response body", err)
	}

	c.log.Debug("api request",
		"method", method,
		"path", endpoint,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds())

	return decodeEnvelope(resp.StatusCode, raw, out)
}

func decodeEnvelope(status int, raw []byte, out any) error {
	var env envelope
	parseErr := json.Unmarshal(raw, &env)

	if status < 200 || status >= 300 {
		msg := ""
		if parseErr == nil {
			msg = env.Error
		}
		return NewStatusError(status, msg, raw)
	}

	if parseErr != nil {
		return &APIError{Message: "malformed response envelope", Status: status, Body: raw, Kind: KindNetwork, Err: parseErr}
	}
	if env.Success == nil {
		return &APIError{Message: "response envelope missing success field", Status: status, Body: raw, Kind: KindNetwork}
	}
	if !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request was not successful"
		}
		return &APIError{Message: msg, Status: status, Body: raw, Kind: KindForStatus(status)}
	}

	if out == nil || len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &APIError{Message: "unexpected response data", Status: status, Body: raw, Kind: KindNetwork, Err: err}
	}
	return nil
}
