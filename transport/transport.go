// Package transport provides the authenticated request capability the upload
// engine talks to the server through.
//
// The engine never touches a concrete HTTP client: it consumes the Transport
// interface, so tests substitute scripted fakes. The one real implementation,
// HTTPTransport, adds authentication and refuses to follow redirects; a
// 301/302 from a chunk endpoint indicates a misconfigured target, never a
// location to chase with an upload payload.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pithecene-io/sluice/iox"
)

// DefaultTimeout is the default per-request timeout.
const DefaultTimeout = 60 * time.Second

// Request is a generic authenticated server request.
type Request struct {
	// Method is the HTTP method.
	Method string
	// Path is either a server-relative path ("/projects/...") or an
	// absolute URL (the chunk upload endpoint may live on another host).
	Path string
	// Body is the request payload, may be nil.
	Body []byte
	// Header holds extra headers (content type etc.).
	Header http.Header
}

// Response is the server's answer.
type Response struct {
	// Status is the HTTP status code.
	Status int
	// Body is the full response body.
	Body []byte
}

// Transport performs authenticated requests against the server.
type Transport interface {
	// Do performs one request. A non-2xx status is returned as a
	// *StatusError so callers can classify by code; transport-level
	// failures (timeouts, connection resets) come back as other errors.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// StatusError is returned for non-2xx responses. Wrapping the status code
// lets callers distinguish retriable (429, 5xx) from hard failures.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// Detail is the response body, truncated for display.
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// Retriable reports whether the failure is transient: rate limits and
// server-side errors are retried, everything else is hard. Redirects are
// hard errors and are never followed.
func (e *StatusError) Retriable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsRetriable classifies an error from Transport.Do: network-level failures
// are transient, status errors defer to their code.
func IsRetriable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retriable()
	}
	// Non-status errors are transport failures (timeout, reset, DNS);
	// context cancellation is not retriable.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return err != nil
}

// Config configures the HTTP transport.
type Config struct {
	// BaseURL is the server root, e.g. "https://errors.example.com/api/0".
	BaseURL string
	// Token is the bearer token for the Authorization header.
	Token string
	// Timeout is the per-request timeout (default 60s).
	Timeout time.Duration
	// UserAgent overrides the default user agent.
	UserAgent string
}

// HTTPTransport is the production Transport. One instance (and its
// underlying connection pool) is shared by all upload workers.
type HTTPTransport struct {
	config Config
	client *http.Client
}

// NewHTTP creates an HTTP transport from the given config.
func NewHTTP(cfg Config) (*HTTPTransport, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("transport requires a base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &HTTPTransport{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// Surface redirects as their status code instead of
			// following them. Uploads must never chase a Location.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Do performs one authenticated request.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	url := req.Path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = t.config.BaseURL + req.Path
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if t.config.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+t.config.Token)
	}
	ua := t.config.UserAgent
	if ua == "" {
		ua = "sluice"
	}
	httpReq.Header.Set("User-Agent", ua)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer iox.DiscardClose(resp.Body)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Detail: truncate(respBody, 200)}
	}

	return &Response{Status: resp.StatusCode, Body: respBody}, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// Verify HTTPTransport implements Transport.
var _ Transport = (*HTTPTransport)(nil)
