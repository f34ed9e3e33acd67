// Package clickup is a small client for the ClickUp REST API v2.
package clickup

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

	"github.com/go-training/clickup-mcp/pkg/core"
)

const (
	// DefaultBaseURL is the public ClickUp API.
	DefaultBaseURL = "https://api.clickup.com/api/v2"
	// DefaultTimeout bounds every API call.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// AuthScheme selects how the access token is placed in the Authorization header.
type AuthScheme string

const (
	// SchemeBearer sends "Authorization: Bearer <token>", used for OAuth tokens.
	SchemeBearer AuthScheme = "bearer"
	// SchemeRaw sends the token verbatim, used for personal API tokens.
	SchemeRaw AuthScheme = "raw"
)

// ParseAuthScheme converts a string to an AuthScheme. Empty input means SchemeBearer.
func ParseAuthScheme(s string) (AuthScheme, error) {
	switch AuthScheme(strings.ToLower(strings.TrimSpace(s))) {
	case "", SchemeBearer:
		return SchemeBearer, nil
	case SchemeRaw:
		return SchemeRaw, nil
	default:
		return "", fmt.Errorf("unknown auth scheme %q (want bearer or raw)", s)
	}
}

func (s AuthScheme) header(token string) string {
	if s == SchemeRaw {
		return token
	}
	return "Bearer " + token
}

// ErrMissingToken is returned when a call is made without an access token.
var ErrMissingToken = errors.New("clickup access token is required")

// APIError is a non-2xx answer from the ClickUp API.
type APIError struct {
	StatusCode int
	Code       string `json:"ECODE"`
	Message    string `json:"err"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("clickup api: status %d", e.StatusCode)
	}
	if e.Code == "" {
		return fmt.Sprintf("clickup api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("clickup api: status %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Unauthorized reports whether the token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Client calls the ClickUp API on behalf of the token passed to each method.
type Client struct {
	baseURL    string
	scheme     AuthScheme
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAuthScheme overrides SchemeBearer.
func WithAuthScheme(scheme AuthScheme) Option {
	return func(c *Client) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient returns a client for baseURL, DefaultBaseURL when empty.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		scheme:  SchemeBearer,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scheme returns the configured auth scheme.
func (c *Client) Scheme() AuthScheme {
	return c.scheme
}

func (c *Client) do(ctx context.Context, token, method, path string, query url.Values, in, out any) error {
	if token == "" {
		return ErrMissingToken
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.scheme.header(token))
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logger := core.LoggerFromCtx(ctx)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("ClickUp request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("clickup request failed: %w", err)
	}
	defer resp.Body.Close()

	logger.Debug("ClickUp request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode clickup response: %w", err)
	}
	return nil
}
