// Package remote is the HTTP client for the study service backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"distill-client/internal/apperr"
	"distill-client/internal/config"
	"distill-client/internal/utils"
	"distill-client/pkg/logger"
)

// TokenSource supplies the bearer token for outgoing requests; "" means
// unauthenticated.
type TokenSource interface {
	Token() string
}

type Options struct {
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	MaxResponseBytes int64
	// HTTPClient overrides the default pooled client.
	HTTPClient *http.Client
}

type Client struct {
	httpClient *http.Client
	baseURL    *url.URL

	maxRetries int
	retryBase  time.Duration
	maxBody    int64

	mu     sync.RWMutex
	tokens TokenSource
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid remote base url %q", opts.BaseURL)
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 4 << 20
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = utils.NewHTTPClient(opts.Timeout)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBaseDelay,
		maxBody:    opts.MaxResponseBytes,
	}, nil
}

func NewFromConfig(cfg config.RemoteConfig) (*Client, error) {
	return New(Options{
		BaseURL:          cfg.BaseURL,
		Timeout:          cfg.Timeout,
		MaxRetries:       cfg.MaxRetries,
		RetryBaseDelay:   cfg.RetryBaseDelay,
		MaxResponseBytes: cfg.MaxResponseBytes,
	})
}

// SetTokenSource installs the source consulted on every request.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	c.tokens = ts
	c.mu.Unlock()
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Token()
}

// newRequest joins relPath onto the base URL. relPath must not carry a
// query string; pass query instead.
func (c *Client) newRequest(ctx context.Context, method, relPath string, query url.Values, body any) (*http.Request, error) {
	if strings.Contains(relPath, "?") {
		return nil, fmt.Errorf("relPath must not contain query: %s", relPath)
	}

	// relPath is already escaped; keep the escaped form so an encoded
	// slash inside a segment survives.
	u := *c.baseURL
	u.RawPath = path.Join(c.baseURL.EscapedPath(), relPath)
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", relPath, err)
	}
	u.Path = unescaped
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do performs one request and decodes a 2xx JSON reply into out.
func (c *Client) do(ctx context.Context, op, method, relPath string, query url.Values, in, out any) error {
	req, err := c.newRequest(ctx, method, relPath, query, in)
	if err != nil {
		return apperr.Network(op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Network(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return apperr.Network(op, err)
	}
	if int64(len(data)) > c.maxBody {
		return apperr.Status(op, resp.StatusCode, fmt.Errorf("response exceeds %d bytes", c.maxBody))
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return &apperr.Error{Kind: apperr.KindAuth, Op: op, Status: resp.StatusCode, Err: errors.New(detail(data, resp.Status))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.Status(op, resp.StatusCode, errors.New(detail(data, resp.Status)))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperr.Parse(op, err)
	}
	return nil
}

// detail extracts the server's error message: a "detail" or "error" field
// when the body is JSON, else a prefix of the raw body.
func detail(data []byte, status string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil && s != "" {
			return s
		}
		if len(payload.Detail) > 0 && string(payload.Detail) != "null" {
			return string(payload.Detail)
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return status
	}
	const maxDetail = 200
	if len(text) > maxDetail {
		text = text[:maxDetail]
	}
	return text
}

// withRetry runs fn up to maxRetries times with exponential backoff while
// it keeps failing with a retryable error. Only read-only calls use it.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !apperr.Retryable(lastErr) {
			return lastErr
		}
		if attempt == c.maxRetries-1 {
			break
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryBase
		logger.Debugf("%s failed (attempt %d), retrying in %s: %v", op, attempt+1, wait, lastErr)

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return apperr.Network(op, ctx.Err())
		}
	}
	return lastErr
}
