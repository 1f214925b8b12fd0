// Package remote provides adapters that fetch pluggable module manifests
// over HTTP.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrHostNotAllowed is returned for addresses outside the configured allowlist.
var ErrHostNotAllowed = errors.New("host not in loader allowlist")

// maxManifestBytes caps how much of a manifest response is read.
const maxManifestBytes = 1 << 20

// Client performs JSON GETs against remote module hosts.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	allowed    map[string]bool
}

// ClientConfig configures the remote client.
type ClientConfig struct {
	Timeout time.Duration

	// Headers are sent only to AllowedHosts.
	Headers map[string]string

	// AllowedHosts restricts fetches to these hosts ("cdn.example.com" or
	// "cdn.example.com:8443"). Empty allows any host but sends no Headers.
	AllowedHosts []string
}

// NewClient creates a new remote HTTP client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	allowed := make(map[string]bool, len(cfg.AllowedHosts))
	for _, h := range cfg.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = true
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers:    cfg.Headers,
		allowed:    allowed,
	}
}

// trusted reports whether u's host is on the allowlist.
func (c *Client) trusted(u *url.URL) bool {
	return c.allowed[strings.ToLower(u.Hostname())] || c.allowed[strings.ToLower(u.Host)]
}

// GetJSON fetches address and decodes the JSON body into result.
func (c *Client) GetJSON(ctx context.Context, address string, result any) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	trusted := c.trusted(u)
	if len(c.allowed) > 0 && !trusted {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Host)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if trusted {
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxManifestBytes)

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(body, 512))
		return &RemoteError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}

	if err := json.NewDecoder(body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RemoteError is a non-2xx answer from a module host. Message is the start
// of the response body; keep it in logs, not in client responses.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode == http.StatusNotFound
	}
	return false
}
