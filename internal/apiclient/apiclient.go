// Package apiclient provides the shared rate-limited HTTP client used by
// apresolve, token/login5, and the metadata client. Grounded on
// pkg/musicbrainz/client.go's throttle-then-request pattern.
package apiclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const userAgent = "librespot-sub003/1.0"

// Client is a minimally rate-limited HTTP client: it never issues two
// requests closer together than MinInterval, a defensive throttle against
// hammering spclient/apresolve/login5 during reconnect storms.
type Client struct {
	http        *http.Client
	MinInterval time.Duration

	mu      sync.Mutex
	lastReq time.Time
}

// New builds a Client with the given timeout and minimum request spacing.
func New(timeout, minInterval time.Duration) *Client {
	return &Client{
		http:        &http.Client{Timeout: timeout},
		MinInterval: minInterval,
	}
}

func (c *Client) throttle() {
	if c.MinInterval <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastReq); elapsed < c.MinInterval {
		time.Sleep(c.MinInterval - elapsed)
	}
	c.lastReq = time.Now()
}

// Do issues req, throttled, returning the raw response for the caller to
// inspect headers (e.g. Content-Range) before reading the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.throttle()
	req.Header.Set("User-Agent", userAgent)
	return c.http.Do(req)
}

// GetJSON performs a GET and reads the whole body, failing on non-2xx.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, resp.StatusCode, fmt.Errorf("http %d for %s", resp.StatusCode, url)
	}
	return body, resp.StatusCode, nil
}
