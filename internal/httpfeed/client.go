package httpfeed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const userAgent = "sfcmove/1.0 (+https://github.com/kota113/SfcBusSchedules)"

const maxAttempts = 3

// Client fetches JSON documents from a base URL.
type Client struct {
	baseURL    string
	rawQuery   bool
	httpClient *http.Client
	backoff    time.Duration
	log        *zap.Logger
}

type Option func(*Client)

// WithRawQuery appends ?raw=true to every request, which is how GitHub serves
// blob paths as plain files.
func WithRawQuery() Option { return func(c *Client) { c.rawQuery = true } }

func WithBackoff(d time.Duration) Option { return func(c *Client) { c.backoff = d } }

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		backoff:    time.Second,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fetch GETs baseURL+path and returns the body of a 2xx response.
func (c *Client) Fetch(ctx context.Context, path string) ([]byte, error) {
	reqURL := c.baseURL + path
	if c.rawQuery {
		u, err := url.Parse(reqURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("raw", "true")
		u.RawQuery = q.Encode()
		reqURL = u.String()
	}

	resp, err := c.getWithRetries(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", reqURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", reqURL, err)
	}
	return body, nil
}

// getWithRetries attempts a GET up to 3 times for 502/503/504 and transport errors.
func (c *Client) getWithRetries(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusGatewayTimeout:
			resp.Body.Close()
			lastErr = fmt.Errorf("transient status code: %d", resp.StatusCode)
		default:
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < maxAttempts-1 {
			c.log.Debug("retrying feed request", zap.String("url", reqURL), zap.Int("attempt", attempt+1), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * c.backoff):
			}
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
