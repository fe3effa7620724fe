// Package source fetches translation data and blacklists, from a
// translation server or from disk, and feeds them to a translator.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrStatus is wrapped by errors for non-200 HTTP responses.
var ErrStatus = errors.New("unexpected HTTP status")

const (
	defaultTimeout    = 30 * time.Second
	defaultMaxRetries = 3
)

// Fetcher reads data from http(s) URLs or local paths.
type Fetcher struct {
	// Proxy is an explicit proxy URL; empty means HTTP_PROXY/HTTPS_PROXY.
	Proxy string
	// Timeout bounds a single HTTP request (default 30s).
	Timeout time.Duration
	// MaxRetries is the number of retries on transport errors and 5xx
	// responses (default 3, negative disables retries).
	MaxRetries int
	// Backoff is the first retry delay, doubled on every attempt (default 1s).
	Backoff time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
	// Logger receives debug output; nil means slog.Default().
	Logger *slog.Logger

	once   sync.Once
	client *http.Client
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f *Fetcher) effectiveTimeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return defaultTimeout
}

func (f *Fetcher) effectiveMaxRetries() int {
	if f.MaxRetries < 0 {
		return 0
	}
	if f.MaxRetries == 0 {
		return defaultMaxRetries
	}
	return f.MaxRetries
}

func (f *Fetcher) effectiveBackoff(attempt int) time.Duration {
	base := f.Backoff
	if base <= 0 {
		base = time.Second
	}
	return time.Duration(math.Pow(2, float64(attempt))) * base
}

func (f *Fetcher) httpClient() *http.Client {
	f.once.Do(func() {
		f.client = MakeHTTPClient(f.Proxy, f.effectiveTimeout())
	})
	return f.client
}

// IsRemote reports whether location is fetched over HTTP.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// Fetch returns the contents of location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if !IsRemote(location) {
		data, err := os.ReadFile(strings.TrimPrefix(location, "file://"))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", location, err)
		}
		return data, nil
	}
	return f.get(ctx, location)
}

func (f *Fetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	client := f.httpClient()
	maxRetries := f.effectiveMaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if f.UserAgent != "" {
			req.Header.Set("User-Agent", f.UserAgent)
		}

		f.logger().Debug("fetching", "url", endpoint, "attempt", attempt+1)

		resp, err := client.Do(req)
		if err != nil {
			if attempt < maxRetries {
				if err := sleep(ctx, f.effectiveBackoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("fetching %s: %w", endpoint, err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", endpoint, err)
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < maxRetries && resp.StatusCode >= 500 {
				f.logger().Warn("server error, retrying", "url", endpoint, "status", resp.StatusCode)
				if err := sleep(ctx, f.effectiveBackoff(attempt)); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("fetching %s: %w %d: %s", endpoint, ErrStatus, resp.StatusCode, truncate(string(body), 200))
		}

		return body, nil
	}

	return nil, fmt.Errorf("fetching %s: exhausted all %d retries", endpoint, maxRetries)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// MakeHTTPClient returns a client that uses proxyURL, or the proxy from
// the environment when proxyURL is empty.
func MakeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
