// Package download provides the HTTP client used for searches, metadata
// fetches, and archive downloads. Responses are buffered whole; callers
// parse complete payloads, never streams.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// maxBodyBytes caps buffered response bodies. Addon archives are small;
// anything larger indicates a wrong URL.
const maxBodyBytes int64 = 256 * 1024 * 1024

// ErrBodyTooLarge indicates a response body exceeded the buffering cap.
// A too-large body is permanent; retrying cannot shrink it.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Response is a fully buffered HTTP response.
type Response struct {
	// Body holds the entire response payload.
	Body []byte
	// FinalURL is the URL after redirects. Archive endpoints redirect
	// to the versioned file name, which callers recover from here.
	FinalURL string
}

// Client performs buffered HTTP fetches with retry and backoff.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
	retryCount int
	maxBody    int64
}

// NewClient creates a download client.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: 30 * time.Second}).DialContext,
				TLSHandshakeTimeout:   15 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				IdleConnTimeout:       90 * time.Second,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
			},
		},
		logger:     logger,
		userAgent:  "wowsync/0.2",
		retryCount: 3,
		maxBody:    maxBodyBytes,
	}
}

// Fetch downloads the given URL, retrying transient failures with
// exponential backoff.
func (c *Client) Fetch(ctx context.Context, url string) (*Response, error) {
	return c.FetchWithHeaders(ctx, url, nil)
}

// FetchWithHeaders is Fetch with extra request headers (e.g. API Accept
// headers).
func (c *Client) FetchWithHeaders(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryCount; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch cancelled: %w", ctx.Err())
		default:
		}

		resp, err := c.fetchOnce(ctx, url, headers)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if shouldNotRetry(err) {
			return nil, err
		}

		if attempt < c.retryCount {
			delay := backoffDelay(attempt)
			c.logger.Debug("retrying fetch", "url", url, "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("fetch cancelled during retry: %w", ctx.Err())
			}
		}
	}

	return nil, fmt.Errorf("fetch failed after %d attempts: %w", c.retryCount, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	// Read one byte past the cap so truncation is detected rather than
	// surfacing later as a corrupt-archive failure.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, c.maxBody)
	}

	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{Body: body, FinalURL: finalURL}, nil
}

// backoffDelay computes exponential backoff with jitter.
func backoffDelay(attempt int) time.Duration {
	base := time.Second
	exp := time.Duration(math.Pow(2, float64(attempt-1))) * base
	jitter := time.Duration(rand.Int63n(int64(exp/2) + 1))
	return exp + jitter
}

// shouldNotRetry reports whether the error is permanent. 4xx responses
// other than 429 never succeed on retry, and an oversized body stays
// oversized.
func shouldNotRetry(err error) bool {
	if errors.Is(err, ErrBodyTooLarge) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != 429 {
			return true
		}
	}
	return false
}

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.StatusCode, e.Status)
}
