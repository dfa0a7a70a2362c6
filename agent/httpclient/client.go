// Package httpclient is the agent's transport to the ingestion API:
// authenticated JSON and multipart POSTs with fixed-delay retries.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tekpossible/ems/zapctx"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned on a 401 response. It is terminal: the
// API key is wrong and retrying will not help.
var ErrUnauthorized = errors.New("server rejected API key")

// StatusError reports a non-2xx response. Callers use the status code
// to decide whether a payload is worth keeping.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// IsClientError reports whether err is a non-retryable 4xx response.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

type Client struct {
	serverURL     string
	apiKey        string
	httpClient    *http.Client
	retryAttempts int
	retryDelay    time.Duration
}

type Config struct {
	ServerURL string
	APIKey    string
	// RetryAttempts is the total number of delivery attempts, first try
	// included.
	RetryAttempts int
	RetryDelay    time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	return &Client{
		serverURL:     cfg.ServerURL,
		apiKey:        cfg.APIKey,
		retryAttempts: cfg.RetryAttempts,
		retryDelay:    cfg.RetryDelay,
		// Per-call deadlines come from the caller's context.
		httpClient: &http.Client{},
	}
}

// PostJSON sends an authenticated JSON POST, retrying transient
// failures. Client errors (4xx) are never retried.
func (c *Client) PostJSON(ctx context.Context, endpoint string, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return c.post(ctx, endpoint, func() (io.Reader, string) {
		return bytes.NewReader(jsonData), "application/json"
	})
}

// PostMultipart sends an authenticated multipart POST for file uploads.
// The body is provided as bytes so each retry attempt replays it from
// the start.
func (c *Client) PostMultipart(ctx context.Context, endpoint string, body []byte, contentType string) error {
	return c.post(ctx, endpoint, func() (io.Reader, string) {
		return bytes.NewReader(body), contentType
	})
}

func (c *Client) post(ctx context.Context, endpoint string, makeBody func() (io.Reader, string)) error {
	url := c.serverURL + endpoint

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			zapctx.Info(ctx, "Retrying request",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.retryAttempts))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		body, contentType := makeBody()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusUnauthorized:
			return ErrUnauthorized
		case resp.StatusCode >= 500:
			lastErr = &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
			continue
		default:
			// Client error: the payload is at fault, retrying cannot fix it.
			return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.retryAttempts, lastErr)
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}
