// Package client is the REST collaborator: an authenticated HTTP client for
// the property-management API plus per-collection CRUD helpers that tolerate
// the API's two envelope shapes.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/auth"
)

const (
	// MaxRetries is the maximum number of retry attempts for rate-limited requests
	MaxRetries = 3

	// DefaultBackoff is the initial backoff duration for exponential backoff
	DefaultBackoff = 1 * time.Second
)

// Credentials supplies the bearer token and performs invalidation when the API
// rejects it. *auth.Session implements it.
type Credentials interface {
	BearerToken() (string, error)
	Invalidate(reason string)
}

// HTTPClient wraps http.Client with authentication and retry logic
// Automatically injects:
// - Authorization: Bearer <token>
// - X-Correlation-ID: <uuid>
//
// Handles:
// - 401/403: invalidate the credential, return *AuthError (no retry)
// - 429 Too Many Requests: respect Retry-After, exponential backoff
// - network failures: *TransportError, retryable
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	backoff    time.Duration
}

// NewHTTPClient creates a new authenticated HTTP client
func NewHTTPClient(baseURL string, creds Credentials) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		backoff:    DefaultBackoff,
	}
}

// BaseURL returns the API root the client talks to
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Do executes an HTTP request with auth header injection and retry logic.
// Any response it returns has a status other than 401, 403 and 429.
func (c *HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	correlationID := uuid.New().String()

	logger := log.With().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("correlationId", correlationID).
		Logger()

	return c.doWithRetry(ctx, req, &logger, correlationID, 0)
}

func (c *HTTPClient) doWithRetry(ctx context.Context, req *http.Request, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	token, err := c.creds.BearerToken()
	if err != nil {
		if errors.Is(err, auth.ErrCredentialExpired) {
			c.creds.Invalidate("credential expired")
		}
		logger.Warn().Err(err).Msg("no usable credential")
		return nil, &AuthError{Reason: err.Error(), Err: err}
	}

	reqClone, err := cloneRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to clone request: %w", err)
	}
	reqClone.Header.Set("X-Correlation-ID", correlationID)
	reqClone.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(reqClone)
	duration := time.Since(start)

	if err != nil {
		logger.Error().Err(err).Dur("duration", duration).Msg("HTTP request failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransportError{
			Op:        req.Method + " " + req.URL.Path,
			Retryable: true,
			Err:       err,
		}
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("retryCount", retryCount).
		Msg("HTTP request completed")

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return c.handleUnauthorized(req, resp, logger)

	case http.StatusTooManyRequests:
		return c.handleRateLimit(ctx, req, resp, logger, correlationID, retryCount)

	default:
		return resp, nil
	}
}

// handleUnauthorized invalidates the credential; the caller has to log in again
func (c *HTTPClient) handleUnauthorized(req *http.Request, resp *http.Response, logger *zerolog.Logger) (*http.Response, error) {
	msg := serverMessage(resp)
	resp.Body.Close()

	reason := fmt.Sprintf("%d from %s", resp.StatusCode, req.URL.Path)
	logger.Warn().Int("status", resp.StatusCode).Msg("credential rejected - invalidating")
	c.creds.Invalidate(reason)

	if msg == "" {
		msg = reason
	}
	return nil, &AuthError{Status: resp.StatusCode, Reason: msg}
}

// handleRateLimit handles 429 Too Many Requests with exponential backoff
func (c *HTTPClient) handleRateLimit(ctx context.Context, req *http.Request, resp *http.Response, logger *zerolog.Logger, correlationID string, retryCount int) (*http.Response, error) {
	resp.Body.Close()

	retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))

	if retryCount >= MaxRetries {
		logger.Warn().Msg("Rate limited - max retries exceeded")
		return nil, &TransportError{
			Op:        req.Method + " " + req.URL.Path,
			Status:    http.StatusTooManyRequests,
			Message:   "Too many requests, please try again shortly",
			Retryable: true,
			Err:       ErrRateLimited{RetryAfter: int(retryAfter.Seconds())},
		}
	}

	if retryAfter == 0 {
		retryAfter = c.backoff * time.Duration(1<<retryCount)
	}

	logger.Warn().
		Dur("retryAfter", retryAfter).
		Int("retryCount", retryCount).
		Msg("Rate limited - backing off")

	select {
	case <-time.After(retryAfter):
		return c.doWithRetry(ctx, req, logger, correlationID, retryCount+1)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cloneRequest creates a copy of an HTTP request for retry
// Preserves the request body by reading and restoring it
func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	reqClone, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	for k, v := range req.Header {
		if k == "Authorization" {
			continue
		}
		reqClone.Header[k] = v
	}

	return reqClone, nil
}

// parseRetryAfter parses the Retry-After header
// Supports both integer seconds and HTTP-date format
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		duration := time.Until(t)
		if duration > 0 {
			return duration
		}
	}

	return 0
}
