package client

import (
	"errors"
	"fmt"
)

// AuthError means the caller must re-authenticate: the credential is missing or
// expired, or the API answered 401/403. It is never retried.
type AuthError struct {
	Status int // 0 when no request was sent
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication required (HTTP %d): %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("authentication required: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// TransportError is a network failure or an unexpected response status.
// Message is safe to show to the user.
type TransportError struct {
	Op        string
	Status    int // 0 for network failures
	Message   string
	Retryable bool
	Err       error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the API kept answering 429 after all retries
type ErrRateLimited struct {
	RetryAfter int // seconds
}

func (e ErrRateLimited) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// UserMessage renders any client error as one line for the UI
func UserMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "Your session has expired. Please log in again."
	}
	var tErr *TransportError
	if errors.As(err, &tErr) && tErr.Message != "" {
		return tErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsAuth reports whether err requires re-authentication
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsRetryable reports whether the failed request may succeed if repeated
func IsRetryable(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr) && tErr.Retryable
}
