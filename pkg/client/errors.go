package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRateLimitExceeded is returned when a request is still rate limited
	// after all retry attempts.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// Remediation hints attached to HTTP errors, keyed by status code.
var statusHints = map[int]string{
	http.StatusBadRequest:      "Check that all required fields are provided and data types are correct.",
	http.StatusUnauthorized:    "Your API key may be invalid or expired.",
	http.StatusForbidden:       "Your API key does not have permission for this action.",
	http.StatusNotFound:        "The requested resource was not found. Check the ID.",
	http.StatusTooManyRequests: "You have exceeded the rate limit. The request will be retried automatically.",
}

// HintForStatus returns the remediation hint for a status code, or "".
func HintForStatus(status int) string {
	return statusHints[status]
}

// ValidationError reports caller arguments that fail a precondition before
// any request is sent.
type ValidationError struct {
	Resource string
	Fields   []string
	Message  string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: missing required fields: %s", e.Resource, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Resource, e.Message)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError is a network-level failure that persisted through all retries.
type TransportError struct {
	Method   string
	Path     string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: network error after %d attempts: %v", e.Method, e.Path, e.Attempts, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// RateLimitError is returned once the retry bound for rate-limited responses
// is exhausted. It matches ErrRateLimitExceeded.
type RateLimitError struct {
	Method   string
	Path     string
	Attempts int
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s %s: rate limit exceeded, max retries reached after %d attempts", e.Method, e.Path, e.Attempts)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimitExceeded
}

// HTTPError is a non-2xx response. It carries the request, the decoded error
// message and a remediation hint when one is known for the status.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Body       []byte
	Hint       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

// newHTTPError builds an HTTPError from a read response.
func newHTTPError(method, path string, resp *Response) *HTTPError {
	return &HTTPError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		Message:    errorMessage(resp),
		Body:       resp.Body,
		Hint:       HintForStatus(resp.StatusCode),
	}
}

// errorMessage extracts the error text of a failed response: the JSON "error"
// field, else "errors", else the raw body, else the status.
func errorMessage(resp *Response) string {
	if resp.IsJSON() {
		var payload map[string]any
		if err := resp.Decode(&payload); err == nil {
			if msg, ok := payload["error"]; ok && msg != nil && msg != "" {
				return fmt.Sprint(msg)
			}
			if errs, ok := payload["errors"]; ok && errs != nil {
				return fmt.Sprint(errs)
			}
		}
	}
	if text := strings.TrimSpace(resp.Text()); text != "" {
		return text
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode)
}

// IsNotFound reports whether err is an HTTP 404.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}
