package apiclient

import (
	"errors"
	"fmt"
)

// AuthError means no usable session token could be obtained. No request
// was sent.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "no valid session found, please sign in"
	}
	return fmt.Sprintf("no valid session found, please sign in: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx response from the API. 4xx and 5xx are not
// distinguished.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string // reason phrase, e.g. "Bad Gateway"
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("API %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// ParseError means a body that should have been JSON was not.
type ParseError struct {
	Path string
	Body string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed JSON response: %v", e.Err)
	}
	return fmt.Sprintf("malformed JSON response from %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsAuth reports whether err is (or wraps) an *AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsHTTP reports whether err is (or wraps) an *HTTPError.
func IsHTTP(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}

// IsParse reports whether err is (or wraps) a *ParseError.
func IsParse(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
