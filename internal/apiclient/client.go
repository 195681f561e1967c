// Package apiclient talks to the civic issue API. Every request carries a
// bearer token obtained fresh from a TokenProvider; failures are normalized
// into AuthError, HTTPError and ParseError.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joescharf/civicadmin/internal/models"
)

const (
	userAgent      = "civicadmin/1.0"
	defaultTimeout = 30 * time.Second
)

// TokenProvider supplies the current bearer token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Config holds the settings for New.
type Config struct {
	// BaseURL is the API root, e.g. https://abc.execute-api.us-east-1.amazonaws.com/prod.
	BaseURL string

	Tokens TokenProvider

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client is the authenticated API client.
type Client struct {
	baseURL    string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api base URL is not configured (set api.base_url or CIVIC_API_BASE_URL)")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid api base URL %q: %w", baseURL, err)
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("no token provider configured")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Response is a successful (2xx) API response.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IsJSON reports whether the server declared a JSON body.
func (r *Response) IsJSON() bool {
	return strings.Contains(strings.ToLower(r.ContentType), "application/json")
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &ParseError{Body: snippet(r.Body), Err: err}
	}
	return nil
}

// Do sends an authenticated request. body, when non-nil, is JSON-encoded.
// Headers in header are merged in but never replace Authorization or
// Content-Type. JSON bodies are validated; other content types are
// returned as raw text. Every error is logged before it is returned.
func (c *Client) Do(ctx context.Context, method, path string, body any, header http.Header) (*Response, error) {
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		c.logger.Error("api request failed", "method", method, "path", path, "error", err)
		return nil, err
	}
	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode)
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, header http.Header) (*Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	if token == "" {
		return nil, &AuthError{}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Best effort: a failed read still yields an HTTPError.
		text, _ := io.ReadAll(resp.Body)
		return nil, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Status:     reasonPhrase(resp),
			Body:       string(text),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response body: %w", method, path, err)
	}

	out := &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}
	if out.IsJSON() && len(bytes.TrimSpace(data)) > 0 && !json.Valid(data) {
		return nil, &ParseError{Path: path, Body: snippet(data), Err: fmt.Errorf("content type %q but body is not JSON", out.ContentType)}
	}
	return out, nil
}

// reasonPhrase strips the numeric code from resp.Status ("502 Bad Gateway").
func reasonPhrase(resp *http.Response) string {
	if phrase := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); phrase != "" && phrase != resp.Status {
		return phrase
	}
	return http.StatusText(resp.StatusCode)
}

// fetch GETs path and returns the unwrapped payload.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.Do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	payload, err := Unwrap(resp.Body)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.Path = path
		}
		c.logger.Error("unwrap response failed", "path", path, "error", err)
		return nil, err
	}
	return payload, nil
}

// Stats fetches the aggregate statistics.
func (c *Client) Stats(ctx context.Context) (*models.Stats, error) {
	payload, err := c.fetch(ctx, "/stats")
	if err != nil {
		return nil, err
	}
	var stats models.Stats
	if err := json.Unmarshal(payload, &stats); err != nil {
		perr := &ParseError{Path: "/stats", Body: snippet(payload), Err: err}
		c.logger.Error("decode stats failed", "error", perr)
		return nil, perr
	}
	return &stats, nil
}

// ListOptions narrows ListIssues on the server side.
type ListOptions struct {
	// Status restricts the listing to one status.
	Status models.IssueStatus
}

// ListIssues fetches the issue collection in server order. A null
// payload yields an empty, non-nil slice.
func (c *Client) ListIssues(ctx context.Context, opts ListOptions) ([]models.Issue, error) {
	path := "/issues"
	if opts.Status != "" {
		path += "?" + url.Values{"status": {string(opts.Status)}}.Encode()
	}

	payload, err := c.fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	var issues []models.Issue
	if err := json.Unmarshal(payload, &issues); err != nil {
		perr := &ParseError{Path: path, Body: snippet(payload), Err: err}
		c.logger.Error("decode issues failed", "error", perr)
		return nil, perr
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	return issues, nil
}

// UpdateIssue PUTs the full record to /issues/{id}. The response body
// carries no meaning and is ignored.
func (c *Client) UpdateIssue(ctx context.Context, issue models.Issue) error {
	if issue.ID == "" {
		return fmt.Errorf("update issue: missing issue id")
	}
	_, err := c.Do(ctx, http.MethodPut, "/issues/"+url.PathEscape(issue.ID), issue, nil)
	return err
}
