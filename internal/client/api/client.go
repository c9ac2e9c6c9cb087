// Package api is the HTTP client for the comment service: paginated reads,
// comment creation and the live Server-Sent Events stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"imagereview/internal/model"
)

// ConnectionIDHeader carries the live connection id on writes.
const ConnectionIDHeader = "X-Connection-ID"

// Client talks to one comment server as one user.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. Live streams need a client
// without an overall timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%d %s: %s (%s)", e.Status, e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// Is maps the server's error codes back onto the model sentinels so callers
// can use errors.Is on either side of the wire.
func (e *APIError) Is(target error) bool {
	switch target {
	case model.ErrValidation:
		return e.Code == "VALIDATION_ERROR"
	case model.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case model.ErrForbidden:
		return e.Status == http.StatusForbidden
	case model.ErrParentNotFound:
		return e.Status == http.StatusNotFound && strings.Contains(strings.ToLower(e.Message), "parent")
	case model.ErrFileNotFound:
		return e.Status == http.StatusNotFound && strings.Contains(strings.ToLower(e.Message), "file")
	}
	return false
}

// Paginate fetches one newest-first page of a file's comments.
func (c *Client) Paginate(ctx context.Context, fileID string, page, limit int) (*model.Page, error) {
	q := url.Values{}
	q.Set("fileId", fileID)
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	req, err := c.newRequest(ctx, http.MethodGet, "/comments?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result model.Page
	if err := c.do(req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Create posts a comment. connectionID is the caller's live connection id
// (empty if it has none) so the server does not echo the comment back to it.
func (c *Client) Create(ctx context.Context, connectionID string, in model.CreateCommentRequest) (*model.Comment, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode comment: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/comments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if connectionID != "" {
		req.Header.Set(ConnectionIDHeader, connectionID)
	}

	var comment model.Comment
	if err := c.do(req, http.StatusCreated, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, wantStatus int, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"error"`
	}
	apiErr := &APIError{Status: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}

	apiErr.Code = envelope.Error.Code
	apiErr.Message = envelope.Error.Message
	apiErr.Field = envelope.Error.Field
	return apiErr
}

// IsRetryable reports whether err is a transient server or transport failure.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
