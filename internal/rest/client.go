// Package rest is the request client for the backend's non-streaming API.
// Every response is wrapped in a {code, message, data} envelope.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client sends JSON requests and unwraps the response envelope.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *slog.Logger
}

// New creates a client for baseURL. tokens may be nil.
func New(baseURL string, tokens TokenSource) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		Tokens:     tokens,
		Logger:     slog.Default(),
	}
}

type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func successCode(code int) bool {
	return code == 0 || code == http.StatusOK
}

// Get is shorthand for Do with GET.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post is shorthand for Do with POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put is shorthand for Do with PUT.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Patch is shorthand for Do with PATCH.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete is shorthand for Do with DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends a request and decodes the envelope's data into out (when out is
// non-nil). Idempotent requests are retried once after a 5xx response or a
// transport failure. A non-success code yields *APIError and leaves out
// untouched.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	target, err := c.resolve(path)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	attempts := 1
	if idempotent(method) {
		attempts = 2
	}

	var status int
	var raw []byte
	for i := 0; i < attempts; i++ {
		status, raw, err = c.send(ctx, method, target, payload)
		retryable := err != nil || status >= http.StatusInternalServerError
		if !retryable || i == attempts-1 || ctx.Err() != nil {
			break
		}
		c.logger().Warn("retrying request", "method", method, "url", target, "status", status, "error", err)
	}
	if err != nil {
		return err
	}
	return decode(status, raw, out)
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Tokens != nil {
		token, err := c.Tokens.Token()
		if err != nil {
			return 0, nil, fmt.Errorf("failed to load token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger().Debug("request done", "method", method, "url", target, "status", resp.StatusCode)
	return resp.StatusCode, raw, nil
}

func decode(status int, raw []byte, out any) error {
	var env envelope
	decodeErr := json.Unmarshal(raw, &env)
	hasEnvelope := decodeErr == nil && env.Code != nil

	if status < 200 || status > 299 {
		if hasEnvelope && !successCode(*env.Code) {
			return &APIError{Code: *env.Code, Message: env.Message, Status: status}
		}
		return &APIError{Code: status, Message: http.StatusText(status), Status: status}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if !hasEnvelope {
		if decodeErr == nil {
			decodeErr = errors.New("missing code")
		}
		return fmt.Errorf("failed to decode response envelope: %w", decodeErr)
	}
	if !successCode(*env.Code) {
		return &APIError{Code: *env.Code, Message: env.Message, Status: status}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

func (c *Client) resolve(path string) (string, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	if c.BaseURL == "" {
		return "", fmt.Errorf("relative path %q without base URL", path)
	}
	base, err := url.Parse(strings.TrimRight(c.BaseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
