// Package supabase talks to a Supabase project over its REST endpoints:
// GoTrue admin for identities, PostgREST for profile lookups and Storage for objects.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a thin HTTP client authenticated with the service role key.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New creates a client for the project at url.
func New(url, serviceKey string, opts ...Option) *Client {
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}
	c := &Client{
		baseURL:    strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase: request failed with status %d: %s", e.Status, e.Body)
}

// makeRequest sends body (JSON-encoded unless it is already raw bytes) and returns the response body.
func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body any, headers map[string]string) ([]byte, error) {
	var (
		reqBody     io.Reader
		contentType = "application/json"
	)
	switch b := body.(type) {
	case nil:
	case rawBody:
		reqBody = bytes.NewReader(b.data)
		contentType = b.contentType
	default:
		jsonData, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	if reqBody != nil {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

type rawBody struct {
	data        []byte
	contentType string
}
