// Package proxy relays open-access lookups from the web app to the resolver
// function so browsers never hold the function credentials.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FunctionPath is where the resolver function is mounted under the base URL.
const FunctionPath = "/functions/v1/process-article"

var ErrNotConfigured = errors.New("resolver base URL or access key not configured")

// Response is the upstream answer, untouched.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

type Client struct {
	baseURL string
	key     string
	http    *http.Client
}

// NewClient never fails; a missing base URL or key surfaces on Forward.
func NewClient(baseURL, key string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    &http.Client{Timeout: timeout},
	}
}

// Configured reports whether Forward can be attempted.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.key != ""
}

// Forward POSTs body verbatim to the resolver function. The key goes out as
// a bearer token and as the apikey header the function gateway checks.
func (c *Client) Forward(ctx context.Context, body []byte) (*Response, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+FunctionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("apikey", c.key)
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
