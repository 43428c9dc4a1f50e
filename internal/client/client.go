// Package client talks to the /admin/* and /contract endpoints of a running
// contract twin.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// AdminClient talks to a twin's admin and contract control endpoints.
type AdminClient struct {
	base string
	http *http.Client
}

// New creates an AdminClient for the twin at baseURL with a 5-second
// timeout.
func New(baseURL string) *AdminClient {
	return &AdminClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Health checks GET /admin/health. Returns (ok, response body or error message).
func (c *AdminClient) Health(ctx context.Context) (bool, string) {
	body, status, err := c.do(ctx, http.MethodGet, "/admin/health", nil)
	if err != nil {
		return false, err.Error()
	}
	if status == http.StatusOK {
		return true, strings.TrimSpace(string(body))
	}
	return false, fmt.Sprintf("status %d: %s", status, body)
}

// Reset calls POST /admin/reset.
func (c *AdminClient) Reset(ctx context.Context) (string, error) {
	return c.expectOK(ctx, http.MethodPost, "/admin/reset", nil, "reset")
}

// Seed POSTs the contents of a JSON file to /admin/state.
func (c *AdminClient) Seed(ctx context.Context, filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("reading seed file: %w", err)
	}
	return c.expectOK(ctx, http.MethodPost, "/admin/state", data, "seed")
}

// State returns GET /admin/state.
func (c *AdminClient) State(ctx context.Context) (json.RawMessage, error) {
	body, err := c.expectOK(ctx, http.MethodGet, "/admin/state", nil, "state")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// SetAvailable pauses or resumes the contract via PUT /contract/availability.
func (c *AdminClient) SetAvailable(ctx context.Context, available bool) error {
	payload, _ := json.Marshal(map[string]bool{"available": available})
	_, err := c.expectOK(ctx, http.MethodPut, "/contract/availability", payload, "set availability")
	return err
}

func (c *AdminClient) expectOK(ctx context.Context, method, path string, payload []byte, op string) (string, error) {
	body, status, err := c.do(ctx, method, path, payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%s failed (status %d): %s", op, status, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *AdminClient) do(ctx context.Context, method, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return body, resp.StatusCode, nil
}
