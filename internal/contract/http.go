package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// HTTP is a client for the contract twin's /contract API.
type HTTP struct {
	base   string
	http   *http.Client
	mu     sync.Mutex
	addr   string
	loaded bool
}

// NewHTTP creates a client for the twin at cfg.URL. The timeout defaults
// to 5 seconds.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, errors.New("http contract: url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("http contract: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTP{
		base: strings.TrimRight(cfg.URL, "/") + "/contract",
		http: &http.Client{Timeout: timeout},
	}, nil
}

// IsAvailable calls GET /contract/available. A twin answering 503 is
// unavailable; one that cannot be reached is reported as an error.
func (c *HTTP) IsAvailable(ctx context.Context) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/available", nil, &resp)
	if errors.Is(err, ErrUnavailable) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return resp.Available, nil
}

// GetData calls GET /contract/data/{key}.
func (c *HTTP) GetData(ctx context.Context, key string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, dataPath(key), nil, "")
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

// SetData calls PUT /contract/data/{key} with the raw value.
func (c *HTTP) SetData(ctx context.Context, key string, value []byte) (Tx, error) {
	body, err := c.do(ctx, http.MethodPut, dataPath(key), value, "application/octet-stream")
	if err != nil {
		return Tx{}, err
	}
	var tx Tx
	if err := json.Unmarshal(body, &tx); err != nil {
		return Tx{}, fmt.Errorf("http contract: decode receipt: %w", err)
	}
	return tx, nil
}

// SetMany calls POST /contract/batch.
func (c *HTTP) SetMany(ctx context.Context, entries map[string][]byte) (Tx, error) {
	var tx Tx
	req := map[string]any{"entries": entries}
	if err := c.doJSON(ctx, http.MethodPost, "/batch", req, &tx); err != nil {
		return Tx{}, err
	}
	return tx, nil
}

// Keys calls GET /contract/keys.
func (c *HTTP) Keys(ctx context.Context, prefix string) ([]string, error) {
	var resp struct {
		Keys []string `json:"keys"`
	}
	path := "/keys?prefix=" + url.QueryEscape(prefix)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// Address returns the twin's contract address, fetched once from
// GET /contract.
func (c *HTTP) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.addr
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.http.Timeout)
	defer cancel()
	var info struct {
		Address string `json:"address"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/", nil, &info); err != nil {
		return ""
	}
	c.addr, c.loaded = info.Address, true
	return c.addr
}

func dataPath(key string) string {
	return "/data/" + url.PathEscape(key)
}

func (c *HTTP) doJSON(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("http contract: encode: %w", err)
		}
	}
	body, err := c.do(ctx, method, path, payload, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("http contract: decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTP) do(ctx context.Context, method, path string, payload []byte, contentType string) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("http contract: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http contract: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("http contract: read %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("http contract: %s %s: %w", method, path, ErrUnavailable)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("http contract: %s %s: status %d: %s", method, path, resp.StatusCode, errorMessage(body))
	}
	return body, nil
}

// errorMessage extracts error.message from a twin error envelope.
func errorMessage(body []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(body))
}
