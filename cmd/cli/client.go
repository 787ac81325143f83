package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/api"
)

// client talks to the scheduler control API
type client struct {
	baseURL   string
	apiKey    string
	scheduler string
	http      *http.Client
}

func newClient(baseURL, apiKey, scheduler string, timeout time.Duration) *client {
	return &client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		scheduler: scheduler,
		http:      &http.Client{Timeout: timeout},
	}
}

// path prefixes p with the scheduler instance when one is selected
func (c *client) path(p string) string {
	if c.scheduler == "" {
		return "/api/v1" + p
	}
	return "/api/v1/schedulers/" + url.PathEscape(c.scheduler) + p
}

// do sends the request and returns the data of a successful envelope
func (c *client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env api.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}

	if !env.Success {
		if len(env.Details) > 0 && string(env.Details) != "null" {
			return nil, fmt.Errorf("%s (status %d): %s", env.Error, resp.StatusCode, env.Details)
		}
		return nil, fmt.Errorf("%s (status %d)", env.Error, resp.StatusCode)
	}

	return env.Data, nil
}
