package api

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

	"github.com/treykane/devdeck/internal/healthcheck"
	"github.com/treykane/devdeck/internal/model"
)

// Client talks to a running `devdeck serve`.
type Client struct {
	baseURL string
	http    *http.Client
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the API listening on addr (host:port or a
// full http URL).
func NewClient(addr string) *Client {
	base := addr
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    &http.Client{Timeout: 35 * time.Second},
	}
}

// ListTunnels returns the supervisor's tunnel snapshot.
func (c *Client) ListTunnels(ctx context.Context) ([]model.TunnelStatus, error) {
	var out []model.TunnelStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/tunnels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Toggle switches a tunnel on or off.
func (c *Client) Toggle(ctx context.Context, name string, desired model.DesiredState) error {
	return c.do(ctx, http.MethodPut, "/api/v1/tunnels/"+url.PathEscape(name), ToggleRequest{State: desired}, nil)
}

// Extend adds tunnels and returns the new snapshot.
func (c *Client) Extend(ctx context.Context, specs []model.TunnelSpec) ([]model.TunnelStatus, error) {
	var out []model.TunnelStatus
	if err := c.do(ctx, http.MethodPost, "/api/v1/tunnels", specs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Healthchecks runs one round of healthchecks on the server.
func (c *Client) Healthchecks(ctx context.Context) ([]healthcheck.SectionResult, error) {
	var out []healthcheck.SectionResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/healthchecks", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("devdeck serve not reachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
