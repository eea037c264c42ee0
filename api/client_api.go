// Package api - Endpunkte des Clients.

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Import asks the server to import a file from its pending area.
func (c *Client) Import(ctx context.Context, req *ImportRequest) (*ImportResponse, error) {
	var resp ImportResponse
	if err := c.do(ctx, http.MethodPost, "/api/import", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Formats lists the image formats the server recognizes, in detection order.
func (c *Client) Formats(ctx context.Context) (*FormatsResponse, error) {
	var resp FormatsResponse
	if err := c.do(ctx, http.MethodGet, "/api/formats", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Imports lists recorded imports, newest first. A limit of 0 lists all.
func (c *Client) Imports(ctx context.Context, limit int) (*ImportsResponse, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var resp ImportsResponse
	if err := c.do(ctx, http.MethodGet, "/api/imports", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events lists the lifecycle events recorded for one import.
func (c *Client) Events(ctx context.Context, id string) (*EventsResponse, error) {
	var resp EventsResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/imports/%s/events", url.PathEscape(id)), nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil, nil)
}

// Version returns the server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
