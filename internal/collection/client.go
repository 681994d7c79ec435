package collection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mediastore/mediastore/internal/auth"

	mserr "github.com/mediastore/mediastore/internal/errors"
)

// Client talks to the collection API. It is stateless with respect to
// identity: every call forwards the caller-supplied credentials.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a collection API client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithHTTP creates a client with a custom http.Client, used in tests.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// GetMediafile fetches a mediafile record by id. A 404 yields
// errors.ErrNotFound so callers can branch on absence.
func (c *Client) GetMediafile(ctx context.Context, creds auth.Credentials, id string) (*Mediafile, error) {
	var mf Mediafile
	if err := c.do(ctx, creds, http.MethodGet, "/mediafiles/"+id, nil, &mf); err != nil {
		return nil, err
	}
	return &mf, nil
}

// UpdateMediafile replaces the full record (PUT).
func (c *Client) UpdateMediafile(ctx context.Context, creds auth.Credentials, mf *Mediafile) error {
	return c.do(ctx, creds, http.MethodPut, "/mediafiles/"+mf.ID, mf, nil)
}

// PatchMediafile applies a partial update to the record with the given id.
func (c *Client) PatchMediafile(ctx context.Context, creds auth.Credentials, id string, fields map[string]any) error {
	return c.do(ctx, creds, http.MethodPatch, "/mediafiles/"+id, fields, nil)
}

// DeleteMediafile removes the record with the given id.
func (c *Client) DeleteMediafile(ctx context.Context, creds auth.Credentials, id string) error {
	return c.do(ctx, creds, http.MethodDelete, "/mediafiles/"+id, nil, nil)
}

// GetTicket fetches an upload/download ticket by id.
func (c *Client) GetTicket(ctx context.Context, creds auth.Credentials, id string) (*Ticket, error) {
	var t Ticket
	if err := c.do(ctx, creds, http.MethodGet, "/tickets/"+id, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Ping probes the collection service, used by the external health check.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: collection service unreachable: %v", mserr.ErrUpstreamService, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 500 {
		return mserr.ErrUpstreamService.WithMessagef("collection service unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// do performs one request against the collection API, encoding body as JSON
// when non-nil and decoding the response into out when non-nil. 404 maps to
// errors.ErrNotFound; any other non-2xx maps to errors.ErrUpstreamService.
func (c *Client) do(ctx context.Context, creds auth.Credentials, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	creds.Apply(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", mserr.ErrUpstreamService, method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return mserr.ErrNotFound.WithMessagef("%s %s: not found", method, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return mserr.ErrUpstreamService.WithMessagef("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
