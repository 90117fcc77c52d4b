// Package api is the JSON client consumers use for every back-office
// resource. Requests go through the authenticated transport, and outcomes
// are mapped onto the authhttp error taxonomy.
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
	"strings"
	"time"

	"github.com/Skotchmaster/laundry_pos/internal/authhttp"
)

const DefaultBaseURL = "http://127.0.0.1:8000/api/"

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New builds a client whose requests go through transport.
func New(baseURL string, transport http.RoundTripper, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// Host is the host[:port] requests are sent to.
func (c *Client) Host() string { return c.baseURL.Host }

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, nil, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil, out)
}

// Do sends one logical request. body is JSON-encoded unless it is a
// json.RawMessage; out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return fmt.Errorf("parse path %q: %w", path, err)
	}
	target := c.baseURL.ResolveReference(rel)
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, ok := body.(json.RawMessage)
		if !ok {
			if data, err = json.Marshal(body); err != nil {
				return fmt.Errorf("encode body: %w", err)
			}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", authhttp.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return authhttp.ErrAuthorizationFailed
	case resp.StatusCode >= http.StatusBadRequest:
		return &authhttp.RequestFailedError{Status: resp.StatusCode, Body: data}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classify keeps taxonomy errors raised by the transport and reports
// everything else as a network failure.
func classify(err error) error {
	for _, known := range []error{authhttp.ErrAuthorizationFailed, authhttp.ErrRefreshFailed, authhttp.ErrNoRefreshToken} {
		if errors.Is(err, known) {
			return unwrapURLError(err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", authhttp.ErrNetwork, err)
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
