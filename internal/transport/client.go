// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultMaxBody matches the response buffer of the logger firmware.
	DefaultMaxBody = 20480
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrTransport wraps every failure to obtain a complete response:
	// connection errors, timeouts and oversized bodies.
	ErrTransport = errors.New("transport failed")

	ErrBodyTooLarge = errors.New("response body too large")
)

// Response is a completed HTTP exchange.
type Response struct {
	Status int
	Body   []byte
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client issues the GET and POST requests of one duty cycle. Every call
// carries its own timeout; a timeout is an ErrTransport, never retried here.
type Client struct {
	http    *http.Client
	maxBody int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithMaxBody limits how much of a response body is read.
func WithMaxBody(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// NewClient creates a new Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		maxBody: DefaultMaxBody,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches url.
func (c *Client) Get(ctx context.Context, url string, timeout time.Duration) (Response, error) {
	return c.do(ctx, http.MethodGet, url, nil, nil, timeout)
}

// Post sends body to url with the given headers.
func (c *Client) Post(ctx context.Context, url string, headers map[string]string, body []byte, timeout time.Duration) (Response, error) {
	return c.do(ctx, http.MethodPost, url, headers, body, timeout)
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return Response{Status: resp.StatusCode}, fmt.Errorf("%w: read %s body: %v", ErrTransport, url, err)
	}
	if int64(len(data)) > c.maxBody {
		return Response{Status: resp.StatusCode}, fmt.Errorf("%w: %w: %s exceeds %d bytes", ErrTransport, ErrBodyTooLarge, url, c.maxBody)
	}
	return Response{Status: resp.StatusCode, Body: data}, nil
}
