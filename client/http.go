package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// HTTPTransportConfig configures an HTTPTransport.
type HTTPTransportConfig struct {
	// Client sends the requests. Default: a client with no overall timeout;
	// attempts are bounded by their context.
	Client *http.Client

	// BaseURL is prefixed to request URLs that start with "/".
	BaseURL string

	// UserAgent is set when the request carries none.
	UserAgent string

	// MaxBodyBytes caps buffered response bodies.
	// Default: 10 MiB
	MaxBodyBytes int64
}

// HTTPTransport is a Transport over net/http.
type HTTPTransport struct {
	config HTTPTransportConfig
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport(config HTTPTransportConfig) *HTTPTransport {
	if config.Client == nil {
		config.Client = &http.Client{}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 10 << 20
	}
	return &HTTPTransport{config: config}
}

// Send performs one HTTP round trip.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	url := req.URL
	if t.config.BaseURL != "" && len(url) > 0 && url[0] == '/' {
		url = t.config.BaseURL + url
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("client: build request: %w", err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if t.config.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.config.UserAgent)
	}

	httpResp, err := t.config.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", req.Method, url, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
	}
	if req.Stream && httpResp.StatusCode < http.StatusMultipleChoices {
		resp.Stream = httpResp.Body
		return resp, nil
	}

	defer httpResp.Body.Close()
	resp.Body, err = io.ReadAll(io.LimitReader(httpResp.Body, t.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("client: read %s %s: %w", req.Method, url, err)
	}
	return resp, nil
}
