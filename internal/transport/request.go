package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMalformedRequest marks a request that could not be constructed. It is a
// scenario defect, not a network failure.
var ErrMalformedRequest = errors.New("malformed request")

// Request describes one HTTP request. A Request is treated as immutable once
// passed to a Transport.
type Request struct {
	// Name is used as the metrics key; defaults to "METHOD URL".
	Name    string
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte

	// Timeout overrides the transport timeout when > 0.
	Timeout time.Duration
}

// MetricName returns the name used when aggregating latency per request.
func (r *Request) MetricName() string {
	if r.Name != "" {
		return r.Name
	}
	return strings.ToUpper(r.Method) + " " + r.URL
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	if r.Headers != nil {
		c.Headers = make(map[string]string, len(r.Headers))
		for k, v := range r.Headers {
			c.Headers[k] = v
		}
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Build converts the request into an *http.Request bound to ctx.
// Construction failures wrap ErrMalformedRequest.
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !validMethod(method) {
		return nil, fmt.Errorf("%w: invalid method %q", ErrMalformedRequest, r.Method)
	}

	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported URL scheme %q in %q", ErrMalformedRequest, u.Scheme, r.URL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrMalformedRequest, r.URL)
	}

	var body io.Reader
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}
	return req, nil
}

func validMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete,
		http.MethodPatch, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
