package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"
)

// Transport issues a request and returns the fully read response.
//
// Build failures are returned wrapping ErrMalformedRequest; every other
// failure is a *RequestError.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Config contains HTTP client configuration.
type Config struct {
	// Timeout for a whole request including reading the body
	Timeout time.Duration

	// MaxIdleConns controls the maximum number of idle connections
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections per host
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total connections per host (0 = unlimited)
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections are kept alive
	IdleConnTimeout time.Duration

	DisableKeepAlives  bool
	DisableCompression bool
	InsecureSkipVerify bool

	// UserAgent is set on requests that do not carry their own
	UserAgent string

	// Headers are applied to every request; request headers win
	Headers map[string]string
}

// DefaultConfig returns sensible defaults for load testing.
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		UserAgent:           "surge/" + Version,
	}
}

// Version is reported in the default User-Agent.
var Version = "0.1.0"

// HTTPTransport is a Transport backed by a shared *http.Client.
type HTTPTransport struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	headers   map[string]string
}

// NewHTTPTransport creates a transport with a pooled connection set.
func NewHTTPTransport(cfg Config) *HTTPTransport {
	rt := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
		DisableCompression:  cfg.DisableCompression,
		ForceAttemptHTTP2:   true,
	}
	if cfg.InsecureSkipVerify {
		rt.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via settings
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &HTTPTransport{
		// Per-request timeouts are applied through the context so that
		// Request.Timeout can override the default.
		client:    &http.Client{Transport: rt},
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		headers:   headers,
	}
}

// Do executes the request and reads the whole body.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	timeout := t.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := req.Build(ctx)
	if err != nil {
		return nil, err
	}

	for key, value := range t.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}
	if t.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	// Dial callbacks may run on other goroutines.
	var mu sync.Mutex
	var timing TimingInfo
	var dnsStart, connectStart, tlsStart time.Time
	start := time.Now()
	lastPhaseEnd := start

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			mu.Lock()
			defer mu.Unlock()
			timing.ConnReused = info.Reused
		},
		DNSStart: func(httptrace.DNSStartInfo) {
			mu.Lock()
			defer mu.Unlock()
			dnsStart = time.Now()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			mu.Lock()
			defer mu.Unlock()
			lastPhaseEnd = time.Now()
			timing.DNSLookup = lastPhaseEnd.Sub(dnsStart)
		},
		ConnectStart: func(string, string) {
			mu.Lock()
			defer mu.Unlock()
			connectStart = time.Now()
		},
		ConnectDone: func(_, _ string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				lastPhaseEnd = time.Now()
				timing.TCPConnect = lastPhaseEnd.Sub(connectStart)
			}
		},
		TLSHandshakeStart: func() {
			mu.Lock()
			defer mu.Unlock()
			tlsStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				lastPhaseEnd = time.Now()
				timing.TLSHandshake = lastPhaseEnd.Sub(tlsStart)
			}
		},
		GotFirstResponseByte: func() {
			mu.Lock()
			defer mu.Unlock()
			timing.TimeToFirstByte = time.Since(lastPhaseEnd)
		},
	}
	httpReq = httpReq.WithContext(httptrace.WithClientTrace(ctx, trace))

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, newRequestError(err)
	}
	defer httpResp.Body.Close()

	transferStart := time.Now()
	body, err := io.ReadAll(httpResp.Body)

	mu.Lock()
	timing.ContentTransfer = time.Since(transferStart)
	final := timing
	mu.Unlock()

	if err != nil {
		return nil, &RequestError{Kind: readErrorKind(err), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Headers:    httpResp.Header,
		Body:       body,
		Latency:    time.Since(start),
		Timing:     final,
	}, nil
}

// CloseIdleConnections releases pooled connections at the end of a run.
func (t *HTTPTransport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

func readErrorKind(err error) ErrorKind {
	if kind := Classify(err); kind != KindUnknown {
		return kind
	}
	return KindBodyRead
}

var _ Transport = (*HTTPTransport)(nil)
