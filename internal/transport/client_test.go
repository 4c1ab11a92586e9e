package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTransport_Do(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected method POST, got %s", r.Method)
		}
		if r.URL.Path != "/health" {
			t.Errorf("Expected path /health, got %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Request"); got != "request" {
			t.Errorf("Expected X-Request header, got %q", got)
		}
		if got := r.Header.Get("X-Default"); got != "default" {
			t.Errorf("Expected X-Default header, got %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "surge-test" {
			t.Errorf("Expected User-Agent surge-test, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "surge-test"
	cfg.Headers = map[string]string{"X-Default": "default"}
	tr := NewHTTPTransport(cfg)
	defer tr.CloseIdleConnections()

	resp, err := tr.Do(context.Background(), &Request{
		Method:  "post",
		URL:     server.URL + "/health",
		Headers: map[string]string{"X-Request": "request"},
		Body:    []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	if resp.BodyString() != `{"status":"ok"}` {
		t.Errorf("Body = %q", resp.BodyString())
	}
	if resp.Header("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", resp.Header("Content-Type"))
	}
	if resp.Latency <= 0 {
		t.Errorf("Latency = %s, want > 0", resp.Latency)
	}
	if !resp.IsSuccess() {
		t.Error("IsSuccess() = false, want true")
	}

	var body map[string]string
	if err := resp.JSON(&body); err != nil || body["status"] != "ok" {
		t.Errorf("JSON() = %v, %v", body, err)
	}
}

func TestHTTPTransport_RequestHeaderWinsOverDefault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Header.Get("X-Mode")))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Headers = map[string]string{"X-Mode": "default"}
	tr := NewHTTPTransport(cfg)

	resp, err := tr.Do(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL,
		Headers: map[string]string{"X-Mode": "override"},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.BodyString() != "override" {
		t.Errorf("X-Mode = %q, want override", resp.BodyString())
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	tr := NewHTTPTransport(DefaultConfig())

	_, err := tr.Do(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL,
		Timeout: 20 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("Do() expected timeout error, got nil")
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Do() error = %T, want *RequestError", err)
	}
	if reqErr.Kind != KindTimeout {
		t.Errorf("Kind = %s, want %s", reqErr.Kind, KindTimeout)
	}
}

func TestHTTPTransport_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	tr := NewHTTPTransport(DefaultConfig())
	_, err := tr.Do(context.Background(), &Request{Method: "GET", URL: addr})
	if err == nil {
		t.Fatal("Do() expected error for closed server")
	}
	if kind := Classify(err); kind != KindRefused {
		t.Errorf("Classify() = %s, want %s", kind, KindRefused)
	}
}

func TestHTTPTransport_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	tr := NewHTTPTransport(DefaultConfig())
	_, err := tr.Do(ctx, &Request{Method: "GET", URL: server.URL})
	if kind := Classify(err); kind != KindCanceled {
		t.Errorf("Classify() = %s, want %s (err=%v)", kind, KindCanceled, err)
	}
}

func TestHTTPTransport_MalformedRequest(t *testing.T) {
	tr := NewHTTPTransport(DefaultConfig())

	tests := []struct {
		name string
		req  *Request
	}{
		{"bad method", &Request{Method: "FETCH", URL: "http://example.com"}},
		{"bad scheme", &Request{Method: "GET", URL: "ftp://example.com"}},
		{"missing host", &Request{Method: "GET", URL: "http:///path"}},
		{"unparseable", &Request{Method: "GET", URL: "http://[::1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tr.Do(context.Background(), tt.req)
			if !errors.Is(err, ErrMalformedRequest) {
				t.Fatalf("Do() error = %v, want ErrMalformedRequest", err)
			}
			var reqErr *RequestError
			if errors.As(err, &reqErr) {
				t.Error("malformed request must not be a *RequestError")
			}
			if Classify(err) != KindMalformed {
				t.Errorf("Classify() = %s, want %s", Classify(err), KindMalformed)
			}
		})
	}
}

func TestRequest_MetricName(t *testing.T) {
	r := &Request{Method: "get", URL: "http://example.com/health"}
	if got := r.MetricName(); got != "GET http://example.com/health" {
		t.Errorf("MetricName() = %q", got)
	}

	r.Name = "health"
	if got := r.MetricName(); got != "health" {
		t.Errorf("MetricName() = %q, want health", got)
	}
}

func TestRequest_Clone(t *testing.T) {
	r := &Request{
		Method:  "POST",
		URL:     "http://example.com",
		Headers: map[string]string{"A": "1"},
		Body:    []byte("body"),
	}
	c := r.Clone()
	c.Headers["A"] = "2"
	c.Body[0] = 'X'

	if r.Headers["A"] != "1" || !strings.HasPrefix(string(r.Body), "body") {
		t.Error("Clone() shares state with the original")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{context.Canceled, KindCanceled},
		{context.DeadlineExceeded, KindTimeout},
		{&RequestError{Kind: KindDNS, Err: errors.New("x")}, KindDNS},
		{errors.New("mystery"), KindUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
