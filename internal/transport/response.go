package transport

import (
	"encoding/json"
	"net/http"
	"time"
)

// TimingInfo breaks a request's latency down into connection phases.
// Phases that did not happen (reused connection, plain HTTP) stay zero.
type TimingInfo struct {
	DNSLookup       time.Duration `json:"dnsLookup"`
	TCPConnect      time.Duration `json:"tcpConnect"`
	TLSHandshake    time.Duration `json:"tlsHandshake"`
	TimeToFirstByte time.Duration `json:"timeToFirstByte"`
	ContentTransfer time.Duration `json:"contentTransfer"`
	ConnReused      bool          `json:"connReused"`
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte

	// Latency covers the time from sending the request to reading the last
	// body byte.
	Latency time.Duration
	Timing  TimingInfo
}

// Header returns the first value of the named header.
func (r *Response) Header(name string) string {
	return r.Headers.Get(name)
}

// BodyString returns the body as a string.
func (r *Response) BodyString() string {
	return string(r.Body)
}

// JSON unmarshals the body into v.
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// IsSuccess reports whether the status code is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
