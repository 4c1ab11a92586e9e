// Package config provides configuration parsing and validation for load
// test definitions.
package config

import (
	"time"
)

// TestConfig is the root configuration for a load test.
//
// Example YAML:
//
//	name: "health ramp"
//	settings:
//	  baseUrl: "http://localhost:8080"
//	  timeout: 10s
//	stages:
//	  - duration: 30s
//	    target: 500
//	  - duration: 90s
//	    target: 500
//	  - duration: 20s
//	    target: 0
//	scenario:
//	  requests:
//	    - name: health
//	      method: GET
//	      url: "{{baseUrl}}/health"
//	      checks:
//	        - type: status
//	          value: "200"
//	  pacing:
//	    type: constant
//	    duration: 1s
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings contains transport settings
	Settings GlobalSettings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are global variables available to every request
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Stages is the load profile: the virtual user target over time
	Stages []StageConfig `json:"stages" yaml:"stages"`

	// Scenario is what every virtual user runs per iteration
	Scenario ScenarioConfig `json:"scenario" yaml:"scenario"`

	// Thresholds define pass/fail criteria for metrics
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Options for test execution
	Options *ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}

// GlobalSettings contains HTTP transport settings.
type GlobalSettings struct {
	// BaseURL is exposed to requests as the {{baseUrl}} variable
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the default HTTP request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxConnectionsPerHost limits connections per host (0 = unlimited)
	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	// MaxIdleConnsPerHost limits idle connections per host
	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// DisableKeepAlives opens a new connection per request
	DisableKeepAlives bool `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// StageConfig defines a single stage of the load profile.
type StageConfig struct {
	// Duration of this stage (e.g., "30s", "2m")
	Duration string `json:"duration" yaml:"duration"`

	// Target virtual user count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ScenarioConfig defines the requests of one iteration.
type ScenarioConfig struct {
	// Name of the scenario
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Requests are executed in order every iteration
	Requests []RequestConfig `json:"requests" yaml:"requests"`

	// Pacing controls the pause after every iteration
	Pacing *PacingConfig `json:"pacing,omitempty" yaml:"pacing,omitempty"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used in metrics)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method (GET, POST, PUT, DELETE, etc.)
	Method string `json:"method" yaml:"method"`

	// URL is the request URL (supports variable substitution)
	URL string `json:"url" yaml:"url"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is the request body (supports variable substitution)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Timeout is request-specific timeout (overrides global)
	Timeout string `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ThinkTime is wait time after this request, skipped after the last one
	ThinkTime string `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// Extract defines variable extraction from response
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`

	// Checks are named assertions recorded per request
	Checks []CheckConfig `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// PacingConfig controls pacing between iterations.
type PacingConfig struct {
	// Type is the pacing strategy: "none", "constant", "random"
	Type string `json:"type" yaml:"type"`

	// Duration is the wait time for constant pacing
	Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Min is the minimum wait time for random pacing
	Min string `json:"min,omitempty" yaml:"min,omitempty"`

	// Max is the maximum wait time for random pacing
	Max string `json:"max,omitempty" yaml:"max,omitempty"`
}

// ExtractConfig defines how to extract variables from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source is where to extract from: "body", "header", "status"
	Source string `json:"source" yaml:"source"`

	// Path is the header name, or a JSON path for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Regex is an optional regex pattern for body extraction
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`
}

// CheckConfig defines a named response check.
type CheckConfig struct {
	// Name identifies the check in results; derived from the check if empty
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Type is the check type: "status", "header", "body", "duration", "json", "schema"
	Type string `json:"type" yaml:"type"`

	// Condition is the comparison: "eq", "ne", "gt", "lt", "gte", "lte", "contains", "matches", "exists"
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Value is the expected value (a JSON schema document for "schema")
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Path is the header name or JSON path
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the test.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"] (less than 1% failures)
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`

	// Checks thresholds for the check pass rate
	// e.g., ["rate > 0.99"]
	Checks []string `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// IsEmpty reports whether no threshold is configured.
func (t *ThresholdsConfig) IsEmpty() bool {
	return t == nil ||
		len(t.HTTPReqDuration)+len(t.HTTPReqFailed)+len(t.HTTPReqs)+len(t.Checks) == 0
}

// ExecutionOptions controls test execution behavior.
type ExecutionOptions struct {
	// Tick is how often the virtual user target is recomputed
	Tick Duration `json:"tick,omitempty" yaml:"tick,omitempty"`

	// GracefulStop is how long to wait for iterations to finish at the end
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}

	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
