package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var (
	validMethods = map[string]bool{
		"GET": true, "POST": true, "PUT": true, "DELETE": true,
		"PATCH": true, "HEAD": true, "OPTIONS": true,
	}
	validCheckTypes = map[string]bool{
		"status": true, "header": true, "body": true,
		"duration": true, "json": true, "schema": true,
	}
	validConditions = map[string]bool{
		"eq": true, "ne": true, "gt": true, "lt": true, "gte": true,
		"lte": true, "contains": true, "matches": true, "exists": true,
	}
	validSources = map[string]bool{
		"body": true, "header": true, "status": true,
	}

	placeholderPattern = regexp.MustCompile(`\{\{[^}]*\}\}`)
	thresholdPattern   = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)
)

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Stages) == 0 {
		errs.Add("stages", "at least one stage is required")
	}
	for i, stage := range c.Stages {
		validateStage(fmt.Sprintf("stages[%d]", i), &stage, errs)
	}

	validateScenario("scenario", &c.Scenario, errs)

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	validateSettings(&c.Settings, errs)

	if c.Options != nil {
		if c.Options.Tick < 0 {
			errs.Add("options.tick", "cannot be negative")
		}
		if c.Options.GracefulStop < 0 {
			errs.Add("options.gracefulStop", "cannot be negative")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateStage validates a single stage configuration.
func validateStage(prefix string, stage *StageConfig, errs *ValidationErrors) {
	if stage.Duration == "" {
		errs.Add(prefix+".duration", "duration is required")
	} else if d, err := ParseDurationString(stage.Duration); err != nil {
		errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
	} else if d <= 0 {
		errs.Add(prefix+".duration", "duration must be positive")
	}

	if stage.Target < 0 {
		errs.Add(prefix+".target", "target cannot be negative")
	}
}

// validateScenario validates the scenario section.
func validateScenario(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if len(sc.Requests) == 0 {
		errs.Add(prefix+".requests", "at least one request is required")
	}

	for i, req := range sc.Requests {
		validateRequest(fmt.Sprintf("%s.requests[%d]", prefix, i), &req, errs)
	}

	if sc.Pacing != nil {
		validatePacing(prefix+".pacing", sc.Pacing, errs)
	}
}

// validateRequest validates a single request configuration.
func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	method := strings.ToUpper(req.Method)
	if method != "" && !validMethods[method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
	}

	if req.URL == "" {
		errs.Add(prefix+".url", "url is required")
	} else {
		// Placeholders are resolved per iteration; validate the shape only.
		urlToCheck := placeholderPattern.ReplaceAllString(req.URL, "placeholder")
		if strings.HasPrefix(req.URL, "{{") {
			urlToCheck = "http://" + urlToCheck
		}
		if _, err := url.Parse(urlToCheck); err != nil {
			errs.Add(prefix+".url", fmt.Sprintf("invalid URL: %v", err))
		}
	}

	if req.Timeout != "" {
		if _, err := ParseDurationString(req.Timeout); err != nil {
			errs.Add(prefix+".timeout", fmt.Sprintf("invalid timeout: %v", err))
		}
	}

	if req.ThinkTime != "" {
		if _, err := ParseDurationString(req.ThinkTime); err != nil {
			errs.Add(prefix+".thinkTime", fmt.Sprintf("invalid thinkTime: %v", err))
		}
	}

	for i, extract := range req.Extract {
		validateExtract(fmt.Sprintf("%s.extract[%d]", prefix, i), &extract, errs)
	}

	for i, check := range req.Checks {
		validateCheck(fmt.Sprintf("%s.checks[%d]", prefix, i), &check, errs)
	}
}

// validatePacing validates pacing configuration.
func validatePacing(prefix string, pacing *PacingConfig, errs *ValidationErrors) {
	validTypes := map[string]bool{
		"none": true, "constant": true, "random": true,
	}

	typ := strings.ToLower(pacing.Type)
	if !validTypes[typ] {
		errs.Add(prefix+".type", fmt.Sprintf("invalid pacing type: %s", pacing.Type))
	}

	switch typ {
	case "constant":
		if pacing.Duration == "" {
			errs.Add(prefix+".duration", "duration is required for constant pacing")
		} else if _, err := ParseDurationString(pacing.Duration); err != nil {
			errs.Add(prefix+".duration", fmt.Sprintf("invalid duration: %v", err))
		}

	case "random":
		if pacing.Min == "" {
			errs.Add(prefix+".min", "min is required for random pacing")
		} else if _, err := ParseDurationString(pacing.Min); err != nil {
			errs.Add(prefix+".min", fmt.Sprintf("invalid min: %v", err))
		}

		if pacing.Max == "" {
			errs.Add(prefix+".max", "max is required for random pacing")
		} else if _, err := ParseDurationString(pacing.Max); err != nil {
			errs.Add(prefix+".max", fmt.Sprintf("invalid max: %v", err))
		}

		if pacing.Min != "" && pacing.Max != "" {
			minDur, _ := ParseDurationString(pacing.Min)
			maxDur, _ := ParseDurationString(pacing.Max)
			if minDur > maxDur {
				errs.Add(prefix, "min must be less than or equal to max")
			}
		}
	}
}

// validateExtract validates an extract configuration.
func validateExtract(prefix string, extract *ExtractConfig, errs *ValidationErrors) {
	if extract.Name == "" {
		errs.Add(prefix+".name", "name is required")
	}

	if extract.Source == "" {
		errs.Add(prefix+".source", "source is required")
	} else if !validSources[extract.Source] {
		errs.Add(prefix+".source", fmt.Sprintf("invalid source: %s", extract.Source))
	}

	if extract.Source == "header" && extract.Path == "" {
		errs.Add(prefix+".path", "path is required for header extraction")
	}

	if extract.Regex != "" {
		if _, err := regexp.Compile(extract.Regex); err != nil {
			errs.Add(prefix+".regex", fmt.Sprintf("invalid regex: %v", err))
		}
	}
}

// validateCheck validates a check configuration.
func validateCheck(prefix string, check *CheckConfig, errs *ValidationErrors) {
	typ := strings.ToLower(check.Type)
	if typ == "" {
		errs.Add(prefix+".type", "type is required")
	} else if !validCheckTypes[typ] {
		errs.Add(prefix+".type", fmt.Sprintf("invalid check type: %s", check.Type))
	}

	if check.Condition != "" && !validConditions[strings.ToLower(check.Condition)] {
		errs.Add(prefix+".condition", fmt.Sprintf("invalid condition: %s", check.Condition))
	}

	if (typ == "header" || typ == "json") && check.Path == "" {
		errs.Add(prefix+".path", fmt.Sprintf("path is required for %s checks", typ))
	}

	if typ == "duration" {
		if _, err := ParseDurationString(check.Value); err != nil || check.Value == "" {
			errs.Add(prefix+".value", "a duration value is required for duration checks")
		}
	}

	if strings.ToLower(check.Condition) == "matches" {
		if _, err := regexp.Compile(check.Value); err != nil {
			errs.Add(prefix+".value", fmt.Sprintf("invalid pattern: %v", err))
		}
	}
}

// validateThresholds validates threshold configuration.
func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	durationMetrics := []string{"p50", "p90", "p95", "p99", "min", "max", "avg", "med"}

	for i, threshold := range t.HTTPReqDuration {
		if err := validateThresholdExpression(threshold, durationMetrics); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_duration[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqFailed {
		if err := validateThresholdExpression(threshold, []string{"rate"}); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_req_failed[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.HTTPReqs {
		if err := validateThresholdExpression(threshold, []string{"count", "rate"}); err != nil {
			errs.Add(fmt.Sprintf("thresholds.http_reqs[%d]", i), err.Error())
		}
	}

	for i, threshold := range t.Checks {
		if err := validateThresholdExpression(threshold, []string{"rate"}); err != nil {
			errs.Add(fmt.Sprintf("thresholds.checks[%d]", i), err.Error())
		}
	}
}

// validateThresholdExpression validates a threshold expression such as
// "p95 < 500ms" or "rate < 0.01".
func validateThresholdExpression(expr string, metrics []string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("threshold expression cannot be empty")
	}

	m := thresholdPattern.FindStringSubmatch(expr)
	if len(m) != 4 {
		return fmt.Errorf("threshold must look like '<metric> <operator> <value>'")
	}

	found := false
	for _, metric := range metrics {
		if m[1] == metric {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown metric %q (valid: %s)", m[1], strings.Join(metrics, ", "))
	}

	switch m[2] {
	case "<", ">", "<=", ">=", "==", "!=":
	default:
		return fmt.Errorf("invalid comparison operator %q (valid: <, >, <=, >=, ==, !=)", m[2])
	}

	return nil
}

// validateSettings validates global settings.
func validateSettings(s *GlobalSettings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid URL: %v", err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs.Add("settings.baseUrl", "scheme must be http or https")
		}
	}

	if s.Timeout < 0 {
		errs.Add("settings.timeout", "cannot be negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "cannot be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "cannot be negative")
	}
}
