package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/surge/internal/scenario"
	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/transport"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultTick         = 100 * time.Millisecond
	DefaultGracefulStop = 30 * time.Second
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Returns the parsed TestConfig or an error if parsing fails.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults fills in unset fields.
func ApplyDefaults(config *TestConfig) {
	if config.Name == "" {
		config.Name = "load test"
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(DefaultTimeout)
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}

	if config.Options == nil {
		config.Options = &ExecutionOptions{}
	}
	if config.Options.Tick == 0 {
		config.Options.Tick = Duration(DefaultTick)
	}
	if config.Options.GracefulStop == 0 {
		config.Options.GracefulStop = Duration(DefaultGracefulStop)
	}

	if config.Scenario.Name == "" {
		config.Scenario.Name = config.Name
	}
	for i := range config.Scenario.Requests {
		req := &config.Scenario.Requests[i]
		if req.Method == "" {
			req.Method = "GET"
		}
		req.Method = strings.ToUpper(req.Method)
		if req.Name == "" {
			req.Name = fmt.Sprintf("request-%d", i+1)
		}
	}

	for i := range config.Stages {
		if config.Stages[i].Name == "" {
			config.Stages[i].Name = fmt.Sprintf("stage-%d", i+1)
		}
	}
}

// ParseStages parses stages from the CLI shorthand "30s:10,2m:10,30s:0".
func ParseStages(stagesStr string) ([]StageConfig, error) {
	var stages []StageConfig

	parts := strings.Split(stagesStr, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		d, err := ParseDurationString(durationStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("stage %d: duration must be positive", i+1)
		}

		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}
		if target < 0 {
			return nil, fmt.Errorf("stage %d: target cannot be negative", i+1)
		}

		stages = append(stages, StageConfig{
			Duration: durationStr,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}

// Schedule builds the stage schedule.
func (c *TestConfig) Schedule() (*schedule.Schedule, error) {
	stages := make([]schedule.Stage, 0, len(c.Stages))
	for i, sc := range c.Stages {
		d, err := ParseDurationString(sc.Duration)
		if err != nil {
			return nil, fmt.Errorf("stages[%d]: %w", i, err)
		}
		stages = append(stages, schedule.Stage{Duration: d, Target: sc.Target, Name: sc.Name})
	}
	return schedule.New(stages)
}

// TransportConfig converts the settings to an HTTP transport configuration.
func (c *TestConfig) TransportConfig() transport.Config {
	tc := transport.DefaultConfig()
	tc.Timeout = c.Settings.Timeout.GetDuration(DefaultTimeout)
	tc.MaxConnsPerHost = c.Settings.MaxConnectionsPerHost
	if c.Settings.MaxIdleConnsPerHost > 0 {
		tc.MaxIdleConnsPerHost = c.Settings.MaxIdleConnsPerHost
	}
	tc.InsecureSkipVerify = c.Settings.InsecureSkipVerify
	tc.DisableKeepAlives = c.Settings.DisableKeepAlives
	if c.Settings.UserAgent != "" {
		tc.UserAgent = c.Settings.UserAgent
	}
	if len(c.Settings.Headers) > 0 {
		tc.Headers = make(map[string]string, len(c.Settings.Headers))
		for k, v := range c.Settings.Headers {
			tc.Headers[k] = v
		}
	}
	return tc
}

// ScenarioSpec converts the scenario section into a declarative scenario
// spec. Settings.BaseURL is exposed as the baseUrl variable unless a
// variable of that name is set explicitly.
func (c *TestConfig) ScenarioSpec() (scenario.Spec, error) {
	spec := scenario.Spec{
		Name:      c.Scenario.Name,
		Variables: make(map[string]string, len(c.Variables)+1),
	}
	if c.Settings.BaseURL != "" {
		spec.Variables["baseUrl"] = strings.TrimRight(c.Settings.BaseURL, "/")
	}
	for k, v := range c.Variables {
		spec.Variables[k] = v
	}

	for i, rc := range c.Scenario.Requests {
		prefix := fmt.Sprintf("scenario.requests[%d]", i)

		timeout, err := ParseDurationString(rc.Timeout)
		if err != nil {
			return scenario.Spec{}, fmt.Errorf("%s.timeout: %w", prefix, err)
		}
		think, err := ParseDurationString(rc.ThinkTime)
		if err != nil {
			return scenario.Spec{}, fmt.Errorf("%s.thinkTime: %w", prefix, err)
		}

		rs := scenario.RequestSpec{
			Name:      rc.Name,
			Method:    rc.Method,
			URL:       rc.URL,
			Headers:   rc.Headers,
			Body:      rc.Body,
			Timeout:   timeout,
			ThinkTime: think,
		}
		for j, cc := range rc.Checks {
			value := cc.Value
			if strings.EqualFold(cc.Type, "duration") {
				// Config durations accept bare seconds; checks get the canonical form.
				d, err := ParseDurationString(value)
				if err != nil {
					return scenario.Spec{}, fmt.Errorf("%s.checks[%d].value: %w", prefix, j, err)
				}
				value = d.String()
			}
			rs.Checks = append(rs.Checks, scenario.CheckSpec{
				Name:      cc.Name,
				Type:      cc.Type,
				Condition: cc.Condition,
				Value:     value,
				Path:      cc.Path,
			})
		}
		for _, ec := range rc.Extract {
			rs.Extract = append(rs.Extract, scenario.ExtractSpec{
				Name:   ec.Name,
				Source: ec.Source,
				Path:   ec.Path,
				Regex:  ec.Regex,
			})
		}
		spec.Requests = append(spec.Requests, rs)
	}

	if p := c.Scenario.Pacing; p != nil {
		pacing, err := p.toPacing()
		if err != nil {
			return scenario.Spec{}, fmt.Errorf("scenario.pacing: %w", err)
		}
		spec.Pacing = pacing
	}

	return spec, nil
}

func (p *PacingConfig) toPacing() (scenario.Pacing, error) {
	var (
		out scenario.Pacing
		err error
	)
	out.Type = scenario.PacingType(strings.ToLower(p.Type))
	if out.Duration, err = ParseDurationString(p.Duration); err != nil {
		return out, err
	}
	if out.Min, err = ParseDurationString(p.Min); err != nil {
		return out, err
	}
	if out.Max, err = ParseDurationString(p.Max); err != nil {
		return out, err
	}
	return out, nil
}
