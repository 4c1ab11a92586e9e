package perf

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/engine"
	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/scenario"
	"github.com/wesleyorama2/surge/internal/transport"
)

type (
	// Stage is one segment of the schedule.
	Stage = schedule.Stage
	// Scenario runs one iteration for a virtual user.
	Scenario = scenario.Scenario
	// ScenarioFunc adapts a function to Scenario.
	ScenarioFunc = scenario.Func
	// Iteration is handed to a Scenario on every loop.
	Iteration = scenario.Iteration
	// Request is one HTTP request issued through an Iteration.
	Request = transport.Request
	// Response is a completed HTTP response with timing.
	Response = transport.Response
	// Transport issues requests for virtual users.
	Transport = transport.Transport
	// TransportConfig configures the default HTTP transport.
	TransportConfig = transport.Config
	// TestConfig is a declarative test loaded from YAML or JSON.
	TestConfig = config.TestConfig
	// Thresholds are the pass/fail criteria of a run.
	Thresholds = config.ThresholdsConfig
	// Summary is the frozen result of a run.
	Summary = engine.Summary
	// Status is a live view of a running test.
	Status = engine.Status
)

// ErrNoScenario is returned when a Test has no scenario.
var ErrNoScenario = errors.New("perf: test has no scenario")

// Test describes a load test built in code.
type Test struct {
	Name     string
	Stages   []Stage
	Scenario Scenario

	// Transport is used as is when set. Otherwise an HTTP transport is
	// built from TransportConfig, or from defaults when that is nil.
	Transport       Transport
	TransportConfig *TransportConfig

	// Tick and GracefulStop fall back to engine defaults when zero.
	Tick         time.Duration
	GracefulStop time.Duration

	// Thresholds decide Summary.Passed; nil means the run always passes.
	Thresholds *Thresholds

	Logger *zap.Logger
}

// DefaultTransportConfig returns the HTTP transport defaults.
func DefaultTransportConfig() TransportConfig {
	return transport.DefaultConfig()
}

// LoadConfig reads a YAML or JSON test configuration.
func LoadConfig(path string) (*TestConfig, error) {
	return config.LoadConfig(path)
}

// Run executes t and blocks until every virtual user has stopped.
func Run(ctx context.Context, t Test) (*Summary, error) {
	eng, err := newEngine(t)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx)
}

func newEngine(t Test) (*engine.Engine, error) {
	if t.Scenario == nil {
		return nil, ErrNoScenario
	}
	sched, err := schedule.New(t.Stages)
	if err != nil {
		return nil, err
	}

	tr := t.Transport
	if tr == nil {
		cfg := transport.DefaultConfig()
		if t.TransportConfig != nil {
			cfg = *t.TransportConfig
		}
		tr = transport.NewHTTPTransport(cfg)
	}

	opts := []engine.Option{engine.WithLogger(t.Logger), engine.WithThresholds(t.Thresholds)}
	if t.Name != "" {
		opts = append(opts, engine.WithName(t.Name))
	}
	if t.Tick > 0 {
		opts = append(opts, engine.WithTick(t.Tick))
	}
	if t.GracefulStop > 0 {
		opts = append(opts, engine.WithGracefulStop(t.GracefulStop))
	}
	return engine.New(sched, t.Scenario, tr, opts...), nil
}

// RunConfig executes a declarative test configuration. A nil logger
// discards log output.
func RunConfig(ctx context.Context, cfg *TestConfig, logger *zap.Logger) (*Summary, error) {
	eng, err := engine.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx)
}
