// Package engine drives a staged load test: it follows the schedule, keeps
// the virtual user pool at the scheduled target and produces a summary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/executor"
	"github.com/wesleyorama2/surge/internal/metrics"
	"github.com/wesleyorama2/surge/internal/scenario"
	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/transport"
	"github.com/wesleyorama2/surge/internal/vu"
)

// Defaults used when no option overrides them.
const (
	DefaultTick         = 100 * time.Millisecond
	DefaultGracefulStop = executor.DefaultGracefulStop
)

var (
	// ErrNoSchedule is returned by Run when the engine has no schedule.
	ErrNoSchedule = errors.New("engine: no schedule")
	// ErrNoScenario is returned by Run when the engine has no scenario.
	ErrNoScenario = errors.New("engine: no scenario")
	// ErrNoTransport is returned by Run when the engine has no transport.
	ErrNoTransport = errors.New("engine: no transport")
	// ErrAlreadyRunning is returned when Run is called on a running engine.
	ErrAlreadyRunning = errors.New("engine: already running")
)

// Engine runs one load test at a time.
type Engine struct {
	name       string
	sched      *schedule.Schedule
	scenario   scenario.Scenario
	transport  transport.Transport
	tick       time.Duration
	grace      time.Duration
	thresholds *config.ThresholdsConfig
	logger     *zap.Logger

	mu      sync.RWMutex
	running bool
	state   *runState
}

// runState is the live state of a run. Fields other than the handles are
// guarded by Engine.mu.
type runState struct {
	id     string
	start  time.Time
	target int
	stage  int
	phase  schedule.Phase

	pool *executor.Pool
	sink *metrics.Sink
}

// Option configures an Engine.
type Option func(*Engine)

// WithTick sets how often the target is recomputed.
func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

// WithGracefulStop sets how long in-flight iterations may take to finish
// once the schedule ends or the run is cancelled.
func WithGracefulStop(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.grace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithName sets the test name reported in the summary.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// WithThresholds sets pass/fail criteria evaluated at the end of the run.
func WithThresholds(t *config.ThresholdsConfig) Option {
	return func(e *Engine) { e.thresholds = t }
}

// New creates an engine. Missing schedule, scenario or transport are
// reported by Run.
func New(sched *schedule.Schedule, scn scenario.Scenario, tr transport.Transport, opts ...Option) *Engine {
	e := &Engine{
		name:      "load test",
		sched:     sched,
		scenario:  scn,
		transport: tr,
		tick:      DefaultTick,
		grace:     DefaultGracefulStop,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewFromConfig builds an engine from a test configuration: the stage
// schedule, an HTTP transport and a declarative scenario.
func NewFromConfig(cfg *config.TestConfig, logger *zap.Logger) (*Engine, error) {
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sched, err := cfg.Schedule()
	if err != nil {
		return nil, fmt.Errorf("invalid stages: %w", err)
	}

	spec, err := cfg.ScenarioSpec()
	if err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	scn, err := scenario.FromSpec(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	tr := transport.NewHTTPTransport(cfg.TransportConfig())

	return New(sched, scn, tr,
		WithName(cfg.Name),
		WithTick(cfg.Options.Tick.GetDuration(DefaultTick)),
		WithGracefulStop(cfg.Options.GracefulStop.GetDuration(DefaultGracefulStop)),
		WithThresholds(cfg.Thresholds),
		WithLogger(logger),
	), nil
}

// Run executes the schedule and blocks until every virtual user has
// stopped. Cancelling ctx ends the schedule early and drains immediately;
// the summary is then marked interrupted.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	switch {
	case e.sched == nil:
		return nil, ErrNoSchedule
	case e.scenario == nil:
		return nil, ErrNoScenario
	case e.transport == nil:
		return nil, ErrNoTransport
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true

	sink := metrics.NewSink()
	state := &runState{
		id:    uuid.New().String(),
		start: time.Now(),
		stage: -1,
		phase: schedule.PhaseInit,
		sink:  sink,
	}
	base := e.logger.With(zap.String("run_id", state.id))
	logger := base.With(zap.String("component", "engine"))
	state.pool = executor.NewPool(func(id int) *vu.VirtualUser {
		return vu.New(id, e.scenario, e.transport, sink)
	}, sink, base)
	e.state = state
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	total := e.sched.TotalDuration()
	logger.Info("run started",
		zap.String("name", e.name),
		zap.Int("stages", len(e.sched.Stages())),
		zap.Duration("duration", total),
		zap.Int("max_vus", e.sched.MaxTarget()))

	interrupted := e.drive(ctx, state, logger)

	e.setPhase(state, schedule.PhaseDrain)
	logger.Info("draining virtual users",
		zap.Int("active", state.pool.ActiveCount()),
		zap.Duration("graceful_stop", e.grace))

	report := state.pool.StopAll(e.grace)
	sink.SetActiveVUs(0)
	e.setPhase(state, schedule.PhaseDone)

	if closer, ok := e.transport.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}

	end := time.Now()
	snap := sink.Snapshot()

	summary := &Summary{
		RunID:       state.id,
		Name:        e.name,
		StartTime:   state.start,
		EndTime:     end,
		Duration:    end.Sub(state.start),
		Interrupted: interrupted,
		PeakVUs:     snap.PeakVUs,
		Stop:        report,
		Metrics:     snap,
		Phases:      snap.Phases,
	}
	summary.Thresholds = evaluateThresholds(e.thresholds, snap)
	summary.Passed = allPassed(summary.Thresholds)

	logger.Info("run finished",
		zap.Duration("duration", summary.Duration),
		zap.Bool("interrupted", interrupted),
		zap.Int64("iterations", snap.Iterations),
		zap.Int64("requests", snap.Requests),
		zap.Int64("failed_requests", snap.FailedRequests),
		zap.Int64("crashes", snap.Crashes),
		zap.Int("forced_stops", report.Forced),
		zap.Bool("passed", summary.Passed))

	return summary, nil
}

// drive follows the schedule until it ends or ctx is cancelled. It reports
// whether the run was interrupted.
func (e *Engine) drive(ctx context.Context, state *runState, logger *zap.Logger) bool {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()

	total := e.sched.TotalDuration()
	e.step(state, 0, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Warn("run interrupted", zap.Error(ctx.Err()))
			return true
		case <-ticker.C:
			elapsed := time.Since(state.start)
			if elapsed >= total {
				return false
			}
			e.step(state, elapsed, logger)
		}
	}
}

// step reconciles the pool with the target at elapsed.
func (e *Engine) step(state *runState, elapsed time.Duration, logger *zap.Logger) {
	target := e.sched.TargetAt(elapsed)
	active := state.pool.Reconcile(target)
	state.sink.SetActiveVUs(active)

	stage, _ := e.sched.StageAt(elapsed)

	e.mu.Lock()
	state.target = target
	stageChanged := stage != state.stage
	state.stage = stage
	e.mu.Unlock()

	if stageChanged && stage >= 0 {
		st := e.sched.Stages()[stage]
		logger.Info("stage started",
			zap.Int("stage", stage+1),
			zap.String("stage_name", st.Name),
			zap.Int("target", st.Target),
			zap.Duration("stage_duration", st.Duration))
	}

	e.setPhase(state, e.sched.PhaseAt(elapsed))
}

func (e *Engine) setPhase(state *runState, phase schedule.Phase) {
	e.mu.Lock()
	state.phase = phase
	e.mu.Unlock()
	state.sink.SetPhase(phase)
}

// Status is a live view of a run.
type Status struct {
	RunID     string
	Running   bool
	Elapsed   time.Duration
	Total     time.Duration
	Progress  float64
	Target    int
	Active    int
	Draining  int
	Stage     int
	StageName string
	Phase     schedule.Phase
	Metrics   *metrics.Snapshot
}

// Status returns the state of the current or last run. It is the zero
// Status before the first run.
func (e *Engine) Status() Status {
	e.mu.RLock()
	state := e.state
	running := e.running
	if state == nil {
		e.mu.RUnlock()
		return Status{}
	}
	st := Status{
		RunID:   state.id,
		Running: running,
		Target:  state.target,
		Stage:   state.stage,
		Phase:   state.phase,
	}
	e.mu.RUnlock()

	st.Total = e.sched.TotalDuration()
	st.Elapsed = time.Since(state.start)
	if st.Total > 0 {
		st.Progress = float64(st.Elapsed) / float64(st.Total)
		if st.Progress > 1 {
			st.Progress = 1
		}
	}
	if st.Stage >= 0 {
		st.StageName = e.sched.Stages()[st.Stage].Name
	}
	st.Active = state.pool.ActiveCount()
	st.Draining = state.pool.DrainingCount()
	st.Metrics = state.sink.Snapshot()
	return st
}

// Summary is the frozen result of a run.
type Summary struct {
	RunID       string                `json:"runId"`
	Name        string                `json:"name"`
	StartTime   time.Time             `json:"startTime"`
	EndTime     time.Time             `json:"endTime"`
	Duration    time.Duration         `json:"duration"`
	Interrupted bool                  `json:"interrupted"`
	PeakVUs     int                   `json:"peakVUs"`
	Stop        executor.StopReport   `json:"stop"`
	Metrics     *metrics.Snapshot     `json:"metrics"`
	Phases      []metrics.PhaseChange `json:"phases,omitempty"`
	Thresholds  []ThresholdResult     `json:"thresholds,omitempty"`
	Passed      bool                  `json:"passed"`
}
