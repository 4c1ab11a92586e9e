// Package vu runs a single virtual user: a loop of scenario iterations
// separated by optional pauses, with cooperative and forced stop.
package vu

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/surge/internal/scenario"
	"github.com/wesleyorama2/surge/internal/transport"
)

// State represents the lifecycle state of a virtual user.
type State int32

const (
	// StateIdle indicates the VU has been created but Run was not called.
	StateIdle State = iota
	// StateRunning indicates an iteration is in progress.
	StateRunning
	// StateSleeping indicates the VU is pausing between iterations.
	StateSleeping
	// StateStopping indicates a stop was requested and the VU has not exited.
	StateStopping
	// StateStopped indicates Run has returned.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateSleeping:
		return "sleeping"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome describes why a virtual user stopped.
type Outcome int

const (
	// OutcomeNone is reported until the VU has stopped.
	OutcomeNone Outcome = iota
	// OutcomeStopped means the VU exited after a stop request.
	OutcomeStopped
	// OutcomeCrashed means the scenario returned a non-request error or
	// panicked.
	OutcomeCrashed
	// OutcomeForced means the VU was cancelled; its partial iteration was
	// discarded.
	OutcomeForced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStopped:
		return "stopped"
	case OutcomeCrashed:
		return "crashed"
	case OutcomeForced:
		return "forced"
	default:
		return "none"
	}
}

// Recorder receives every completed iteration.
type Recorder interface {
	Record(scenario.IterationResult)
}

// VirtualUser executes a scenario repeatedly until stopped.
//
// Stop requests are cooperative: an in-flight iteration always finishes and
// is recorded, a pause is cut short. Cancel aborts in-flight requests.
type VirtualUser struct {
	// ID is unique within a run.
	ID int

	scenario  scenario.Scenario
	transport transport.Transport
	recorder  Recorder
	vars      *scenario.Vars

	state      atomic.Int32
	stopping   atomic.Bool
	iterations atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	canceled bool

	// written before doneCh is closed
	outcome Outcome
	err     error
}

// New creates an idle virtual user.
func New(id int, scn scenario.Scenario, tr transport.Transport, rec Recorder) *VirtualUser {
	return &VirtualUser{
		ID:        id,
		scenario:  scn,
		transport: tr,
		recorder:  rec,
		vars:      scenario.NewVars(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// State returns the current state. StateStopping is reported from the
// moment a stop is requested until Run returns.
func (v *VirtualUser) State() State {
	s := State(v.state.Load())
	if s != StateStopped && v.stopping.Load() {
		return StateStopping
	}
	return s
}

// Iterations returns the number of iterations started so far.
func (v *VirtualUser) Iterations() int64 {
	return v.iterations.Load()
}

// StopRequested reports whether RequestStop or Cancel was called.
func (v *VirtualUser) StopRequested() bool {
	return v.stopping.Load()
}

// RequestStop asks the VU to stop at its next suspension point. It never
// interrupts an in-flight request. Safe to call more than once.
func (v *VirtualUser) RequestStop() {
	v.stopOnce.Do(func() {
		v.stopping.Store(true)
		close(v.stopCh)
	})
}

// Cancel force-terminates the VU, aborting any in-flight request.
func (v *VirtualUser) Cancel() {
	v.RequestStop()

	v.cancelMu.Lock()
	defer v.cancelMu.Unlock()
	v.canceled = true
	if v.cancel != nil {
		v.cancel()
	}
}

// Done is closed once Run has returned.
func (v *VirtualUser) Done() <-chan struct{} {
	return v.doneCh
}

// WaitForStop waits for the VU to stop with a timeout.
//
// Returns true if the VU stopped within the timeout, false otherwise.
func (v *VirtualUser) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-v.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Result returns the outcome and, for crashes, the scenario error. It is
// OutcomeNone until Done is closed.
func (v *VirtualUser) Result() (Outcome, error) {
	select {
	case <-v.doneCh:
		return v.outcome, v.err
	default:
		return OutcomeNone, nil
	}
}

// Run executes iterations until the VU is stopped, cancelled or its
// scenario crashes. It must be called at most once.
func (v *VirtualUser) Run(ctx context.Context) (Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.cancelMu.Lock()
	v.cancel = cancel
	if v.canceled {
		cancel()
	}
	v.cancelMu.Unlock()

	outcome, err := v.loop(ctx)

	v.outcome, v.err = outcome, err
	v.state.Store(int32(StateStopped))
	close(v.doneCh)
	return outcome, err
}

func (v *VirtualUser) loop(ctx context.Context) (Outcome, error) {
	for {
		if ctx.Err() != nil {
			return OutcomeForced, nil
		}
		if v.stopping.Load() {
			return OutcomeStopped, nil
		}

		v.state.Store(int32(StateRunning))
		n := v.iterations.Add(1)
		it := scenario.NewIteration(v.ID, n, v.transport, v.vars, v.stopCh)

		err := scenario.Execute(ctx, v.scenario, it)
		if ctx.Err() != nil {
			return OutcomeForced, nil
		}

		result := it.Result()
		v.recorder.Record(result)

		if scenario.IsCrash(err) {
			return OutcomeCrashed, err
		}
		if v.stopping.Load() {
			return OutcomeStopped, nil
		}

		if result.Pause > 0 {
			if outcome, done := v.sleep(ctx, result.Pause); done {
				return outcome, nil
			}
		}
	}
}

// sleep pauses for d. It reports done when the pause was interrupted by a
// stop request or cancellation.
func (v *VirtualUser) sleep(ctx context.Context, d time.Duration) (Outcome, bool) {
	v.state.Store(int32(StateSleeping))

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return OutcomeForced, true
	case <-v.stopCh:
		return OutcomeStopped, true
	case <-timer.C:
		return OutcomeNone, false
	}
}
