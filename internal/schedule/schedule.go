// Package schedule converts a list of ramping stages into a target
// virtual-user count for any elapsed time since the start of a run.
package schedule

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNoStages is returned when a schedule is built from an empty stage list.
var ErrNoStages = errors.New("at least one stage is required")

// Stage is a time-bounded ramp segment. The target count is reached at the
// end of the stage, starting from the previous stage's target (0 for the
// first stage).
//
// Example stages:
//
//	stages:
//	  - duration: 30s
//	    target: 500    # ramp from 0 to 500 VUs over 30s
//	  - duration: 1m30s
//	    target: 500    # hold 500 VUs
//	  - duration: 20s
//	    target: 0      # ramp down to 0 VUs
type Stage struct {
	Duration time.Duration `json:"duration" yaml:"duration"`
	Target   int           `json:"target" yaml:"target"`
	Name     string        `json:"name,omitempty" yaml:"name,omitempty"`
}

// StageError describes an invalid stage.
type StageError struct {
	Index   int
	Message string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d: %s", e.Index+1, e.Message)
}

// Phase describes what the run is doing at a point in time.
type Phase string

const (
	PhaseInit     Phase = "init"
	PhaseRampUp   Phase = "ramp-up"
	PhaseSteady   Phase = "steady"
	PhaseRampDown Phase = "ramp-down"
	PhaseDrain    Phase = "drain"
	PhaseDone     Phase = "done"
)

// Schedule is an immutable, validated stage table.
//
// Schedule holds no clock of its own; callers pass the elapsed time read from
// a monotonic clock, which keeps every lookup deterministic.
type Schedule struct {
	stages []Stage
	ends   []time.Duration
	total  time.Duration
}

// New validates stages and returns a Schedule. Zero or negative durations
// and negative targets are rejected.
func New(stages []Stage) (*Schedule, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}

	s := &Schedule{
		stages: make([]Stage, len(stages)),
		ends:   make([]time.Duration, len(stages)),
	}
	copy(s.stages, stages)

	for i, st := range s.stages {
		if st.Duration <= 0 {
			return nil, &StageError{Index: i, Message: fmt.Sprintf("duration must be > 0, got %s", st.Duration)}
		}
		if st.Target < 0 {
			return nil, &StageError{Index: i, Message: fmt.Sprintf("target cannot be negative, got %d", st.Target)}
		}
		s.total += st.Duration
		s.ends[i] = s.total
	}

	return s, nil
}

// Stages returns a copy of the stage table.
func (s *Schedule) Stages() []Stage {
	out := make([]Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// TotalDuration is the sum of all stage durations.
func (s *Schedule) TotalDuration() time.Duration {
	return s.total
}

// MaxTarget returns the highest target of any stage.
func (s *Schedule) MaxTarget() int {
	highest := 0
	for _, st := range s.stages {
		if st.Target > highest {
			highest = st.Target
		}
	}
	return highest
}

// StageAt returns the index of the stage active at elapsed. At a boundary the
// later stage is active. ok is false before the start and once every stage
// has elapsed.
func (s *Schedule) StageAt(elapsed time.Duration) (index int, ok bool) {
	if elapsed < 0 || elapsed >= s.total {
		return -1, false
	}
	for i, end := range s.ends {
		if elapsed < end {
			return i, true
		}
	}
	return -1, false
}

// TargetAt returns the virtual-user target at elapsed, linearly interpolated
// within the active stage and rounded to the nearest integer. It returns 0
// before the start and once all stages are exhausted.
func (s *Schedule) TargetAt(elapsed time.Duration) int {
	i, ok := s.StageAt(elapsed)
	if !ok {
		return 0
	}

	st := s.stages[i]
	from := s.startTarget(i)
	stageStart := s.ends[i] - st.Duration

	progress := float64(elapsed-stageStart) / float64(st.Duration)
	target := float64(from) + float64(st.Target-from)*progress
	return int(math.Round(target))
}

// PhaseAt classifies the stage active at elapsed by comparing its start and
// end targets.
func (s *Schedule) PhaseAt(elapsed time.Duration) Phase {
	if elapsed < 0 {
		return PhaseInit
	}
	i, ok := s.StageAt(elapsed)
	if !ok {
		return PhaseDone
	}

	from, to := s.startTarget(i), s.stages[i].Target
	switch {
	case to > from:
		return PhaseRampUp
	case to < from:
		return PhaseRampDown
	default:
		return PhaseSteady
	}
}

func (s *Schedule) startTarget(i int) int {
	if i == 0 {
		return 0
	}
	return s.stages[i-1].Target
}
