package schedule

import (
	"errors"
	"testing"
	"time"
)

func referenceStages() []Stage {
	return []Stage{
		{Duration: 30 * time.Second, Target: 500},
		{Duration: 90 * time.Second, Target: 500},
		{Duration: 20 * time.Second, Target: 0},
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		stages  []Stage
		wantErr bool
	}{
		{"reference", referenceStages(), false},
		{"empty", nil, true},
		{"zero duration", []Stage{{Duration: 0, Target: 10}}, true},
		{"negative duration", []Stage{{Duration: -time.Second, Target: 10}}, true},
		{"negative target", []Stage{{Duration: time.Second, Target: -1}}, true},
		{"zero target allowed", []Stage{{Duration: time.Second, Target: 0}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.stages)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_EmptyIsErrNoStages(t *testing.T) {
	_, err := New([]Stage{})
	if !errors.Is(err, ErrNoStages) {
		t.Fatalf("New() error = %v, want ErrNoStages", err)
	}
}

func TestNew_StageErrorIndex(t *testing.T) {
	_, err := New([]Stage{
		{Duration: time.Second, Target: 1},
		{Duration: time.Second, Target: -5},
	})

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("New() error = %v, want *StageError", err)
	}
	if stageErr.Index != 1 {
		t.Errorf("StageError.Index = %d, want 1", stageErr.Index)
	}
}

func TestNew_CopiesInput(t *testing.T) {
	stages := referenceStages()
	s, err := New(stages)
	if err != nil {
		t.Fatal(err)
	}

	stages[0].Target = 1
	if got := s.TargetAt(30 * time.Second); got != 500 {
		t.Errorf("schedule changed after input mutation: TargetAt(30s) = %d", got)
	}

	out := s.Stages()
	out[1].Target = 7
	if got := s.TargetAt(60 * time.Second); got != 500 {
		t.Errorf("schedule changed after Stages() mutation: TargetAt(60s) = %d", got)
	}
}

func TestTargetAt_ReferenceStages(t *testing.T) {
	s, err := New(referenceStages())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{-time.Second, 0},
		{0, 0},
		{3 * time.Second, 50},
		{15 * time.Second, 250},
		{29 * time.Second, 483},
		{30 * time.Second, 500},
		{60 * time.Second, 500},
		{119 * time.Second, 500},
		{120 * time.Second, 500},
		{130 * time.Second, 250},
		{139 * time.Second, 25},
		{140 * time.Second, 0},
		{time.Hour, 0},
	}

	for _, tt := range tests {
		if got := s.TargetAt(tt.elapsed); got != tt.want {
			t.Errorf("TargetAt(%s) = %d, want %d", tt.elapsed, got, tt.want)
		}
	}
}

func TestTargetAt_StepBetweenStages(t *testing.T) {
	s, err := New([]Stage{
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 10 * time.Second, Target: 30},
	})
	if err != nil {
		t.Fatal(err)
	}

	// At the boundary the second stage starts from the first stage's target.
	if got := s.TargetAt(10 * time.Second); got != 10 {
		t.Errorf("TargetAt(10s) = %d, want 10", got)
	}
	if got := s.TargetAt(15 * time.Second); got != 20 {
		t.Errorf("TargetAt(15s) = %d, want 20", got)
	}
}

func TestTargetAt_Monotonic(t *testing.T) {
	s, err := New([]Stage{{Duration: 7 * time.Second, Target: 13}})
	if err != nil {
		t.Fatal(err)
	}

	prev := 0
	for elapsed := time.Duration(0); elapsed < 7*time.Second; elapsed += 10 * time.Millisecond {
		got := s.TargetAt(elapsed)
		if got < prev {
			t.Fatalf("TargetAt(%s) = %d decreased from %d", elapsed, got, prev)
		}
		if got > 13 {
			t.Fatalf("TargetAt(%s) = %d exceeds stage target", elapsed, got)
		}
		prev = got
	}
}

func TestStageAt(t *testing.T) {
	s, err := New(referenceStages())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		elapsed time.Duration
		index   int
		ok      bool
	}{
		{-time.Millisecond, -1, false},
		{0, 0, true},
		{29999 * time.Millisecond, 0, true},
		{30 * time.Second, 1, true},
		{120 * time.Second, 2, true},
		{140 * time.Second, -1, false},
	}

	for _, tt := range tests {
		index, ok := s.StageAt(tt.elapsed)
		if index != tt.index || ok != tt.ok {
			t.Errorf("StageAt(%s) = (%d, %v), want (%d, %v)", tt.elapsed, index, ok, tt.index, tt.ok)
		}
	}
}

func TestPhaseAt(t *testing.T) {
	s, err := New(referenceStages())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		elapsed time.Duration
		want    Phase
	}{
		{-time.Second, PhaseInit},
		{time.Second, PhaseRampUp},
		{60 * time.Second, PhaseSteady},
		{125 * time.Second, PhaseRampDown},
		{140 * time.Second, PhaseDone},
	}

	for _, tt := range tests {
		if got := s.PhaseAt(tt.elapsed); got != tt.want {
			t.Errorf("PhaseAt(%s) = %s, want %s", tt.elapsed, got, tt.want)
		}
	}
}

func TestTotalDurationAndMaxTarget(t *testing.T) {
	s, err := New(referenceStages())
	if err != nil {
		t.Fatal(err)
	}

	if got := s.TotalDuration(); got != 140*time.Second {
		t.Errorf("TotalDuration() = %s, want 2m20s", got)
	}
	if got := s.MaxTarget(); got != 500 {
		t.Errorf("MaxTarget() = %d, want 500", got)
	}
}
