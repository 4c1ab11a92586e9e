package engine

import (
	"testing"
	"time"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/metrics"
)

func testSnapshot() *metrics.Snapshot {
	return &metrics.Snapshot{
		Requests:        2000,
		RequestFailRate: 0.005,
		CheckPassRate:   0.98,
		RPS:             150,
		Latency: metrics.LatencyStats{
			Min:  5 * time.Millisecond,
			Max:  900 * time.Millisecond,
			Mean: 120 * time.Millisecond,
			P50:  100 * time.Millisecond,
			P90:  300 * time.Millisecond,
			P95:  450 * time.Millisecond,
			P99:  800 * time.Millisecond,
		},
	}
}

func TestEvaluateThresholds(t *testing.T) {
	tests := []struct {
		name   string
		config config.ThresholdsConfig
		passed []bool
	}{
		{"duration pass", config.ThresholdsConfig{HTTPReqDuration: []string{"p95 < 500ms", "avg<200ms", "med <= 100ms"}}, []bool{true, true, true}},
		{"duration fail", config.ThresholdsConfig{HTTPReqDuration: []string{"p99 < 500ms", "max < 1s"}}, []bool{false, true}},
		{"failed rate", config.ThresholdsConfig{HTTPReqFailed: []string{"rate < 0.01", "rate < 0.001"}}, []bool{true, false}},
		{"requests", config.ThresholdsConfig{HTTPReqs: []string{"count > 1000", "rate >= 200"}}, []bool{true, false}},
		{"checks", config.ThresholdsConfig{Checks: []string{"rate > 0.95", "rate > 0.99"}}, []bool{true, false}},
		{"malformed", config.ThresholdsConfig{HTTPReqDuration: []string{"p95 soon"}, HTTPReqFailed: []string{"count < 1"}}, []bool{false, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := evaluateThresholds(&tt.config, testSnapshot())
			if len(results) != len(tt.passed) {
				t.Fatalf("len(results) = %d, want %d", len(results), len(tt.passed))
			}
			for i, want := range tt.passed {
				if results[i].Passed != want {
					t.Errorf("%s: Passed = %v, want %v (%s)", results[i].Expression, results[i].Passed, want, results[i].Message)
				}
				if !results[i].Passed && results[i].Message == "" {
					t.Errorf("%s: failed threshold without message", results[i].Expression)
				}
			}
		})
	}
}

func TestEvaluateThresholds_Nil(t *testing.T) {
	if results := evaluateThresholds(nil, testSnapshot()); results != nil {
		t.Errorf("evaluateThresholds(nil) = %v, want nil", results)
	}
	if !allPassed(nil) {
		t.Error("allPassed(nil) = false, want true")
	}
}

func TestParseThresholdExpression(t *testing.T) {
	metric, op, value, err := parseThresholdExpression("  p95 <= 250ms ")
	if err != nil {
		t.Fatalf("parseThresholdExpression() error = %v", err)
	}
	if metric != "p95" || op != "<=" || value != "250ms" {
		t.Errorf("got %q %q %q", metric, op, value)
	}

	if _, _, _, err := parseThresholdExpression("p95"); err == nil {
		t.Error("expected error for expression without operator")
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		actual    float64
		op        string
		threshold float64
		want      bool
	}{
		{1, "<", 2, true},
		{2, "<=", 2, true},
		{3, ">", 2, true},
		{2, ">=", 3, false},
		{2, "==", 2, true},
		{2, "=", 2, true},
		{2, "!=", 2, false},
		{2, "<>", 3, true},
		{2, "~", 3, false},
	}

	for _, tt := range tests {
		if got := compareValues(tt.actual, tt.op, tt.threshold); got != tt.want {
			t.Errorf("compareValues(%v, %q, %v) = %v, want %v", tt.actual, tt.op, tt.threshold, got, tt.want)
		}
	}
}
