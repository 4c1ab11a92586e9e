package perf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/schedule"
)

func TestRun_ScenarioFunc(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sum, err := Run(context.Background(), Test{
		Name: "programmatic",
		Stages: []Stage{
			{Duration: 100 * time.Millisecond, Target: 3},
			{Duration: 100 * time.Millisecond, Target: 3},
		},
		Scenario: ScenarioFunc(func(ctx context.Context, it *Iteration) error {
			resp, err := it.Get(ctx, server.URL)
			if err != nil {
				return err
			}
			it.Check("status was 200", resp.StatusCode == http.StatusOK)
			it.Pause(5 * time.Millisecond)
			return nil
		}),
		Tick:         10 * time.Millisecond,
		GracefulStop: time.Second,
		Thresholds:   &Thresholds{Checks: []string{"rate > 0.99"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "programmatic", sum.Name)
	assert.Equal(t, 3, sum.PeakVUs)
	assert.True(t, sum.Passed)
	assert.Equal(t, hits.Load(), sum.Metrics.Requests)
	assert.Zero(t, sum.Metrics.FailedRequests)
	assert.Equal(t, sum.Metrics.ChecksPassed, sum.Metrics.Checks["status was 200"].Passes)
}

func TestRun_Errors(t *testing.T) {
	_, err := Run(context.Background(), Test{Stages: []Stage{{Duration: time.Second, Target: 1}}})
	assert.ErrorIs(t, err, ErrNoScenario)

	noop := ScenarioFunc(func(ctx context.Context, it *Iteration) error { return nil })
	_, err = Run(context.Background(), Test{Scenario: noop})
	assert.True(t, errors.Is(err, schedule.ErrNoStages), "got %v", err)
}

func TestRunConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg, err := LoadConfig("../examples/health-ramp.yaml")
	require.NoError(t, err)
	cfg.Settings.BaseURL = server.URL
	cfg.Stages = cfg.Stages[:1]
	cfg.Stages[0].Duration = "100ms"
	cfg.Stages[0].Target = 2
	cfg.Options.Tick = 0
	cfg.Options.GracefulStop = 0

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sum, err := RunConfig(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "health ramp", sum.Name)
	assert.False(t, sum.Interrupted)
	assert.NotEmpty(t, sum.Thresholds)
}
