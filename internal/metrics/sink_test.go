package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/scenario"
	"github.com/wesleyorama2/surge/internal/transport"
)

func okRequest(name string, latency time.Duration, checks ...scenario.CheckResult) scenario.RequestRecord {
	return scenario.RequestRecord{
		Name:          name,
		Method:        "GET",
		StatusCode:    200,
		Latency:       latency,
		BytesReceived: 100,
		Checks:        checks,
	}
}

func failedRequest(name string, kind transport.ErrorKind) scenario.RequestRecord {
	return scenario.RequestRecord{
		Name:      name,
		Method:    "GET",
		Latency:   time.Millisecond,
		Err:       errors.New(string(kind)),
		ErrorKind: kind,
	}
}

func TestNewSink(t *testing.T) {
	sink := NewSink()
	snap := sink.Snapshot()

	if snap.Requests != 0 || snap.Iterations != 0 {
		t.Errorf("initial snapshot not empty: %+v", snap)
	}
	if snap.Phase != schedule.PhaseInit {
		t.Errorf("initial phase = %v, want %v", snap.Phase, schedule.PhaseInit)
	}
	if snap.RequestFailRate != 0 || snap.CheckPassRate != 0 {
		t.Errorf("rates on empty sink = %v/%v, want 0/0", snap.RequestFailRate, snap.CheckPassRate)
	}
}

func TestSink_Record(t *testing.T) {
	sink := NewSink()

	sink.Record(scenario.IterationResult{
		VUID:      1,
		Iteration: 1,
		Duration:  30 * time.Millisecond,
		Requests: []scenario.RequestRecord{
			okRequest("health", 10*time.Millisecond, scenario.CheckResult{Name: "status was 200", Passed: true}),
			failedRequest("health", transport.KindTimeout),
		},
	})
	sink.Record(scenario.IterationResult{
		VUID:      2,
		Iteration: 1,
		Duration:  10 * time.Millisecond,
		Requests: []scenario.RequestRecord{
			{Name: "health", StatusCode: 503, Latency: 20 * time.Millisecond, BytesReceived: 10,
				Checks: []scenario.CheckResult{{Name: "status was 200", Passed: false}}},
		},
		Checks: []scenario.CheckResult{{Name: "setup", Passed: true}},
	})

	snap := sink.Snapshot()

	if snap.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", snap.Iterations)
	}
	if snap.IterationDurationMean != 20*time.Millisecond {
		t.Errorf("IterationDurationMean = %v, want 20ms", snap.IterationDurationMean)
	}
	if snap.Requests != 3 {
		t.Errorf("Requests = %d, want 3", snap.Requests)
	}
	if snap.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snap.FailedRequests)
	}
	if snap.Bytes != 110 {
		t.Errorf("Bytes = %d, want 110", snap.Bytes)
	}
	if snap.ErrorsByKind[transport.KindTimeout] != 1 {
		t.Errorf("ErrorsByKind[timeout] = %d, want 1", snap.ErrorsByKind[transport.KindTimeout])
	}
	if snap.StatusCodes[200] != 1 || snap.StatusCodes[503] != 1 {
		t.Errorf("StatusCodes = %v", snap.StatusCodes)
	}
	if snap.ChecksPassed != 2 || snap.ChecksFailed != 1 {
		t.Errorf("checks passed/failed = %d/%d, want 2/1", snap.ChecksPassed, snap.ChecksFailed)
	}
	if got := snap.Checks["status was 200"]; got.Passes != 1 || got.Fails != 1 {
		t.Errorf("Checks[status was 200] = %+v", got)
	}
	if snap.RequestLatency["health"].Count != 3 {
		t.Errorf("RequestLatency[health].Count = %d, want 3", snap.RequestLatency["health"].Count)
	}

	wantFail := 1.0 / 3.0
	if snap.RequestFailRate < wantFail-0.0001 || snap.RequestFailRate > wantFail+0.0001 {
		t.Errorf("RequestFailRate = %v, want %v", snap.RequestFailRate, wantFail)
	}
	wantPass := 2.0 / 3.0
	if snap.CheckPassRate < wantPass-0.0001 || snap.CheckPassRate > wantPass+0.0001 {
		t.Errorf("CheckPassRate = %v, want %v", snap.CheckPassRate, wantPass)
	}

	names := snap.CheckNames()
	if len(names) != 2 || names[0] != "setup" || names[1] != "status was 200" {
		t.Errorf("CheckNames() = %v", names)
	}
}

func TestSink_LatencyPercentiles(t *testing.T) {
	sink := NewSink()

	var requests []scenario.RequestRecord
	for i := 1; i <= 10; i++ {
		requests = append(requests, okRequest("", time.Duration(i)*10*time.Millisecond))
	}
	sink.Record(scenario.IterationResult{Requests: requests})

	lat := sink.Snapshot().Latency

	if lat.P50 < 40*time.Millisecond || lat.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", lat.P50)
	}
	if lat.P99 < 90*time.Millisecond || lat.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms", lat.P99)
	}
	if lat.Min < 9*time.Millisecond || lat.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", lat.Min)
	}
	if lat.Count != 10 {
		t.Errorf("Count = %d, want 10", lat.Count)
	}
	if len(sink.Snapshot().RequestLatency) != 0 {
		t.Error("unnamed requests should not create per-request histograms")
	}
}

func TestSink_ConcurrentRecord(t *testing.T) {
	sink := NewSink()

	const (
		goroutines = 500
		perWorker  = 20
	)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sink.Record(scenario.IterationResult{
					VUID:      id,
					Iteration: int64(i + 1),
					Requests: []scenario.RequestRecord{
						okRequest(fmt.Sprintf("req-%d", id%5), time.Millisecond,
							scenario.CheckResult{Name: "ok", Passed: i%2 == 0}),
					},
				})
				if i%5 == 0 {
					_ = sink.Snapshot()
				}
			}
		}(g)
	}
	wg.Wait()

	snap := sink.Snapshot()
	total := int64(goroutines * perWorker)

	if snap.Iterations != total {
		t.Errorf("Iterations = %d, want %d", snap.Iterations, total)
	}
	if snap.Requests != total {
		t.Errorf("Requests = %d, want %d", snap.Requests, total)
	}
	if snap.Latency.Count != total {
		t.Errorf("Latency.Count = %d, want %d", snap.Latency.Count, total)
	}
	if snap.ChecksPassed+snap.ChecksFailed != total {
		t.Errorf("checks = %d, want %d", snap.ChecksPassed+snap.ChecksFailed, total)
	}
	if snap.ChecksPassed != total/2 {
		t.Errorf("ChecksPassed = %d, want %d", snap.ChecksPassed, total/2)
	}

	var perName int64
	for _, stats := range snap.RequestLatency {
		perName += stats.Count
	}
	if perName != total {
		t.Errorf("per-request counts sum = %d, want %d", perName, total)
	}
}

func TestSink_SnapshotIsCopy(t *testing.T) {
	sink := NewSink()
	sink.Record(scenario.IterationResult{
		Requests: []scenario.RequestRecord{okRequest("a", time.Millisecond, scenario.CheckResult{Name: "c", Passed: true})},
	})
	sink.SetPhase(schedule.PhaseRampUp)

	snap := sink.Snapshot()
	snap.StatusCodes[200] = 99
	snap.Checks["c"] = CheckStats{Passes: 99}
	snap.Phases[0].Phase = schedule.PhaseDone

	again := sink.Snapshot()
	if again.StatusCodes[200] != 1 {
		t.Errorf("StatusCodes mutated through snapshot: %v", again.StatusCodes)
	}
	if again.Checks["c"].Passes != 1 {
		t.Errorf("Checks mutated through snapshot: %v", again.Checks)
	}
	if again.Phases[0].Phase != schedule.PhaseRampUp {
		t.Errorf("Phases mutated through snapshot: %v", again.Phases)
	}
}

func TestSink_CrashesAndForcedStops(t *testing.T) {
	sink := NewSink()

	sink.RecordCrash(errors.New("boom"))
	sink.RecordCrash(errors.New("boom"))
	sink.RecordCrash(nil)
	sink.RecordForcedStops(3)
	sink.RecordForcedStops(0)

	snap := sink.Snapshot()
	if snap.Crashes != 3 {
		t.Errorf("Crashes = %d, want 3", snap.Crashes)
	}
	if snap.CrashReasons["boom"] != 2 || snap.CrashReasons["unknown"] != 1 {
		t.Errorf("CrashReasons = %v", snap.CrashReasons)
	}
	if snap.ForcedStops != 3 {
		t.Errorf("ForcedStops = %d, want 3", snap.ForcedStops)
	}
	if snap.FailedRequests != 0 {
		t.Errorf("crashes must not count as failed requests, got %d", snap.FailedRequests)
	}
}

func TestSink_PhasesAndGauge(t *testing.T) {
	sink := NewSink()

	sink.SetPhase(schedule.PhaseRampUp)
	sink.SetPhase(schedule.PhaseRampUp)
	sink.SetPhase(schedule.PhaseSteady)
	sink.SetActiveVUs(10)
	sink.SetActiveVUs(4)

	snap := sink.Snapshot()
	if len(snap.Phases) != 2 {
		t.Fatalf("len(Phases) = %d, want 2", len(snap.Phases))
	}
	if snap.Phase != schedule.PhaseSteady {
		t.Errorf("Phase = %v, want %v", snap.Phase, schedule.PhaseSteady)
	}
	if snap.ActiveVUs != 4 || snap.PeakVUs != 10 {
		t.Errorf("ActiveVUs/PeakVUs = %d/%d, want 4/10", snap.ActiveVUs, snap.PeakVUs)
	}
}
