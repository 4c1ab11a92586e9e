// Package metrics aggregates iteration results into run-wide statistics.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/surge/internal/schedule"
	"github.com/wesleyorama2/surge/internal/scenario"
	"github.com/wesleyorama2/surge/internal/transport"
)

// Histogram range: 1 microsecond to 1 hour, 3 significant figures.
const (
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// Sink receives iteration results from every virtual user.
//
// # Thread Safety
//
// Sink is safe for concurrent use. Every write and Snapshot take the same
// mutex, so a snapshot never observes half of a recorded iteration.
type Sink struct {
	mu sync.Mutex

	latency      *hdrhistogram.Histogram
	requestHists map[string]*hdrhistogram.Histogram

	iterations        int64
	iterationDuration time.Duration
	requests          int64
	failedRequests    int64
	bytes             int64
	errorsByKind      map[transport.ErrorKind]int64
	statusCodes       map[int]int64

	checks       map[string]*CheckStats
	checksPassed int64
	checksFailed int64

	crashes      int64
	crashReasons map[string]int64
	forcedStops  int64

	activeVUs int
	peakVUs   int

	phase        schedule.Phase
	phaseHistory []PhaseChange

	startTime time.Time
}

// PhaseChange records when the run entered a phase.
type PhaseChange struct {
	Phase     schedule.Phase `json:"phase"`
	Timestamp time.Time      `json:"timestamp"`
	Requests  int64          `json:"requests"`
}

// CheckStats counts the outcomes of one named check.
type CheckStats struct {
	Passes int64 `json:"passes"`
	Fails  int64 `json:"fails"`
}

// NewSink creates an empty sink. Rates are computed from the time of this
// call until the snapshot is taken.
func NewSink() *Sink {
	return &Sink{
		latency:      newHistogram(),
		requestHists: make(map[string]*hdrhistogram.Histogram),
		errorsByKind: make(map[transport.ErrorKind]int64),
		statusCodes:  make(map[int]int64),
		checks:       make(map[string]*CheckStats),
		crashReasons: make(map[string]int64),
		phase:        schedule.PhaseInit,
		startTime:    time.Now(),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)
}

// Record adds one finished iteration.
func (s *Sink) Record(result scenario.IterationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.iterations++
	s.iterationDuration += result.Duration

	for _, req := range result.Requests {
		s.requests++
		s.bytes += req.BytesReceived

		if req.Failed() {
			s.failedRequests++
			kind := req.ErrorKind
			if kind == transport.KindNone {
				kind = transport.KindUnknown
			}
			s.errorsByKind[kind]++
		} else {
			s.statusCodes[req.StatusCode]++
		}

		micros := clamp(req.Latency.Microseconds())
		// RecordValue only fails outside the histogram range.
		_ = s.latency.RecordValue(micros)

		if req.Name != "" {
			hist, ok := s.requestHists[req.Name]
			if !ok {
				hist = newHistogram()
				s.requestHists[req.Name] = hist
			}
			_ = hist.RecordValue(micros)
		}
	}

	result.EachCheck(func(c scenario.CheckResult) {
		stats, ok := s.checks[c.Name]
		if !ok {
			stats = &CheckStats{}
			s.checks[c.Name] = stats
		}
		if c.Passed {
			stats.Passes++
			s.checksPassed++
		} else {
			stats.Fails++
			s.checksFailed++
		}
	})
}

func clamp(micros int64) int64 {
	if micros < histogramMin {
		return histogramMin
	}
	if micros > histogramMax {
		return histogramMax
	}
	return micros
}

// RecordCrash counts a virtual user that ended because its scenario failed.
func (s *Sink) RecordCrash(err error) {
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.crashes++
	s.crashReasons[reason]++
}

// RecordForcedStops counts virtual users that were terminated after the
// graceful stop period expired.
func (s *Sink) RecordForcedStops(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forcedStops += int64(n)
}

// SetActiveVUs updates the active virtual user gauge.
func (s *Sink) SetActiveVUs(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeVUs = n
	if n > s.peakVUs {
		s.peakVUs = n
	}
}

// SetPhase records a phase transition. Setting the current phase again is a
// no-op.
func (s *Sink) SetPhase(phase schedule.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == phase {
		return
	}
	s.phase = phase
	s.phaseHistory = append(s.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  s.requests,
	})
}

// Snapshot returns a point-in-time copy of every aggregate.
func (s *Sink) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(s.startTime)

	snap := &Snapshot{
		Iterations:     s.iterations,
		Requests:       s.requests,
		FailedRequests: s.failedRequests,
		Bytes:          s.bytes,
		ErrorsByKind:   make(map[transport.ErrorKind]int64, len(s.errorsByKind)),
		StatusCodes:    make(map[int]int64, len(s.statusCodes)),
		Checks:         make(map[string]CheckStats, len(s.checks)),
		ChecksPassed:   s.checksPassed,
		ChecksFailed:   s.checksFailed,
		Latency:        latencyStats(s.latency),
		RequestLatency: make(map[string]LatencyStats, len(s.requestHists)),
		Crashes:        s.crashes,
		CrashReasons:   make(map[string]int64, len(s.crashReasons)),
		ForcedStops:    s.forcedStops,
		ActiveVUs:      s.activeVUs,
		PeakVUs:        s.peakVUs,
		Phase:          s.phase,
		Phases:         make([]PhaseChange, len(s.phaseHistory)),
		StartTime:      s.startTime,
		Elapsed:        elapsed,
		Timestamp:      now,
	}

	for k, v := range s.errorsByKind {
		snap.ErrorsByKind[k] = v
	}
	for k, v := range s.statusCodes {
		snap.StatusCodes[k] = v
	}
	for name, c := range s.checks {
		snap.Checks[name] = *c
	}
	for name, hist := range s.requestHists {
		snap.RequestLatency[name] = latencyStats(hist)
	}
	for k, v := range s.crashReasons {
		snap.CrashReasons[k] = v
	}
	copy(snap.Phases, s.phaseHistory)

	if s.iterations > 0 {
		snap.IterationDurationMean = s.iterationDuration / time.Duration(s.iterations)
	}
	if s.requests > 0 {
		snap.RequestFailRate = float64(s.failedRequests) / float64(s.requests)
	}
	if total := s.checksPassed + s.checksFailed; total > 0 {
		snap.CheckPassRate = float64(s.checksPassed) / float64(total)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		snap.RPS = float64(s.requests) / secs
		snap.IterationsPerSec = float64(s.iterations) / secs
	}

	return snap
}

func latencyStats(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    time.Duration(hist.Min()) * time.Microsecond,
		Max:    time.Duration(hist.Max()) * time.Microsecond,
		Mean:   time.Duration(hist.Mean()) * time.Microsecond,
		StdDev: time.Duration(hist.StdDev()) * time.Microsecond,
		P50:    time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(hist.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond,
		Count:  hist.TotalCount(),
	}
}

// Snapshot is an immutable view of the sink. Maps and slices are copies
// owned by the caller.
type Snapshot struct {
	Iterations            int64         `json:"iterations"`
	IterationDurationMean time.Duration `json:"iterationDurationMean"`
	IterationsPerSec      float64       `json:"iterationsPerSec"`

	Requests        int64                         `json:"requests"`
	FailedRequests  int64                         `json:"failedRequests"`
	RequestFailRate float64                       `json:"requestFailRate"`
	Bytes           int64                         `json:"bytes"`
	RPS             float64                       `json:"rps"`
	ErrorsByKind    map[transport.ErrorKind]int64 `json:"errorsByKind"`
	StatusCodes     map[int]int64                 `json:"statusCodes"`

	Checks        map[string]CheckStats `json:"checks"`
	ChecksPassed  int64                 `json:"checksPassed"`
	ChecksFailed  int64                 `json:"checksFailed"`
	CheckPassRate float64               `json:"checkPassRate"`

	Latency        LatencyStats            `json:"latency"`
	RequestLatency map[string]LatencyStats `json:"requestLatency"`

	Crashes      int64            `json:"crashes"`
	CrashReasons map[string]int64 `json:"crashReasons"`
	ForcedStops  int64            `json:"forcedStops"`

	ActiveVUs int            `json:"activeVUs"`
	PeakVUs   int            `json:"peakVUs"`
	Phase     schedule.Phase `json:"phase"`
	Phases    []PhaseChange  `json:"phases"`

	StartTime time.Time     `json:"startTime"`
	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
}

// CheckNames returns the recorded check names in sorted order.
func (s *Snapshot) CheckNames() []string {
	names := make([]string, 0, len(s.Checks))
	for name := range s.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}
