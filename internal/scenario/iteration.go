package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/wesleyorama2/surge/internal/transport"
)

// Iteration is the handle a Scenario uses during one iteration. It is owned
// by a single virtual user and is not safe for concurrent use.
type Iteration struct {
	vuID      int
	number    int64
	transport transport.Transport
	vars      *Vars
	stop      <-chan struct{}

	start   time.Time
	records []RequestRecord
	checks  []CheckResult
	pause   time.Duration
}

// NewIteration prepares iteration number n for virtual user vuID. stop is
// closed when the virtual user has been asked to stop; it shortens Think.
func NewIteration(vuID int, n int64, tr transport.Transport, vars *Vars, stop <-chan struct{}) *Iteration {
	if vars == nil {
		vars = NewVars()
	}
	return &Iteration{
		vuID:      vuID,
		number:    n,
		transport: tr,
		vars:      vars,
		stop:      stop,
		start:     time.Now(),
	}
}

// VUID returns the id of the virtual user running the iteration.
func (it *Iteration) VUID() int { return it.vuID }

// Number returns the 1-based iteration number within the virtual user.
func (it *Iteration) Number() int64 { return it.number }

// Vars returns the virtual user's variable scope. Values survive across
// iterations of the same virtual user.
func (it *Iteration) Vars() *Vars { return it.vars }

// Do issues req and records the outcome. A malformed request is returned
// without being recorded, since it never reached the network.
func (it *Iteration) Do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	req = req.Clone()
	started := time.Now()

	resp, err := it.transport.Do(ctx, req)
	if err != nil && errors.Is(err, transport.ErrMalformedRequest) {
		return nil, err
	}

	rec := RequestRecord{
		Name:   req.MetricName(),
		Method: req.Method,
		URL:    req.URL,
	}
	if err != nil {
		rec.Err = err
		rec.ErrorKind = transport.Classify(err)
		rec.Latency = time.Since(started)
	} else {
		rec.StatusCode = resp.StatusCode
		rec.Latency = resp.Latency
		rec.BytesReceived = int64(len(resp.Body))
	}
	it.records = append(it.records, rec)

	return resp, err
}

// Get is shorthand for a GET request.
func (it *Iteration) Get(ctx context.Context, url string) (*transport.Response, error) {
	return it.Do(ctx, &transport.Request{Method: "GET", URL: url})
}

// Check records a named assertion against the most recent request, or
// against the iteration if no request was made yet. It returns passed.
func (it *Iteration) Check(name string, passed bool) bool {
	c := CheckResult{Name: name, Passed: passed}
	if n := len(it.records); n > 0 {
		it.records[n-1].Checks = append(it.records[n-1].Checks, c)
	} else {
		it.checks = append(it.checks, c)
	}
	return passed
}

// Pause declares a pause taken after the iteration completes. The last call
// wins.
func (it *Iteration) Pause(d time.Duration) {
	if d < 0 {
		d = 0
	}
	it.pause = d
}

// Think waits d between requests of the same iteration. It returns early
// when the virtual user is asked to stop or ctx is done, so the rest of the
// iteration runs without delay.
func (it *Iteration) Think(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-it.stop:
	case <-timer.C:
	}
}

// Result freezes the iteration into an IterationResult.
func (it *Iteration) Result() IterationResult {
	records := make([]RequestRecord, len(it.records))
	copy(records, it.records)

	var checks []CheckResult
	if len(it.checks) > 0 {
		checks = append(checks, it.checks...)
	}

	return IterationResult{
		VUID:      it.vuID,
		Iteration: it.number,
		Start:     it.start,
		Duration:  time.Since(it.start),
		Requests:  records,
		Checks:    checks,
		Pause:     it.pause,
	}
}
