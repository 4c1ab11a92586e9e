package scenario

import (
	"time"

	"github.com/wesleyorama2/surge/internal/transport"
)

// CheckResult is the outcome of one named assertion.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// RequestRecord captures one request of an iteration and what came back.
type RequestRecord struct {
	Name          string              `json:"name"`
	Method        string              `json:"method"`
	URL           string              `json:"url"`
	StatusCode    int                 `json:"statusCode"`
	Latency       time.Duration       `json:"latency"`
	BytesReceived int64               `json:"bytesReceived"`
	Err           error               `json:"-"`
	ErrorKind     transport.ErrorKind `json:"errorKind,omitempty"`
	Checks        []CheckResult       `json:"checks,omitempty"`
}

// Failed reports whether the request itself failed (no response).
func (r *RequestRecord) Failed() bool {
	return r.Err != nil
}

// IterationResult is the ordered record of one scenario iteration.
type IterationResult struct {
	VUID      int             `json:"vuId"`
	Iteration int64           `json:"iteration"`
	Start     time.Time       `json:"start"`
	Duration  time.Duration   `json:"duration"`
	Requests  []RequestRecord `json:"requests"`

	// Checks that were not attached to a request.
	Checks []CheckResult `json:"checks,omitempty"`

	// Pause declared by the scenario, taken after the iteration.
	Pause time.Duration `json:"pause,omitempty"`
}

// EachCheck calls fn for every check of the iteration in order.
func (r *IterationResult) EachCheck(fn func(CheckResult)) {
	for i := range r.Requests {
		for _, c := range r.Requests[i].Checks {
			fn(c)
		}
	}
	for _, c := range r.Checks {
		fn(c)
	}
}

// CheckCounts returns the number of passed and failed checks.
func (r *IterationResult) CheckCounts() (passed, failed int) {
	r.EachCheck(func(c CheckResult) {
		if c.Passed {
			passed++
		} else {
			failed++
		}
	})
	return passed, failed
}
