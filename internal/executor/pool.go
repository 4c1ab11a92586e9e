// Package executor keeps a pool of virtual users at a target size.
package executor

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/surge/internal/vu"
)

// DefaultGracefulStop is how long StopAll waits before forcing VUs to stop.
const DefaultGracefulStop = 30 * time.Second

// Factory creates the virtual user with the given id.
type Factory func(id int) *vu.VirtualUser

// Sink receives crash and forced-stop accounting from the pool.
type Sink interface {
	RecordCrash(err error)
	RecordForcedStops(n int)
}

// StopReport summarises a StopAll call.
type StopReport struct {
	// Drained VUs exited on their own within the grace period.
	Drained int `json:"drained"`
	// Forced VUs were cancelled after the grace period expired.
	Forced int `json:"forced"`
	// Crashed VUs ended with a scenario error while draining.
	Crashed int `json:"crashed"`
}

// Pool spawns and drains virtual users.
//
// Every VU runs in its own goroutine with its own cancellable context.
// Reconcile only ever asks VUs to stop; cancellation is reserved for
// StopAll once the grace period has expired.
type Pool struct {
	factory Factory
	sink    Sink
	logger  *zap.Logger

	mu       sync.Mutex
	active   []*vu.VirtualUser
	draining map[*vu.VirtualUser]struct{}
	nextID   int
	stopped  bool

	wg sync.WaitGroup
}

// NewPool creates an empty pool. A nil logger disables logging.
func NewPool(factory Factory, sink Sink, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		factory:  factory,
		sink:     sink,
		logger:   logger.With(zap.String("component", "executor")),
		draining: make(map[*vu.VirtualUser]struct{}),
	}
}

// Reconcile grows or shrinks the active set to target and returns the new
// active count. Excess VUs are drained newest first. After StopAll it does
// nothing.
func (p *Pool) Reconcile(target int) int {
	if target < 0 {
		target = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return len(p.active)
	}

	current := len(p.active)
	switch {
	case target > current:
		for i := current; i < target; i++ {
			p.nextID++
			v := p.factory(p.nextID)
			p.active = append(p.active, v)
			p.wg.Add(1)
			go p.run(v)
		}
	case target < current:
		for i := current - 1; i >= target; i-- {
			v := p.active[i]
			v.RequestStop()
			p.draining[v] = struct{}{}
		}
		clear(p.active[target:])
		p.active = p.active[:target]
	}

	return len(p.active)
}

func (p *Pool) run(v *vu.VirtualUser) {
	defer p.wg.Done()

	outcome, err := v.Run(context.Background())

	p.mu.Lock()
	p.remove(v)
	p.mu.Unlock()

	if outcome == vu.OutcomeCrashed {
		p.logger.Warn("virtual user crashed",
			zap.Int("vu", v.ID),
			zap.Int64("iterations", v.Iterations()),
			zap.Error(err))
		if p.sink != nil {
			p.sink.RecordCrash(err)
		}
	}
}

// remove drops v from the active and draining sets. Callers hold p.mu.
func (p *Pool) remove(v *vu.VirtualUser) {
	delete(p.draining, v)
	if i := slices.Index(p.active, v); i >= 0 {
		p.active = slices.Delete(p.active, i, i+1)
	}
}

// ActiveCount returns the number of running VUs not asked to stop.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// DrainingCount returns the number of VUs asked to stop that are still
// finishing their current iteration.
func (p *Pool) DrainingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.draining)
}

// StopAll signals every VU to stop and waits up to grace for them to exit.
// VUs still running after grace are cancelled and counted as forced.
func (p *Pool) StopAll(grace time.Duration) StopReport {
	if grace < 0 {
		grace = 0
	}

	p.mu.Lock()
	p.stopped = true
	for _, v := range p.active {
		v.RequestStop()
		p.draining[v] = struct{}{}
	}
	p.active = nil
	stopping := make([]*vu.VirtualUser, 0, len(p.draining))
	for v := range p.draining {
		stopping = append(stopping, v)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		p.mu.Lock()
		remaining := len(p.draining)
		for v := range p.draining {
			v.Cancel()
		}
		p.mu.Unlock()

		p.logger.Warn("graceful stop period expired, cancelling virtual users",
			zap.Duration("grace", grace),
			zap.Int("remaining", remaining))
		<-done
	}

	var report StopReport
	for _, v := range stopping {
		outcome, _ := v.Result()
		switch outcome {
		case vu.OutcomeForced:
			report.Forced++
		case vu.OutcomeCrashed:
			report.Crashed++
		default:
			report.Drained++
		}
	}

	if report.Forced > 0 && p.sink != nil {
		p.sink.RecordForcedStops(report.Forced)
	}

	p.logger.Debug("pool stopped",
		zap.Int("drained", report.Drained),
		zap.Int("forced", report.Forced),
		zap.Int("crashed", report.Crashed))

	return report
}
