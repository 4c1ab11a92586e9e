// Package scenario defines what a virtual user executes on every iteration.
//
// A Scenario is a user-supplied collaborator. It issues requests through the
// Iteration it is handed, attaches named checks to the responses, and may
// declare a pause to be taken after the iteration. The package also provides
// a declarative Scenario built from configuration (see FromSpec).
package scenario

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/wesleyorama2/surge/internal/transport"
)

// Scenario runs one iteration.
//
// Returning nil or a *transport.RequestError ends the iteration normally.
// Any other error is a scenario defect and stops the virtual user.
type Scenario interface {
	Run(ctx context.Context, it *Iteration) error
}

// Func adapts a function to the Scenario interface.
type Func func(ctx context.Context, it *Iteration) error

// Run calls f(ctx, it).
func (f Func) Run(ctx context.Context, it *Iteration) error {
	return f(ctx, it)
}

// PanicError wraps a panic recovered from a scenario.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("scenario panic: %v", e.Value)
}

// Execute runs one iteration of s, converting a panic into a *PanicError.
func Execute(ctx context.Context, s Scenario, it *Iteration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return s.Run(ctx, it)
}

// IsCrash reports whether err returned by Execute must stop the virtual user.
// Request errors are already recorded in the iteration and are not crashes.
func IsCrash(err error) bool {
	if err == nil {
		return false
	}
	var reqErr *transport.RequestError
	return !errors.As(err, &reqErr)
}
