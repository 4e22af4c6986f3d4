// Package simulator defines the contract between the falsification engine
// and the system under study, plus adapters for in-process functions,
// fixed-step ODE models and external executables.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/goatx/falsify/signal"
)

var (
	// ErrFault indicates a simulation that could not produce a trajectory.
	// Callers record it as a failed trajectory rather than aborting.
	ErrFault = errors.New("simulator: simulation fault")

	// ErrInvalidSpan indicates a time span with End before Start or a
	// non-positive step.
	ErrInvalidSpan = errors.New("simulator: invalid time span")
)

// FaultError carries the time and parameters at which a simulation failed.
type FaultError struct {
	Time    float64
	Params  map[string]float64
	Wrapped error
}

func (e *FaultError) Error() string {
	if e.Wrapped == nil {
		return fmt.Sprintf("%v at t=%g", ErrFault, e.Time)
	}
	return fmt.Sprintf("%v at t=%g: %v", ErrFault, e.Time, e.Wrapped)
}

func (e *FaultError) Unwrap() []error { return []error{ErrFault, e.Wrapped} }

// TimeSpan is the simulated horizon. Step is the output sampling period; a
// zero Step lets the simulator choose its own grid.
type TimeSpan struct {
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	Step  float64 `json:"step,omitempty" yaml:"step"`
}

// Validate checks that the span is well-formed.
func (s TimeSpan) Validate() error {
	if math.IsNaN(s.Start) || math.IsNaN(s.End) || s.End < s.Start {
		return fmt.Errorf("%w: [%g, %g]", ErrInvalidSpan, s.Start, s.End)
	}
	if s.Step < 0 || math.IsNaN(s.Step) {
		return fmt.Errorf("%w: step %g", ErrInvalidSpan, s.Step)
	}
	return nil
}

// Grid returns evenly spaced sample times from Start to End, no farther
// apart than Step. With a zero Step it returns n times.
func (s TimeSpan) Grid(n int) []float64 {
	if s.End == s.Start {
		return []float64{s.Start}
	}
	if s.Step > 0 {
		n = int(math.Ceil((s.End-s.Start)/s.Step-1e-9)) + 1
	}
	if n < 2 {
		n = 2
	}
	return floats.Span(make([]float64, n), s.Start, s.End)
}

// Simulator produces a trajectory for one parameter assignment. It must be
// deterministic for a given assignment and span, and safe for concurrent
// use.
type Simulator interface {
	Simulate(ctx context.Context, params map[string]float64, span TimeSpan) (*signal.Trajectory, error)
}

// Func adapts an ordinary function to the Simulator interface.
type Func func(ctx context.Context, params map[string]float64, span TimeSpan) (*signal.Trajectory, error)

// Simulate calls f.
func (f Func) Simulate(ctx context.Context, params map[string]float64, span TimeSpan) (*signal.Trajectory, error) {
	return f(ctx, params, span)
}
