package simulator

import (
	"context"
	"fmt"
	"math"

	"github.com/goatx/falsify/signal"
)

// ODE integrates dx/dt = Deriv(t, x, p) with the classic fixed-step
// Runge-Kutta scheme and records every state on the output grid.
type ODE struct {
	// States names the state variables; they become the trajectory
	// channels.
	States []string

	// Init returns the initial state for a parameter assignment.
	Init func(p map[string]float64) []float64

	// Deriv writes the time derivative of x into dx.
	Deriv func(t float64, x []float64, p map[string]float64, dx []float64)

	// Substeps is the number of integration steps per output sample.
	// Zero means 10.
	Substeps int

	// Samples is the output grid size used when the span has no step.
	// Zero means 101.
	Samples int
}

// Simulate integrates the model over span. A state that becomes NaN or
// infinite ends the run with a *FaultError.
func (m *ODE) Simulate(ctx context.Context, params map[string]float64, span TimeSpan) (*signal.Trajectory, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}
	samples := m.Samples
	if samples == 0 {
		samples = 101
	}
	sub := m.Substeps
	if sub == 0 {
		sub = 10
	}

	x := m.Init(params)
	if len(x) != len(m.States) {
		return nil, fmt.Errorf("simulator: init returned %d states, want %d", len(x), len(m.States))
	}
	grid := span.Grid(samples)
	series := make([][]float64, len(x))
	for i := range series {
		series[i] = make([]float64, len(grid))
		series[i][0] = x[i]
	}

	st := newRK4(len(x))
	for k := 1; k < len(grid); k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := grid[k-1]
		dt := (grid[k] - t) / float64(sub)
		for range sub {
			st.step(m.Deriv, t, x, params, dt)
			t += dt
		}
		for i, v := range x {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &FaultError{Time: grid[k], Params: params, Wrapped: fmt.Errorf("state %q diverged", m.States[i])}
			}
			series[i][k] = v
		}
	}
	return signal.New(m.States, grid, series)
}

type rk4 struct {
	k1, k2, k3, k4, tmp []float64
}

func newRK4(n int) *rk4 {
	return &rk4{
		k1: make([]float64, n), k2: make([]float64, n),
		k3: make([]float64, n), k4: make([]float64, n),
		tmp: make([]float64, n),
	}
}

// step advances x in place by one RK4 step of size dt.
func (r *rk4) step(f func(float64, []float64, map[string]float64, []float64), t float64, x []float64, p map[string]float64, dt float64) {
	addScaled := func(k []float64, h float64) []float64 {
		for i := range x {
			r.tmp[i] = x[i] + h*k[i]
		}
		return r.tmp
	}
	f(t, x, p, r.k1)
	f(t+0.5*dt, addScaled(r.k1, 0.5*dt), p, r.k2)
	f(t+0.5*dt, addScaled(r.k2, 0.5*dt), p, r.k3)
	f(t+dt, addScaled(r.k3, dt), p, r.k4)
	for i := range x {
		x[i] += (dt / 6.0) * (r.k1[i] + 2.0*r.k2[i] + 2.0*r.k3[i] + r.k4[i])
	}
}
