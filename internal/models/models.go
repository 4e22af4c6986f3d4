// Package models provides reference dynamical systems for the CLI and
// tests.
package models

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/goatx/falsify/simulator"
)

// ErrUnknownModel indicates a model name with no built-in definition.
var ErrUnknownModel = errors.New("models: unknown model")

var builtin = map[string]func() *simulator.ODE{
	"decay":      Decay,
	"oscillator": Oscillator,
	"ramp":       Ramp,
}

// Names returns the built-in model names in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(builtin))
}

// Lookup returns a fresh instance of the named model.
func Lookup(name string) (*simulator.ODE, error) {
	mk, ok := builtin[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownModel, name, Names())
	}
	return mk(), nil
}

// Decay is x' = -k x with x(0) = x0.
func Decay() *simulator.ODE {
	return &simulator.ODE{
		States: []string{"x"},
		Init: func(p map[string]float64) []float64 {
			return []float64{p["x0"]}
		},
		Deriv: func(_ float64, x []float64, p map[string]float64, dx []float64) {
			dx[0] = -p["k"] * x[0]
		},
	}
}

// Oscillator is the damped oscillator x'' + 2 zeta omega x' + omega^2 x = 0
// with position x and velocity v. omega defaults to 1.
func Oscillator() *simulator.ODE {
	return &simulator.ODE{
		States: []string{"x", "v"},
		Init: func(p map[string]float64) []float64 {
			return []float64{p["x0"], p["v0"]}
		},
		Deriv: func(_ float64, x []float64, p map[string]float64, dx []float64) {
			omega, ok := p["omega"]
			if !ok {
				omega = 1
			}
			dx[0] = x[1]
			dx[1] = -2*p["zeta"]*omega*x[1] - omega*omega*x[0]
		},
	}
}

// Ramp is y' = rate with y(0) = y0, saturating at limit when limit > 0.
func Ramp() *simulator.ODE {
	return &simulator.ODE{
		States: []string{"y"},
		Init: func(p map[string]float64) []float64 {
			return []float64{p["y0"]}
		},
		Deriv: func(_ float64, x []float64, p map[string]float64, dx []float64) {
			dx[0] = p["rate"]
			if limit := p["limit"]; limit > 0 && x[0] >= limit && dx[0] > 0 {
				dx[0] = 0
			}
		},
	}
}
