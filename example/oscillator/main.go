package main

import (
	"context"
	"fmt"
	"os"

	"github.com/goatx/falsify"
	"github.com/goatx/falsify/internal/models"
	"github.com/goatx/falsify/paramset"
	"github.com/goatx/falsify/search"
	"github.com/goatx/falsify/simulator"
)

const spec = `
signal x, v
param tol=0.5

# the oscillator has settled within tol after six seconds
settles := alw_[6,10] (abs(x[t]) < tol)
`

func createOscillatorSession() (*falsify.Session, error) {
	domain, err := paramset.New(
		[]string{"x0", "zeta"},
		[][2]float64{{0.5, 1}, {0.05, 0.6}},
	)
	if err != nil {
		return nil, err
	}
	s, err := falsify.New(
		falsify.WithSimulator(models.Oscillator()),
		falsify.WithTimeSpan(simulator.TimeSpan{Start: 0, End: 10, Step: 0.05}),
		falsify.WithParamSet(domain),
	)
	if err != nil {
		return nil, err
	}
	if _, err := s.SetSpec(spec); err != nil {
		return nil, err
	}
	return s, nil
}

func main() {
	s, err := createOscillatorSession()
	if err != nil {
		panic(err)
	}
	f, err := s.Falsifier("settles", nil, search.Config{
		Corners: true,
		Local:   true,
		Budget:  search.Budget{Evaluations: 200},
	})
	if err != nil {
		panic(err)
	}
	res, err := f.Run(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Println("Weakly damped oscillators with a large initial offset should not settle in time.")
	falsify.WriteResult(os.Stdout, s.ParamSet().Names(), res)
}
