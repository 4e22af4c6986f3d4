package main

import (
	"context"
	"os"

	"github.com/goatx/falsify"
	"github.com/goatx/falsify/internal/models"
	"github.com/goatx/falsify/paramset"
	"github.com/goatx/falsify/simulator"
)

const spec = `
signal y
param ceiling=4
safe := alw_[0,5] (y[t] < ceiling)
`

func createRampSession() (*falsify.Session, error) {
	domain, err := paramset.New([]string{"rate"}, [][2]float64{{0, 1}})
	if err != nil {
		return nil, err
	}
	grid, err := domain.GridSample(5)
	if err != nil {
		return nil, err
	}
	s, err := falsify.New(
		falsify.WithSimulator(models.Ramp()),
		falsify.WithTimeSpan(simulator.TimeSpan{Start: 0, End: 5, Step: 0.5}),
		falsify.WithParamSet(grid),
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
	s, err := createRampSession()
	if err != nil {
		panic(err)
	}
	if _, err := s.Check(context.Background(), os.Stdout, "safe"); err != nil {
		panic(err)
	}
}
