package main

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goatx/falsify/search"
)

func TestOscillator(t *testing.T) {
	s, err := createOscillatorSession()
	if err != nil {
		t.Fatalf("createOscillatorSession failed: %v", err)
	}
	f, err := s.Falsifier("settles", nil, search.Config{
		Corners: true,
		Budget:  search.Budget{Evaluations: 4},
	})
	if err != nil {
		t.Fatal(err)
	}
	res, err := f.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Falsified {
		t.Fatalf("Falsified = false, want a counterexample among the corners; best %+v", res.Best)
	}
	// Largest offset and weakest damping: |x| peaks near exp(-0.05*2pi) ~ 0.73.
	want := []float64{1, 0.05}
	if diff := cmp.Diff(want, res.Best.Values, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Best mismatch (-want +got):\n%s", diff)
	}
	if res.Best.Objective > -0.2 || res.Best.Objective < -0.25 {
		t.Errorf("Best objective = %g, want about -0.23", res.Best.Objective)
	}
}
