package models

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goatx/falsify/simulator"
)

func TestLookup(t *testing.T) {
	if diff := cmp.Diff([]string{"decay", "oscillator", "ramp"}, Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if _, err := Lookup("pendulum"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Lookup(pendulum) error = %v, want ErrUnknownModel", err)
	}
}

func TestModels(t *testing.T) {
	span := simulator.TimeSpan{Start: 0, End: 2, Step: 0.5}
	tests := []struct {
		name   string
		params map[string]float64
		at     float64
		want   float64
	}{
		{name: "decay", params: map[string]float64{"x0": 1, "k": 1}, at: 2, want: math.Exp(-2)},
		{name: "oscillator", params: map[string]float64{"x0": 1}, at: 2, want: math.Cos(2)},
		{name: "ramp", params: map[string]float64{"y0": 1, "rate": 0.5}, at: 2, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Lookup(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			tr, err := m.Simulate(context.Background(), tt.params, span)
			if err != nil {
				t.Fatalf("Simulate() unexpected error: %v", err)
			}
			got, err := tr.Value(0, tt.at)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("x(%g) = %g, want %g", tt.at, got, tt.want)
			}
		})
	}
}
