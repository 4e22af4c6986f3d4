package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/goatx/falsify"
)

func TestRampCheck(t *testing.T) {
	s, err := createRampSession()
	if err != nil {
		t.Fatalf("createRampSession failed: %v", err)
	}

	var buf bytes.Buffer
	if err := s.Debug(context.Background(), &buf, "safe"); err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	var data struct {
		Points []struct {
			Robustness float64 `json:"robustness"`
		} `json:"points"`
		Summary falsify.Summary `json:"summary"`
	}
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON: %v", err)
	}

	// y(5) = 5*rate for rate 0, 0.25, ..., 1
	var got []float64
	for _, p := range data.Points {
		got = append(got, p.Robustness)
	}
	want := []float64{4, 2.75, 1.5, 0.25, -1}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("robustness mismatch (-want +got):\n%s", diff)
	}
	if data.Summary.Satisfied != 4 || data.Summary.Violated != 1 {
		t.Errorf("summary = %+v, want 4 satisfied and 1 violated", data.Summary)
	}
}
