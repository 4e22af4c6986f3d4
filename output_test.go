package falsify

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goatx/falsify/internal/test"
	"github.com/goatx/falsify/search"
)

func TestSummarize(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Summary
	}{
		{
			name:   "mixed",
			values: []float64{2, -1, math.NaN(), -1, 0},
			want: Summary{
				Formula: "phi", Points: 5, Satisfied: 2, Violated: 2, Undefined: 1,
				Min: &Extreme{Point: 1, Robustness: -1},
				Max: &Extreme{Point: 0, Robustness: 2},
			},
		},
		{
			name:   "all undefined",
			values: []float64{math.NaN(), math.NaN()},
			want:   Summary{Formula: "phi", Points: 2, Undefined: 2},
		},
		{
			name: "empty",
			want: Summary{Formula: "phi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Summarize("phi", tt.values)); diff != "" {
				t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriteSummary(t *testing.T) {
	sum := Summarize("safe", []float64{3, 1, -1, math.NaN()})
	sum.ExecutionTimeMs = 12

	var buf bytes.Buffer
	WriteSummary(&buf, sum)
	if diff := cmp.Diff(test.ReadGolden(t, "summary.golden"), buf.String()); diff != "" {
		t.Errorf("WriteSummary() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteResult(t *testing.T) {
	res := &search.Result{
		Falsified:   true,
		Stop:        search.StopFalsified,
		Best:        &search.Sample{Values: []float64{2, 3}, Objective: -1},
		Evaluations: 6,
		Faults:      1,
		Elapsed:     40 * time.Millisecond,
		State:       search.State{Evaluations: 26},
	}

	var buf bytes.Buffer
	WriteResult(&buf, []string{"gain", "limit"}, res)
	if diff := cmp.Diff(test.ReadGolden(t, "result.golden"), buf.String()); diff != "" {
		t.Errorf("WriteResult() mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteResult_CornersSkipped(t *testing.T) {
	res := &search.Result{
		Stop:           search.StopEvaluations,
		Best:           &search.Sample{Values: []float64{0}, Objective: 1},
		CornersSkipped: 5,
		Evaluations:    3,
		State:          search.State{Evaluations: 3, CornersSkipped: 5},
	}
	var buf bytes.Buffer
	WriteResult(&buf, []string{"gain"}, res)
	if !strings.Contains(buf.String(), "Corners Skipped: 5 (evaluation budget)\n") {
		t.Errorf("WriteResult() does not report skipped corners:\n%s", buf.String())
	}
}
