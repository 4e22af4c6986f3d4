package signal

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestTrajectory(t *testing.T) *Trajectory {
	t.Helper()
	tr, err := New(
		[]string{"x", "y"},
		[]float64{0, 1, 2, 4},
		[][]float64{
			{0, 2, 2, -2},
			{1, 1, 1, 1},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestTrajectory_Value(t *testing.T) {
	tr := newTestTrajectory(t)
	tests := []struct {
		name    string
		ch      int
		t       float64
		want    float64
		wantErr error
	}{
		{name: "first sample", ch: 0, t: 0, want: 0},
		{name: "between samples", ch: 0, t: 0.5, want: 1},
		{name: "exact inner sample", ch: 0, t: 2, want: 2},
		{name: "long segment", ch: 0, t: 3, want: 0},
		{name: "last sample", ch: 0, t: 4, want: -2},
		{name: "second channel", ch: 1, t: 3.7, want: 1},
		{name: "before start", ch: 0, t: -0.1, wantErr: ErrOutOfDomain},
		{name: "after end", ch: 0, t: 4.0001, wantErr: ErrOutOfDomain},
		{name: "bad channel", ch: 5, t: 1, wantErr: ErrInvalidTrajectory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Value(tt.ch, tt.t)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Value() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Value() unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
				t.Errorf("Value() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTrajectory_DomainErrorCarriesSpan(t *testing.T) {
	tr := newTestTrajectory(t)
	_, err := tr.At(7)
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatalf("At() error = %v, want *DomainError", err)
	}
	want := DomainError{Time: 7, Start: 0, End: 4}
	if diff := cmp.Diff(want, *de); diff != "" {
		t.Errorf("DomainError mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		names  []string
		times  []float64
		series [][]float64
	}{
		{name: "empty grid", names: []string{"x"}, times: nil, series: [][]float64{nil}},
		{name: "not ascending", names: []string{"x"}, times: []float64{0, 0}, series: [][]float64{{1, 2}}},
		{name: "length mismatch", names: []string{"x"}, times: []float64{0, 1}, series: [][]float64{{1}}},
		{name: "names mismatch", names: []string{"x", "y"}, times: []float64{0}, series: [][]float64{{1}}},
		{name: "duplicate name", names: []string{"x", "x"}, times: []float64{0}, series: [][]float64{{1}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.names, tt.times, tt.series); !errors.Is(err, ErrInvalidTrajectory) {
				t.Errorf("New() error = %v, want ErrInvalidTrajectory", err)
			}
		})
	}
}

func TestFailed(t *testing.T) {
	tr := Failed([]string{"x"}, 0, 10)
	if !tr.Failed() {
		t.Fatal("Failed() trajectory not marked failed")
	}
	v, err := tr.Value(0, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(v) {
		t.Errorf("Value() = %v, want NaN", v)
	}
	if newTestTrajectory(t).Failed() {
		t.Error("clean trajectory marked failed")
	}
}

func TestMergeBreakpoints(t *testing.T) {
	got := MergeBreakpoints([]float64{0, 2, 4}, []float64{1, 2, 3}, nil, []float64{4, 5})
	want := []float64{0, 1, 2, 3, 4, 5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MergeBreakpoints() mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	in := "time,x,y\n# comment\n0,1,nan\n0.5,2,\n1,3,4\n"
	tr, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"x", "y"}, tr.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if !tr.Failed() {
		t.Error("NaN cells should mark the trajectory failed")
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, tr); err != nil {
		t.Fatal(err)
	}
	again, err := ReadCSV(&buf)
	if err != nil {
		t.Fatal(err)
	}
	opts := cmpopts.EquateNaNs()
	if diff := cmp.Diff(tr.Breakpoints(), again.Breakpoints(), opts); diff != "" {
		t.Errorf("time mismatch (-want +got):\n%s", diff)
	}
	for ch := range tr.Names() {
		if diff := cmp.Diff(tr.Samples(ch), again.Samples(ch), opts); diff != "" {
			t.Errorf("channel %d mismatch (-want +got):\n%s", ch, diff)
		}
	}
}
