package paramset

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func box(t *testing.T, ranges ...[2]float64) *Set {
	t.Helper()
	names := []string{"a", "b", "c", "d"}[:len(ranges)]
	s, err := New(names, ranges, testMetrics())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSet_Refine(t *testing.T) {
	s := box(t, [2]float64{0, 4}, [2]float64{-1, 1}, [2]float64{3, 3})
	got, err := s.Refine(2)
	if err != nil {
		t.Fatalf("Refine() unexpected error: %v", err)
	}
	if got.Len() != 4 {
		t.Fatalf("Refine() Len() = %d, want 4", got.Len())
	}
	want := []Point{
		{Values: []float64{1, -0.5, 3}, Radius: []float64{1, 0.5, 0}},
		{Values: []float64{1, 0.5, 3}, Radius: []float64{1, 0.5, 0}},
		{Values: []float64{3, -0.5, 3}, Radius: []float64{1, 0.5, 0}},
		{Values: []float64{3, 0.5, 3}, Radius: []float64{1, 0.5, 0}},
	}
	if diff := cmp.Diff(want, got.points); diff != "" {
		t.Errorf("Refine() mismatch (-want +got):\n%s", diff)
	}
	lo, hi := got.Bounds()
	if diff := cmp.Diff([]float64{0, -1, 3}, lo); diff != "" {
		t.Errorf("Bounds() lo mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{4, 1, 3}, hi); diff != "" {
		t.Errorf("Bounds() hi mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_RefineErrors(t *testing.T) {
	s := box(t, [2]float64{0, 1})
	if _, err := s.Refine(0); !errors.Is(err, ErrInvalid) {
		t.Errorf("Refine(0) error = %v, want ErrInvalid", err)
	}
	if _, err := s.Refine(2, "zz"); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("Refine(2, zz) error = %v, want ErrUnknownParam", err)
	}

	parent := Point{Values: []float64{0}, Radius: []float64{1}}
	children := []Point{{Values: []float64{-0.5}, Radius: []float64{0.5}}}
	var ve *VolumeError
	if err := checkVolume(0, parent, children, []int{0}); !errors.As(err, &ve) || !errors.Is(err, ErrVolumeMismatch) {
		t.Errorf("checkVolume() error = %v, want VolumeError", err)
	}
}

func TestSet_RefineSingleDimension(t *testing.T) {
	s := box(t, [2]float64{0, 3}, [2]float64{0, 1})
	got, err := s.Refine(3, "a")
	if err != nil {
		t.Fatal(err)
	}
	want := []Point{
		{Values: []float64{0.5, 0.5}, Radius: []float64{0.5, 0.5}},
		{Values: []float64{1.5, 0.5}, Radius: []float64{0.5, 0.5}},
		{Values: []float64{2.5, 0.5}, Radius: []float64{0.5, 0.5}},
	}
	if diff := cmp.Diff(want, got.points); diff != "" {
		t.Errorf("Refine() mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_Select(t *testing.T) {
	s := box(t, [2]float64{0, 1})
	s, err := s.GridSample(3)
	if err != nil {
		t.Fatal(err)
	}
	s.StoreMemo("phi", []int{0, 1, 2}, []float64{10, 11, 12})

	got, err := s.Select([]int{2, 0})
	if err != nil {
		t.Fatalf("Select() unexpected error: %v", err)
	}
	want := []Point{
		{Values: []float64{1}, Radius: []float64{0}},
		{Values: []float64{0}, Radius: []float64{0}},
	}
	if diff := cmp.Diff(want, got.points); diff != "" {
		t.Errorf("Select() mismatch (-want +got):\n%s", diff)
	}
	for i, wantMemo := range []float64{12, 10} {
		if v, ok := got.Memo("phi", i); !ok || v != wantMemo {
			t.Errorf("Memo(phi, %d) = %v, %v; want %v", i, v, ok, wantMemo)
		}
	}
	if _, err := s.Select([]int{3}); !errors.Is(err, ErrBadIndex) {
		t.Errorf("Select([3]) error = %v, want ErrBadIndex", err)
	}
}

func TestSet_GridSample(t *testing.T) {
	s := box(t, [2]float64{0, 2}, [2]float64{10, 20}, [2]float64{7, 7})
	got, err := s.GridSample(2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Point{
		{Values: []float64{0, 10, 7}, Radius: []float64{0, 0, 0}},
		{Values: []float64{0, 20, 7}, Radius: []float64{0, 0, 0}},
		{Values: []float64{2, 10, 7}, Radius: []float64{0, 0, 0}},
		{Values: []float64{2, 20, 7}, Radius: []float64{0, 0, 0}},
	}
	if diff := cmp.Diff(want, got.points); diff != "" {
		t.Errorf("GridSample() mismatch (-want +got):\n%s", diff)
	}

	center, err := s.GridSample(1)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]Point{{Values: []float64{1, 15, 7}, Radius: []float64{0, 0, 0}}}, center.points); diff != "" {
		t.Errorf("GridSample(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_QuasiRandomSample(t *testing.T) {
	s := box(t, [2]float64{-1, 1}, [2]float64{0, 10})
	first, err := s.QuasiRandomSample(8, 5)
	if err != nil {
		t.Fatal(err)
	}
	again, err := s.QuasiRandomSample(8, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.points, again.points); diff != "" {
		t.Errorf("QuasiRandomSample() not deterministic (-first +again):\n%s", diff)
	}

	head, err := s.QuasiRandomSample(4, 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.points[:4], head.points); diff != "" {
		t.Errorf("QuasiRandomSample() prefix depends on n (-want +got):\n%s", diff)
	}

	next, err := s.QuasiRandomSample(8, 13)
	if err != nil {
		t.Fatal(err)
	}
	seen := map[[2]float64]bool{}
	for _, set := range []*Set{first, next} {
		for _, p := range set.points {
			key := [2]float64{p.Values[0], p.Values[1]}
			if seen[key] {
				t.Errorf("point %v repeated across advancing seeds", key)
			}
			seen[key] = true
			if p.Values[0] < -1 || p.Values[0] > 1 || p.Values[1] < 0 || p.Values[1] > 10 {
				t.Errorf("point %v outside the rectangle", key)
			}
		}
	}
	if _, err := s.QuasiRandomSample(0, 0); !errors.Is(err, ErrInvalid) {
		t.Errorf("QuasiRandomSample(0) error = %v, want ErrInvalid", err)
	}
}

func TestSet_Corners(t *testing.T) {
	s := box(t, [2]float64{0, 1}, [2]float64{5, 5}, [2]float64{-2, 2})
	got, err := s.Corners(16)
	if err != nil {
		t.Fatalf("Corners() unexpected error: %v", err)
	}
	want := []Point{
		{Values: []float64{0, 5, -2}, Radius: []float64{0, 0, 0}},
		{Values: []float64{0, 5, 2}, Radius: []float64{0, 0, 0}},
		{Values: []float64{1, 5, -2}, Radius: []float64{0, 0, 0}},
		{Values: []float64{1, 5, 2}, Radius: []float64{0, 0, 0}},
	}
	if diff := cmp.Diff(want, got.points); diff != "" {
		t.Errorf("Corners() mismatch (-want +got):\n%s", diff)
	}

	var ce *CornersError
	if _, err := s.Corners(3); !errors.As(err, &ce) || ce.Count != 4 || ce.Cap != 3 {
		t.Errorf("Corners(3) error = %v, want CornersError{4, 3}", err)
	}
}

func TestSet_Purge(t *testing.T) {
	s, err := New([]string{"k", "thr"}, [][2]float64{{0, 1}, {0, 1}}, WithSimParams("k"), testMetrics())
	if err != nil {
		t.Fatal(err)
	}
	s, err = s.SetValues([][]float64{{1, 0}, {1, 1}, {2, 0}})
	if err != nil {
		t.Fatal(err)
	}
	s.StoreMemo("phi", []int{0}, []float64{1})
	once := s.Purge()
	twice := once.Purge()
	if diff := cmp.Diff(once.Index(), twice.Index()); diff != "" {
		t.Errorf("Purge() not idempotent (-once +twice):\n%s", diff)
	}
	if diff := cmp.Diff(s.Index(), once.Index()); diff != "" {
		t.Errorf("Purge() changed the index (-want +got):\n%s", diff)
	}
	if _, ok := once.Memo("phi", 0); ok {
		t.Errorf("Purge() kept memo entries")
	}
}

func TestSet_SetValuesAndOverride(t *testing.T) {
	s := box(t, [2]float64{0, 1}, [2]float64{0, 1})
	if _, err := s.SetValues([][]float64{{1}}); !errors.Is(err, ErrInvalid) {
		t.Errorf("SetValues() short row error = %v, want ErrInvalid", err)
	}
	if _, err := s.SetValues([][]float64{{1, math.NaN()}}); !errors.Is(err, ErrInvalid) {
		t.Errorf("SetValues() NaN error = %v, want ErrInvalid", err)
	}

	got, err := s.Override(map[string]float64{"b": 0.25})
	if err != nil {
		t.Fatal(err)
	}
	want := []Point{{Values: []float64{0.5, 0.25}, Radius: []float64{0.5, 0}}}
	if diff := cmp.Diff(want, got.points, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Override() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0}, got.Uncertain()); diff != "" {
		t.Errorf("Uncertain() mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.Override(map[string]float64{"zz": 1}); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("Override() error = %v, want ErrUnknownParam", err)
	}
}
