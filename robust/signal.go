package robust

import (
	"iter"
	"math"
	"sort"

	"github.com/goatx/falsify/signal"
)

// Signal is a piecewise-linear robustness signal. Time is strictly
// ascending; Value holds the robustness at each breakpoint and may contain
// NaN where the underlying trajectory failed. A Signal with no breakpoints
// has an empty domain.
type Signal struct {
	Time  []float64
	Value []float64
}

// Len returns the number of breakpoints.
func (s Signal) Len() int { return len(s.Time) }

// Empty reports whether the signal has an empty domain.
func (s Signal) Empty() bool { return len(s.Time) == 0 }

// Start returns the first breakpoint. It panics on an empty signal.
func (s Signal) Start() float64 { return s.Time[0] }

// End returns the last breakpoint. It panics on an empty signal.
func (s Signal) End() float64 { return s.Time[len(s.Time)-1] }

// At returns the robustness at t, interpolating linearly between
// breakpoints. Times outside the domain fail with signal.ErrOutOfDomain.
func (s Signal) At(t float64) (float64, error) {
	if s.Empty() {
		return 0, &signal.DomainError{Time: t, Start: math.NaN(), End: math.NaN()}
	}
	if math.IsNaN(t) || t < s.Start() || t > s.End() {
		return 0, &signal.DomainError{Time: t, Start: s.Start(), End: s.End()}
	}
	return s.value(t), nil
}

// From yields (time, robustness) pairs left to right, starting at t and
// continuing with every later breakpoint. Nothing is yielded when t lies
// outside the domain. Each call starts a fresh traversal.
func (s Signal) From(t float64) iter.Seq2[float64, float64] {
	return func(yield func(float64, float64) bool) {
		v, err := s.At(t)
		if err != nil {
			return
		}
		if !yield(t, v) {
			return
		}
		for i := sort.Search(len(s.Time), func(i int) bool { return s.Time[i] > t }); i < len(s.Time); i++ {
			if !yield(s.Time[i], s.Value[i]) {
				return
			}
		}
	}
}

// value interpolates at t, clamping t into the domain. Callers guarantee
// t is inside the domain up to rounding.
func (s Signal) value(t float64) float64 {
	n := len(s.Time)
	if t <= s.Time[0] {
		return s.Value[0]
	}
	if t >= s.Time[n-1] {
		return s.Value[n-1]
	}
	i := sort.SearchFloat64s(s.Time, t)
	if s.Time[i] == t {
		return s.Value[i]
	}
	t0, t1 := s.Time[i-1], s.Time[i]
	v0, v1 := s.Value[i-1], s.Value[i]
	return v0 + (t-t0)/(t1-t0)*(v1-v0)
}

func (s Signal) neg() Signal {
	out := Signal{Time: s.Time, Value: make([]float64, len(s.Value))}
	for i, v := range s.Value {
		out.Value[i] = -v
	}
	return out
}

// sample evaluates s on a grid that lies inside its domain.
func (s Signal) sample(grid []float64) Signal {
	out := Signal{Time: grid, Value: make([]float64, len(grid))}
	for i, t := range grid {
		out.Value[i] = s.value(t)
	}
	return out
}

func constant(v, start, end float64) Signal {
	if end > start {
		return Signal{Time: []float64{start, end}, Value: []float64{v, v}}
	}
	return Signal{Time: []float64{start}, Value: []float64{v}}
}

// combine applies fn pointwise over the intersection of the domains of a
// and b, on the union of their breakpoints. With crossings set, the zero
// crossings of a-b are added so that min, max and |a-b| stay exact.
func combine(a, b Signal, crossings bool, fn func(x, y float64) float64) Signal {
	if a.Empty() || b.Empty() {
		return Signal{}
	}
	lo := math.Max(a.Start(), b.Start())
	hi := math.Min(a.End(), b.End())
	if lo > hi {
		return Signal{}
	}
	grid := clip(signal.MergeBreakpoints(a.Time, b.Time), lo, hi)
	if crossings {
		grid = withCrossings(grid, func(t float64) float64 { return a.value(t) - b.value(t) })
	}
	out := Signal{Time: grid, Value: make([]float64, len(grid))}
	for i, t := range grid {
		out.Value[i] = fn(a.value(t), b.value(t))
	}
	return out
}

// withCrossings inserts the zero crossings of the piecewise-linear function
// d between consecutive grid points.
func withCrossings(grid []float64, d func(float64) float64) []float64 {
	if len(grid) < 2 {
		return grid
	}
	out := make([]float64, 0, len(grid))
	prev := d(grid[0])
	for i := 0; i < len(grid)-1; i++ {
		t0, t1 := grid[i], grid[i+1]
		out = append(out, t0)
		next := d(t1)
		if prev*next < 0 {
			tc := t0 + (t1-t0)*prev/(prev-next)
			if tc > t0 && tc < t1 {
				out = append(out, tc)
			}
		}
		prev = next
	}
	return append(out, grid[len(grid)-1])
}

// clip restricts a sorted grid to [lo, hi] and makes both ends
// breakpoints.
func clip(grid []float64, lo, hi float64) []float64 {
	out := make([]float64, 0, len(grid)+2)
	out = append(out, lo)
	for _, t := range grid {
		if t > lo && t < hi {
			out = append(out, t)
		}
	}
	if hi > lo {
		out = append(out, hi)
	}
	return out
}

func minimum(a, b Signal) Signal { return combine(a, b, true, math.Min) }

func maximum(a, b Signal) Signal { return combine(a, b, true, math.Max) }
