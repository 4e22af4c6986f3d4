package robust

import (
	"math"
	"math/bits"
	"sort"
)

// rangeMin answers minimum queries over a fixed slice in constant time.
// NaN entries make every range that contains them NaN.
type rangeMin struct {
	levels [][]float64
}

func newRangeMin(v []float64) *rangeMin {
	rm := &rangeMin{levels: [][]float64{v}}
	for w := 1; 2*w <= len(v); w *= 2 {
		prev := rm.levels[len(rm.levels)-1]
		next := make([]float64, len(prev)-w)
		for i := range next {
			next[i] = math.Min(prev[i], prev[i+w])
		}
		rm.levels = append(rm.levels, next)
	}
	return rm
}

// min returns the minimum of v[i..j], or +Inf when the range is empty.
func (rm *rangeMin) min(i, j int) float64 {
	if i > j {
		return math.Inf(1)
	}
	k := bits.Len(uint(j-i+1)) - 1
	return math.Min(rm.levels[k][i], rm.levels[k][j-(1<<k)+1])
}

// window evaluates inf of s over [t+a, min(t+b, End)] for any t.
type window struct {
	s    Signal
	a, b float64
	rm   *rangeMin
	eps  float64
}

func (w *window) hi(t float64) float64 { return math.Min(t+w.b, w.s.End()) }

// inner returns the minimum over the breakpoints of s inside [lo, hi].
func (w *window) inner(lo, hi float64) float64 {
	i := sort.SearchFloat64s(w.s.Time, lo-w.eps)
	j := sort.Search(len(w.s.Time), func(k int) bool { return w.s.Time[k] > hi+w.eps }) - 1
	return w.rm.min(i, j)
}

func (w *window) at(t float64) float64 {
	lo, hi := t+w.a, w.hi(t)
	m := math.Min(w.s.value(lo), w.s.value(hi))
	return math.Min(m, w.inner(lo, hi))
}

// always computes the sliding-window infimum of s over [t+a, t+b], with
// windows clipped at the end of the domain of s.
//
// The output changes shape only where a window end crosses a breakpoint
// of s, i.e. at times tau-a and tau-b. Between two such candidates the
// window value is the minimum of two linear functions (the values at both
// window ends) and a constant (the breakpoints strictly inside every
// window of the interval), so adding the pairwise intersections of those
// three keeps the output exact.
func (e *evaluator) always(s Signal, a, b float64) Signal {
	if s.Empty() {
		return Signal{}
	}
	lo := math.Max(s.Start()-a, e.tr.Start())
	hi := s.End() - a
	if lo > hi {
		return Signal{}
	}
	w := &window{s: s, a: a, b: b, rm: newRangeMin(s.Value), eps: e.eps}

	cands := make([]float64, 0, 2*len(s.Time)+2)
	cands = append(cands, lo, hi)
	for _, tau := range s.Time {
		cands = append(cands, tau-a)
		if !math.IsInf(b, 1) {
			cands = append(cands, tau-b)
		}
	}
	sort.Float64s(cands)
	grid := clip(dedup(cands, e.eps), lo, hi)

	times := make([]float64, 0, 2*len(grid))
	for i, u0 := range grid {
		times = append(times, u0)
		if i == len(grid)-1 {
			break
		}
		u1 := grid[i+1]
		times = append(times, w.kinks(u0, u1)...)
	}
	out := Signal{Time: times, Value: make([]float64, len(times))}
	for i, t := range times {
		out.Value[i] = w.at(t)
	}
	return out
}

// kinks returns the times strictly inside (u0, u1) where the window
// minimum switches between its left end, its right end and the fixed
// interior breakpoints.
func (w *window) kinks(u0, u1 float64) []float64 {
	l0, l1 := w.s.value(u0+w.a), w.s.value(u1+w.a)
	r0, r1 := w.s.value(w.hi(u0)), w.s.value(w.hi(u1))
	c := w.inner(u1+w.a, math.Min(u0+w.b, w.s.End()))

	var out []float64
	add := func(t float64) {
		if t > u0 && t < u1 {
			out = append(out, t)
		}
	}
	add(intersect(u0, u1, l0-r0, l1-r1))
	if !math.IsInf(c, 1) {
		add(intersect(u0, u1, l0-c, l1-c))
		add(intersect(u0, u1, r0-c, r1-c))
	}
	sort.Float64s(out)
	return out
}

// intersect returns the zero of the linear function through (u0, d0) and
// (u1, d1), or NaN when it has none inside the interval.
func intersect(u0, u1, d0, d1 float64) float64 {
	if !(d0*d1 < 0) {
		return math.NaN()
	}
	return u0 + (u1-u0)*d0/(d0-d1)
}

// dedup removes values of a sorted slice closer than eps to their
// predecessor.
func dedup(v []float64, eps float64) []float64 {
	out := v[:0]
	for i, x := range v {
		if i > 0 && x-out[len(out)-1] <= eps {
			continue
		}
		out = append(out, x)
	}
	return out
}
