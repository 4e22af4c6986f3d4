package robust

import (
	"math"
	"slices"

	"github.com/goatx/falsify/signal"
)

// until evaluates (l until_[a,b] r), the signal
//
//	sup_{s in [t+a, t+b]} min(r(s), inf_{u in [t,s]} l(u))
//
// through the decomposition
//
//	alw_[0,a] l  and  ev_[a,b] r  and  (l until r)(t+a)
//
// where the last term is the unbounded until shifted by a. Each term is
// exact, so the conjunction is too.
func (e *evaluator) until(l, r Signal, a, b float64) Signal {
	if l.Empty() || r.Empty() {
		return Signal{}
	}
	held := l
	if a > 0 {
		held = e.always(l, 0, a)
	}
	reached := e.always(r.neg(), a, b).neg()
	out := minimum(held, reached)
	return minimum(out, shift(untilUnbounded(l, r), a))
}

// untilUnbounded computes sup_{s >= t} min(r(s), inf_{u in [t,s]} l(u))
// over the common domain of l and r, scanning segments right to left.
//
// The grid holds the breakpoints of both operands and the crossings of
// l and r, so on a segment [t0, t1] both operands and h = min(l, r) are
// linear. With C = min(l(t1), U(t1)) carried from the right,
//
//	U(t) = min(l(t), max(F(t), C))
//
// where F(t) = sup of h over [t, t1] is h itself when h decreases and
// h(t1) otherwise. The crossings of F with C and of l with max(F, C) are
// added as breakpoints.
func untilUnbounded(l, r Signal) Signal {
	lo := math.Max(l.Start(), r.Start())
	hi := math.Min(l.End(), r.End())
	if lo > hi {
		return Signal{}
	}
	grid := clip(signal.MergeBreakpoints(l.Time, r.Time), lo, hi)
	grid = withCrossings(grid, func(t float64) float64 { return l.value(t) - r.value(t) })

	n := len(grid)
	h := func(t float64) float64 { return math.Min(l.value(t), r.value(t)) }
	u1 := h(grid[n-1])
	times := []float64{grid[n-1]}
	values := []float64{u1}
	for i := n - 2; i >= 0; i-- {
		t0, t1 := grid[i], grid[i+1]
		c := math.Min(l.value(t1), u1)
		f := h
		if h(t0) < h(t1) {
			f = func(float64) float64 { return h(t1) }
		}
		g := func(t float64) float64 { return math.Max(f(t), c) }
		at := func(t float64) float64 { return math.Min(l.value(t), g(t)) }

		pieces := []float64{t0, t1}
		if tc := intersect(t0, t1, f(t0)-c, f(t1)-c); tc > t0 && tc < t1 {
			pieces = []float64{t0, tc, t1}
		}
		// kinks inside (t0, t1), collected right to left
		var kinks []float64
		for k := len(pieces) - 2; k >= 0; k-- {
			p0, p1 := pieces[k], pieces[k+1]
			if p1 < t1 {
				kinks = append(kinks, p1)
			}
			if tx := intersect(p0, p1, l.value(p0)-g(p0), l.value(p1)-g(p1)); tx > p0 && tx < p1 {
				kinks = append(kinks, tx)
			}
		}
		for _, t := range kinks {
			times = append(times, t)
			values = append(values, at(t))
		}
		u1 = at(t0)
		times = append(times, t0)
		values = append(values, u1)
	}
	slices.Reverse(times)
	slices.Reverse(values)
	return Signal{Time: times, Value: values}
}

// shift returns s(t+d) as a signal of t.
func shift(s Signal, d float64) Signal {
	if d == 0 {
		return s
	}
	out := Signal{Time: make([]float64, len(s.Time)), Value: s.Value}
	for i, t := range s.Time {
		out.Time[i] = t - d
	}
	return out
}
