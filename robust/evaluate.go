// Package robust computes the quantitative robustness of STL formulas over
// sampled trajectories.
//
// Every sub-formula is evaluated to a piecewise-linear Signal over the
// times at which it is defined. Boolean connectives take pointwise minima
// and maxima with crossing points inserted. The bounded temporal
// operators compute exact sliding-window extrema, and until combines them
// with an exact backward scan, so results are never approximated by a
// coarse grid. NaN samples from failed simulations propagate to every
// dependent time.
package robust

import (
	"fmt"
	"math"

	"github.com/goatx/falsify/formula"
	"github.com/goatx/falsify/signal"
)

// Evaluate returns the robustness of f over tr at time t.
//
// Parameters:
//   - f: The formula to evaluate
//   - tr: The trajectory
//   - t: The evaluation time
//   - params: Values for the parameters f references
//
// Returns the robustness, NaN when the trajectory samples t depends on
// failed. An evaluation time outside the formula's domain fails with
// signal.ErrOutOfDomain; an unresolved parameter fails with
// formula.ErrUnknownParam.
//
// Example:
//
//	rob, err := robust.Evaluate(phi, traj, 0, map[string]float64{"T": 5})
//	if err == nil && rob < 0 {
//	    // violated
//	}
func Evaluate(f formula.Formula, tr *signal.Trajectory, t float64, params map[string]float64) (float64, error) {
	s, err := EvaluateSignal(f, tr, params)
	if err != nil {
		return 0, err
	}
	if !s.Empty() {
		eps := tolerance(tr)
		switch {
		case t < s.Start() && s.Start()-t <= eps:
			t = s.Start()
		case t > s.End() && t-s.End() <= eps:
			t = s.End()
		}
	}
	return s.At(t)
}

// EvaluateSignal returns the robustness signal of f over tr.
func EvaluateSignal(f formula.Formula, tr *signal.Trajectory, params map[string]float64) (Signal, error) {
	e := &evaluator{tr: tr, params: params, eps: tolerance(tr)}
	return e.formula(f)
}

// tolerance absorbs rounding of shifted breakpoints at domain ends.
func tolerance(tr *signal.Trajectory) float64 {
	return 1e-9 * math.Max(1, tr.End()-tr.Start())
}

type evaluator struct {
	tr     *signal.Trajectory
	params map[string]float64
	eps    float64
}

func (e *evaluator) formula(f formula.Formula) (Signal, error) {
	switch n := f.(type) {
	case formula.Predicate:
		return e.predicate(n)
	case formula.Not:
		s, err := e.formula(n.F)
		if err != nil {
			return Signal{}, err
		}
		return s.neg(), nil
	case formula.And:
		l, r, err := e.pair(n.L, n.R)
		if err != nil {
			return Signal{}, err
		}
		return minimum(l, r), nil
	case formula.Or:
		l, r, err := e.pair(n.L, n.R)
		if err != nil {
			return Signal{}, err
		}
		return maximum(l, r), nil
	case formula.Always:
		a, b, err := n.Interval.Resolve(e.params)
		if err != nil {
			return Signal{}, err
		}
		s, err := e.formula(n.F)
		if err != nil {
			return Signal{}, err
		}
		return e.always(s, a, b), nil
	case formula.Eventually:
		a, b, err := n.Interval.Resolve(e.params)
		if err != nil {
			return Signal{}, err
		}
		s, err := e.formula(n.F)
		if err != nil {
			return Signal{}, err
		}
		return e.always(s.neg(), a, b).neg(), nil
	case formula.Until:
		a, b, err := n.Interval.Resolve(e.params)
		if err != nil {
			return Signal{}, err
		}
		l, r, err := e.pair(n.L, n.R)
		if err != nil {
			return Signal{}, err
		}
		return e.until(l, r, a, b), nil
	}
	return Signal{}, fmt.Errorf("robust: unsupported formula %T", f)
}

func (e *evaluator) pair(a, b formula.Formula) (Signal, Signal, error) {
	l, err := e.formula(a)
	if err != nil {
		return Signal{}, Signal{}, err
	}
	r, err := e.formula(b)
	if err != nil {
		return Signal{}, Signal{}, err
	}
	return l, r, nil
}

func (e *evaluator) predicate(p formula.Predicate) (Signal, error) {
	l, err := e.expr(p.Left)
	if err != nil {
		return Signal{}, err
	}
	r, err := e.expr(p.Right)
	if err != nil {
		return Signal{}, err
	}
	switch p.Op {
	case formula.Greater, formula.GreaterEq:
		return combine(l, r, false, func(x, y float64) float64 { return x - y }), nil
	case formula.Less, formula.LessEq:
		return combine(l, r, false, func(x, y float64) float64 { return y - x }), nil
	case formula.Equal:
		return combine(l, r, true, func(x, y float64) float64 { return -math.Abs(x - y) }), nil
	}
	return Signal{}, fmt.Errorf("robust: unsupported comparison %v", p.Op)
}

// expr evaluates an arithmetic expression to a piecewise-linear signal.
// Sums, differences, negation and absolute value are exact; products and
// quotients of two signals are interpolated between breakpoints.
func (e *evaluator) expr(x formula.Expr) (Signal, error) {
	switch n := x.(type) {
	case formula.Num:
		return constant(n.Value, e.tr.Start(), e.tr.End()), nil
	case formula.Param:
		v, ok := e.params[n.Name]
		if !ok {
			return Signal{}, &formula.Error{Kind: formula.ErrUnknownParam, Ident: n.Name}
		}
		return constant(v, e.tr.Start(), e.tr.End()), nil
	case formula.Ref:
		return e.ref(n)
	case formula.Neg:
		s, err := e.expr(n.X)
		if err != nil {
			return Signal{}, err
		}
		return s.neg(), nil
	case formula.Abs:
		s, err := e.expr(n.X)
		if err != nil {
			return Signal{}, err
		}
		grid := withCrossings(s.Time, s.value)
		out := s.sample(grid)
		for i, v := range out.Value {
			out.Value[i] = math.Abs(v)
		}
		return out, nil
	case formula.Binary:
		l, err := e.expr(n.L)
		if err != nil {
			return Signal{}, err
		}
		r, err := e.expr(n.R)
		if err != nil {
			return Signal{}, err
		}
		return combine(l, r, false, arith(n.Op)), nil
	}
	return Signal{}, fmt.Errorf("robust: unsupported expression %T", x)
}

func arith(op formula.ArithOp) func(x, y float64) float64 {
	switch op {
	case formula.OpAdd:
		return func(x, y float64) float64 { return x + y }
	case formula.OpSub:
		return func(x, y float64) float64 { return x - y }
	case formula.OpMul:
		return func(x, y float64) float64 { return x * y }
	}
	return func(x, y float64) float64 { return x / y }
}

// ref samples a signal shifted by d. The result is defined for the
// evaluation times t inside the trajectory whose shifted time t+d is too.
func (e *evaluator) ref(r formula.Ref) (Signal, error) {
	ch, ok := e.tr.Channel(r.Signal)
	if !ok {
		if e.tr.Failed() {
			return constant(math.NaN(), e.tr.Start(), e.tr.End()), nil
		}
		return Signal{}, &formula.Error{Kind: formula.ErrUnknownSignal, Ident: r.Signal}
	}
	d, err := r.Shift.Resolve(e.params)
	if err != nil {
		return Signal{}, err
	}
	times := e.tr.Breakpoints()
	samples := e.tr.Samples(ch)
	if d == 0 {
		return Signal{Time: times, Value: samples}, nil
	}
	shifted := Signal{Time: make([]float64, len(times)), Value: samples}
	for i, t := range times {
		shifted.Time[i] = t - d
	}
	lo := math.Max(e.tr.Start(), shifted.Start())
	hi := math.Min(e.tr.End(), shifted.End())
	if lo > hi+e.eps {
		return Signal{}, nil
	}
	hi = math.Max(lo, hi)
	return shifted.sample(clip(shifted.Time, lo, hi)), nil
}
