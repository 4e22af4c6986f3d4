// Package formula defines the Signal Temporal Logic syntax tree, a registry
// binding identifiers to formulas, and a parser for the textual
// specification format.
package formula

import (
	"fmt"
	"math"
	"sort"
)

// Formula is an STL formula. The node kinds are closed: Predicate, Not, And,
// Or, Always, Eventually and Until. The unexported marker method keeps
// other packages from adding kinds, so evaluators can switch exhaustively.
type Formula interface {
	String() string
	formula()
}

// Predicate compares two arithmetic expressions. Its robustness is the
// signed margin of the comparison.
type Predicate struct {
	Left  Expr
	Op    CmpOp
	Right Expr
}

// Not negates F.
type Not struct{ F Formula }

// And is the conjunction of L and R.
type And struct{ L, R Formula }

// Or is the disjunction of L and R.
type Or struct{ L, R Formula }

// Always requires F over the window [t+Lo, t+Hi].
type Always struct {
	Interval Interval
	F        Formula
}

// Eventually requires F at some time of the window [t+Lo, t+Hi].
type Eventually struct {
	Interval Interval
	F        Formula
}

// Until requires R at some s in [t+Lo, t+Hi] with L holding on [t, s].
type Until struct {
	Interval Interval
	L, R     Formula
}

// Interval is a bounded temporal window relative to the evaluation time.
type Interval struct {
	Lo, Hi Bound
}

// Span returns the interval [lo, hi] with literal bounds.
func Span(lo, hi float64) Interval { return Interval{Lo: Lit(lo), Hi: Lit(hi)} }

// Unbounded returns [0, inf), which evaluators clip to the trajectory.
func Unbounded() Interval { return Span(0, math.Inf(1)) }

// Resolve returns the numeric bounds of the interval.
func (iv Interval) Resolve(params map[string]float64) (float64, float64, error) {
	lo, err := iv.Lo.Resolve(params)
	if err != nil {
		return 0, 0, err
	}
	hi, err := iv.Hi.Resolve(params)
	if err != nil {
		return 0, 0, err
	}
	if lo < 0 || hi < lo || math.IsNaN(lo) || math.IsNaN(hi) {
		return 0, 0, &Error{Kind: ErrInvalidInterval, Msg: fmt.Sprintf("[%g, %g]", lo, hi)}
	}
	return lo, hi, nil
}

func (iv Interval) String() string { return fmt.Sprintf("[%s,%s]", iv.Lo, iv.Hi) }

func (Predicate) formula()  {}
func (Not) formula()        {}
func (And) formula()        {}
func (Or) formula()         {}
func (Always) formula()     {}
func (Eventually) formula() {}
func (Until) formula()      {}

func (p Predicate) String() string { return fmt.Sprintf("%s %s %s", p.Left, p.Op, p.Right) }
func (n Not) String() string       { return "not (" + n.F.String() + ")" }
func (a And) String() string       { return "(" + a.L.String() + ") and (" + a.R.String() + ")" }
func (o Or) String() string        { return "(" + o.L.String() + ") or (" + o.R.String() + ")" }
func (a Always) String() string    { return "alw_" + a.Interval.String() + " (" + a.F.String() + ")" }
func (e Eventually) String() string {
	return "ev_" + e.Interval.String() + " (" + e.F.String() + ")"
}
func (u Until) String() string {
	return "(" + u.L.String() + ") until_" + u.Interval.String() + " (" + u.R.String() + ")"
}

// Named binds an identifier to a formula. The identifier is the formula's
// identity for registry lookups and memoization.
type Named struct {
	ID      string
	Formula Formula
}

func (n *Named) String() string { return n.ID + " := " + n.Formula.String() }

// Implies returns the formula a => b, expressed as (not a) or b.
//
// Parameters:
//   - a: The antecedent
//   - b: The consequent
//
// Example:
//
//	overshoot := formula.Implies(request, formula.Eventually{Interval: formula.Span(0, 2), F: grant})
func Implies(a, b Formula) Formula { return Or{L: Not{F: a}, R: b} }

// Conj folds fs into a left-nested conjunction. It panics when fs is empty.
func Conj(fs ...Formula) Formula {
	out := fs[0]
	for _, f := range fs[1:] {
		out = And{L: out, R: f}
	}
	return out
}

// Disj folds fs into a left-nested disjunction. It panics when fs is empty.
func Disj(fs ...Formula) Formula {
	out := fs[0]
	for _, f := range fs[1:] {
		out = Or{L: out, R: f}
	}
	return out
}

// Signals returns the sorted set of signal names referenced by f.
func Signals(f Formula) []string {
	set := map[string]bool{}
	walk(f, func(e Expr) {
		if r, ok := e.(Ref); ok {
			set[r.Signal] = true
		}
	}, nil)
	return sortedKeys(set)
}

// Params returns the sorted set of parameter names referenced by f, in
// expressions, time shifts and interval bounds.
func Params(f Formula) []string {
	set := map[string]bool{}
	walk(f, func(e Expr) {
		switch n := e.(type) {
		case Param:
			set[n.Name] = true
		case Ref:
			if n.Shift.Param != "" {
				set[n.Shift.Param] = true
			}
		}
	}, func(iv Interval) {
		if iv.Lo.Param != "" {
			set[iv.Lo.Param] = true
		}
		if iv.Hi.Param != "" {
			set[iv.Hi.Param] = true
		}
	})
	return sortedKeys(set)
}

func walk(f Formula, onExpr func(Expr), onInterval func(Interval)) {
	switch n := f.(type) {
	case Predicate:
		walkExpr(n.Left, onExpr)
		walkExpr(n.Right, onExpr)
	case Not:
		walk(n.F, onExpr, onInterval)
	case And:
		walk(n.L, onExpr, onInterval)
		walk(n.R, onExpr, onInterval)
	case Or:
		walk(n.L, onExpr, onInterval)
		walk(n.R, onExpr, onInterval)
	case Always:
		if onInterval != nil {
			onInterval(n.Interval)
		}
		walk(n.F, onExpr, onInterval)
	case Eventually:
		if onInterval != nil {
			onInterval(n.Interval)
		}
		walk(n.F, onExpr, onInterval)
	case Until:
		if onInterval != nil {
			onInterval(n.Interval)
		}
		walk(n.L, onExpr, onInterval)
		walk(n.R, onExpr, onInterval)
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
