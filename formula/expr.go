package formula

import (
	"fmt"
	"math"
	"strconv"
)

// Expr is an arithmetic expression over signals and parameters. The set of
// expression kinds is closed; it is matched exhaustively by the evaluator.
type Expr interface {
	String() string
	expr()
}

// Num is a numeric literal.
type Num struct{ Value float64 }

// Ref samples a signal at the current evaluation time plus Shift.
type Ref struct {
	Signal string
	Shift  Bound
}

// Param is a named numeric parameter resolved at evaluation time.
type Param struct{ Name string }

// Neg negates X.
type Neg struct{ X Expr }

// Abs is the absolute value of X.
type Abs struct{ X Expr }

// ArithOp is a binary arithmetic operator.
type ArithOp int

const (
	OpAdd ArithOp = iota + 1
	OpSub
	OpMul
	OpDiv
)

func (o ArithOp) String() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	}
	return "?"
}

// Binary applies Op to L and R.
type Binary struct {
	Op   ArithOp
	L, R Expr
}

func (Num) expr()    {}
func (Ref) expr()    {}
func (Param) expr()  {}
func (Neg) expr()    {}
func (Abs) expr()    {}
func (Binary) expr() {}

func (n Num) String() string   { return formatNumber(n.Value) }
func (p Param) String() string { return p.Name }
func (n Neg) String() string   { return "-(" + n.X.String() + ")" }
func (a Abs) String() string   { return "abs(" + a.X.String() + ")" }
func (b Binary) String() string {
	return fmt.Sprintf("(%s %s %s)", b.L, b.Op, b.R)
}

func (r Ref) String() string {
	switch {
	case r.Shift.Param != "":
		return fmt.Sprintf("%s[t+%s]", r.Signal, r.Shift.Param)
	case r.Shift.Value > 0:
		return fmt.Sprintf("%s[t+%s]", r.Signal, formatNumber(r.Shift.Value))
	case r.Shift.Value < 0:
		return fmt.Sprintf("%s[t-%s]", r.Signal, formatNumber(-r.Shift.Value))
	}
	return r.Signal + "[t]"
}

// Bound is a numeric literal or a parameter name resolved at evaluation
// time. Interval bounds and time shifts are Bounds.
type Bound struct {
	Value float64
	Param string
}

// Lit returns a literal bound.
func Lit(v float64) Bound { return Bound{Value: v} }

// P returns a bound resolved from the named parameter.
func P(name string) Bound { return Bound{Param: name} }

// Resolve returns the bound's value, looking parameters up in params.
func (b Bound) Resolve(params map[string]float64) (float64, error) {
	if b.Param == "" {
		return b.Value, nil
	}
	v, ok := params[b.Param]
	if !ok {
		return 0, &Error{Kind: ErrUnknownParam, Ident: b.Param}
	}
	return v, nil
}

func (b Bound) String() string {
	if b.Param != "" {
		return b.Param
	}
	return formatNumber(b.Value)
}

// CmpOp is a predicate comparison operator.
type CmpOp int

const (
	Less CmpOp = iota + 1
	LessEq
	Greater
	GreaterEq
	Equal
)

func (o CmpOp) String() string {
	switch o {
	case Less:
		return "<"
	case LessEq:
		return "<="
	case Greater:
		return ">"
	case GreaterEq:
		return ">="
	case Equal:
		return "=="
	}
	return "?"
}

func formatNumber(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// walkExpr calls fn for every node of e in depth-first order.
func walkExpr(e Expr, fn func(Expr)) {
	fn(e)
	switch n := e.(type) {
	case Neg:
		walkExpr(n.X, fn)
	case Abs:
		walkExpr(n.X, fn)
	case Binary:
		walkExpr(n.L, fn)
		walkExpr(n.R, fn)
	}
}
