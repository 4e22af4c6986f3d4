package formula

import (
	"errors"
	"fmt"
	"math"
)

var keywords = map[string]bool{
	"param": true, "signal": true, "and": true, "or": true, "not": true,
	"alw": true, "alw_": true, "ev": true, "ev_": true, "until": true, "until_": true,
	"abs": true, "inf": true, "t": true,
}

// Parse reads specification text into reg and returns the formulas it
// defines in source order.
//
// The text is a sequence of statements separated by newlines or ';':
//
//	param name=value[, name=value]*
//	signal name[, name]*
//	name := formula
//
// Lines starting with '#' are comments. Formulas use predicates
// "e1 op e2" with op one of < <= > >= ==, the connectives and, or, not and
// =>, and the temporal operators alw_[a,b], ev_[a,b] and until_[a,b].
// Bare alw, ev and until mean the interval [0, inf). Signals are sampled
// as sig, sig[t], sig[t+k] or sig[t-k]. A previously defined formula name
// may be used as a sub-formula.
//
// Parameters:
//   - reg: The registry receiving declarations and bindings
//   - src: The specification text
//
// Returns the bound formulas, or a *Error carrying the offending
// identifier and line.
//
// Example:
//
//	reg := formula.NewRegistry()
//	defs, err := formula.Parse(reg, "signal x\nsafe := alw_[0,5] (x[t] < 10)")
func Parse(reg *Registry, src string) ([]*Named, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{reg: reg, toks: toks}
	var out []*Named
	for p.peek().kind != tokEOF {
		if p.peek().kind == tokEnd {
			p.next()
			continue
		}
		n, err := p.statement()
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, n)
		}
		if t := p.peek(); t.kind != tokEnd && t.kind != tokEOF {
			return nil, p.errorf(t, "unexpected %s after statement", t)
		}
	}
	return out, nil
}

// ParseFormula parses a single formula against the declarations of reg
// without binding it.
func ParseFormula(reg *Registry, text string) (Formula, error) {
	toks, err := lex(text)
	if err != nil {
		return nil, err
	}
	p := &parser{reg: reg, toks: toks}
	f, err := p.formula()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokEnd {
		p.next()
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s after formula", t)
	}
	return f, nil
}

type parser struct {
	reg  *Registry
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(k int) token {
	if p.pos+k >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+k]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(text string) bool {
	t := p.peek()
	return t.kind == tokPunct && t.text == text
}

func (p *parser) isIdent(text string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == text
}

func (p *parser) expect(text string) error {
	if t := p.peek(); t.kind != tokPunct || t.text != text {
		return p.errorf(t, "expected %q, found %s", text, t)
	}
	p.next()
	return nil
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &Error{Kind: ErrSyntax, Line: t.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) fail(kind error, t token, ident string) error {
	return &Error{Kind: kind, Ident: ident, Line: t.line}
}

// atLine stamps err with the line of t unless it already carries one.
func atLine(err error, t token) error {
	var fe *Error
	if errors.As(err, &fe) && fe.Line == 0 {
		cp := *fe
		cp.Line = t.line
		return &cp
	}
	return err
}

func (p *parser) statement() (*Named, error) {
	t := p.peek()
	if t.kind != tokIdent {
		return nil, p.errorf(t, "expected statement, found %s", t)
	}
	switch {
	case t.text == "param" && p.peekAt(1).kind == tokIdent:
		p.next()
		return nil, p.paramDecl()
	case t.text == "signal" && p.peekAt(1).kind == tokIdent:
		p.next()
		return nil, p.signalDecl()
	}
	p.next()
	if err := p.expect(":="); err != nil {
		return nil, err
	}
	if keywords[t.text] {
		return nil, p.errorf(t, "%q is reserved", t.text)
	}
	f, err := p.formula()
	if err != nil {
		return nil, err
	}
	n, err := p.reg.Register(t.text, f)
	if err != nil {
		return nil, atLine(err, t)
	}
	return n, nil
}

func (p *parser) paramDecl() error {
	for {
		name := p.next()
		if name.kind != tokIdent {
			return p.errorf(name, "expected parameter name, found %s", name)
		}
		if keywords[name.text] {
			return p.errorf(name, "%q is reserved", name.text)
		}
		if err := p.expect("="); err != nil {
			return err
		}
		v, err := p.signedNumber()
		if err != nil {
			return err
		}
		if err := p.reg.DeclareParam(name.text, v); err != nil {
			return atLine(err, name)
		}
		if !p.isPunct(",") {
			return nil
		}
		p.next()
	}
}

func (p *parser) signalDecl() error {
	for {
		name := p.next()
		if name.kind != tokIdent {
			return p.errorf(name, "expected signal name, found %s", name)
		}
		if keywords[name.text] {
			return p.errorf(name, "%q is reserved", name.text)
		}
		if err := p.reg.DeclareSignals(name.text); err != nil {
			return atLine(err, name)
		}
		if !p.isPunct(",") {
			return nil
		}
		p.next()
	}
}

func (p *parser) signedNumber() (float64, error) {
	sign := 1.0
	if p.isPunct("-") {
		p.next()
		sign = -1
	}
	t := p.next()
	switch {
	case t.kind == tokNumber:
		return sign * t.num, nil
	case t.kind == tokIdent && t.text == "inf":
		return sign * math.Inf(1), nil
	}
	return 0, p.errorf(t, "expected number, found %s", t)
}

// formula parses the lowest-precedence level: a => b, right associative.
func (p *parser) formula() (Formula, error) {
	l, err := p.disjunction()
	if err != nil {
		return nil, err
	}
	if !p.isPunct("=>") {
		return l, nil
	}
	p.next()
	r, err := p.formula()
	if err != nil {
		return nil, err
	}
	return Implies(l, r), nil
}

func (p *parser) disjunction() (Formula, error) {
	l, err := p.conjunction()
	if err != nil {
		return nil, err
	}
	for p.isIdent("or") {
		p.next()
		r, err := p.conjunction()
		if err != nil {
			return nil, err
		}
		l = Or{L: l, R: r}
	}
	return l, nil
}

func (p *parser) conjunction() (Formula, error) {
	l, err := p.until()
	if err != nil {
		return nil, err
	}
	for p.isIdent("and") {
		p.next()
		r, err := p.until()
		if err != nil {
			return nil, err
		}
		l = And{L: l, R: r}
	}
	return l, nil
}

func (p *parser) until() (Formula, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isIdent("until") || p.isIdent("until_") {
		iv, err := p.temporalInterval()
		if err != nil {
			return nil, err
		}
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = Until{Interval: iv, L: l, R: r}
	}
	return l, nil
}

func (p *parser) unary() (Formula, error) {
	t := p.peek()
	if t.kind == tokIdent {
		switch t.text {
		case "not":
			p.next()
			f, err := p.unary()
			if err != nil {
				return nil, err
			}
			return Not{F: f}, nil
		case "alw", "alw_":
			iv, err := p.temporalInterval()
			if err != nil {
				return nil, err
			}
			f, err := p.unary()
			if err != nil {
				return nil, err
			}
			return Always{Interval: iv, F: f}, nil
		case "ev", "ev_":
			iv, err := p.temporalInterval()
			if err != nil {
				return nil, err
			}
			f, err := p.unary()
			if err != nil {
				return nil, err
			}
			return Eventually{Interval: iv, F: f}, nil
		}
	}
	return p.primary()
}

// temporalInterval consumes an operator keyword and its optional
// "[a,b]" interval. The bare keyword denotes [0, inf).
func (p *parser) temporalInterval() (Interval, error) {
	op := p.next()
	if op.text[len(op.text)-1] != '_' {
		return Unbounded(), nil
	}
	if err := p.expect("["); err != nil {
		return Interval{}, err
	}
	lo, err := p.bound()
	if err != nil {
		return Interval{}, err
	}
	if err := p.expect(","); err != nil {
		return Interval{}, err
	}
	hi, err := p.bound()
	if err != nil {
		return Interval{}, err
	}
	if err := p.expect("]"); err != nil {
		return Interval{}, err
	}
	iv := Interval{Lo: lo, Hi: hi}
	if lo.Param == "" && hi.Param == "" {
		if lo.Value < 0 || hi.Value < lo.Value || math.IsInf(lo.Value, 0) {
			return Interval{}, &Error{Kind: ErrInvalidInterval, Line: op.line, Msg: iv.String()}
		}
	}
	return iv, nil
}

func (p *parser) bound() (Bound, error) {
	t := p.peek()
	if t.kind == tokIdent && t.text != "inf" {
		p.next()
		if !p.reg.HasParam(t.text) {
			return Bound{}, p.fail(ErrUnknownParam, t, t.text)
		}
		return P(t.text), nil
	}
	v, err := p.signedNumber()
	if err != nil {
		return Bound{}, err
	}
	return Lit(v), nil
}

// primary parses a parenthesized formula, a predicate, or a reference to
// a bound formula. A leading '(' is ambiguous between an arithmetic group
// and a formula group, so the predicate reading is tried first.
func (p *parser) primary() (Formula, error) {
	t := p.peek()
	if t.kind == tokIdent && p.reg.HasFormula(t.text) && !p.continuesArith(1) {
		p.next()
		n, err := p.reg.Lookup(t.text)
		if err != nil {
			return nil, atLine(err, t)
		}
		return n.Formula, nil
	}
	if t.kind == tokPunct && t.text == "(" {
		save := p.pos
		if f, err := p.predicate(); err == nil {
			return f, nil
		}
		p.pos = save
		p.next()
		f, err := p.formula()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return f, nil
	}
	return p.predicate()
}

// continuesArith reports whether the token k ahead would continue an
// arithmetic expression or comparison.
func (p *parser) continuesArith(k int) bool {
	t := p.peekAt(k)
	if t.kind != tokPunct {
		return false
	}
	switch t.text {
	case "+", "-", "*", "/", "<", "<=", ">", ">=", "==", "[":
		return true
	}
	return false
}

var cmpOps = map[string]CmpOp{
	"<": Less, "<=": LessEq, ">": Greater, ">=": GreaterEq, "==": Equal,
}

func (p *parser) predicate() (Formula, error) {
	l, err := p.arith()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	op, ok := cmpOps[t.text]
	if t.kind != tokPunct || !ok {
		return nil, p.errorf(t, "expected comparison, found %s", t)
	}
	p.next()
	r, err := p.arith()
	if err != nil {
		return nil, err
	}
	return Predicate{Left: l, Op: op, Right: r}, nil
}

func (p *parser) arith() (Expr, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for p.isPunct("+") || p.isPunct("-") {
		op := OpAdd
		if p.next().text == "-" {
			op = OpSub
		}
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = Binary{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *parser) term() (Expr, error) {
	l, err := p.factor()
	if err != nil {
		return nil, err
	}
	for p.isPunct("*") || p.isPunct("/") {
		op := OpMul
		if p.next().text == "/" {
			op = OpDiv
		}
		r, err := p.factor()
		if err != nil {
			return nil, err
		}
		l = Binary{Op: op, L: l, R: r}
	}
	return l, nil
}

func (p *parser) factor() (Expr, error) {
	if p.isPunct("-") {
		p.next()
		x, err := p.factor()
		if err != nil {
			return nil, err
		}
		if n, ok := x.(Num); ok {
			return Num{Value: -n.Value}, nil
		}
		return Neg{X: x}, nil
	}
	return p.atom()
}

func (p *parser) atom() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return Num{Value: t.num}, nil
	case tokPunct:
		if t.text != "(" {
			return nil, p.errorf(t, "unexpected %s in expression", t)
		}
		x, err := p.arith()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return x, nil
	case tokIdent:
	default:
		return nil, p.errorf(t, "unexpected %s in expression", t)
	}

	switch {
	case t.text == "inf":
		return Num{Value: math.Inf(1)}, nil
	case t.text == "abs":
		if err := p.expect("("); err != nil {
			return nil, err
		}
		x, err := p.arith()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return Abs{X: x}, nil
	case p.reg.HasSignal(t.text):
		shift, err := p.shift()
		if err != nil {
			return nil, err
		}
		return Ref{Signal: t.text, Shift: shift}, nil
	case p.reg.HasParam(t.text):
		return Param{Name: t.text}, nil
	case p.isPunct("["):
		return nil, p.fail(ErrUnknownSignal, t, t.text)
	}
	if p.reg.HasFormula(t.text) || keywords[t.text] {
		return nil, p.errorf(t, "%q cannot be used in an arithmetic expression", t.text)
	}
	return nil, p.fail(ErrUnknownSignal, t, t.text)
}

// shift parses an optional "[t]", "[t+k]" or "[t-k]" suffix; k may be a
// declared parameter when added.
func (p *parser) shift() (Bound, error) {
	if !p.isPunct("[") {
		return Bound{}, nil
	}
	p.next()
	if t := p.next(); t.kind != tokIdent || t.text != "t" {
		return Bound{}, p.errorf(t, "expected 't' in time shift, found %s", t)
	}
	var b Bound
	if p.isPunct("+") || p.isPunct("-") {
		sign := 1.0
		if p.next().text == "-" {
			sign = -1
		}
		t := p.next()
		switch {
		case t.kind == tokNumber:
			b = Lit(sign * t.num)
		case t.kind == tokIdent && sign > 0:
			if !p.reg.HasParam(t.text) {
				return Bound{}, p.fail(ErrUnknownParam, t, t.text)
			}
			b = P(t.text)
		default:
			return Bound{}, p.errorf(t, "expected shift amount, found %s", t)
		}
	}
	if err := p.expect("]"); err != nil {
		return Bound{}, err
	}
	return b, nil
}
