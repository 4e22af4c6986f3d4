package formula

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Registry interns named formulas together with the signals and parameters
// they may reference. A registry is scoped to one analysis session and is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	signals  []string
	params   map[string]float64
	formulas map[string]*Named
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		params:   map[string]float64{},
		formulas: map[string]*Named{},
	}
}

// DeclareSignals adds signal names. Re-declaring a known signal is a no-op.
func (r *Registry) DeclareSignals(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if slices.Contains(r.signals, name) {
			continue
		}
		if err := r.checkFreeLocked(name, "signal"); err != nil {
			return err
		}
		r.signals = append(r.signals, name)
	}
	return nil
}

// DeclareParam declares a parameter with its default value. Declaring an
// existing parameter again updates the default.
func (r *Registry) DeclareParam(name string, value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.params[name]; !ok {
		if err := r.checkFreeLocked(name, "parameter"); err != nil {
			return err
		}
	}
	r.params[name] = value
	return nil
}

// Signals returns the declared signal names in declaration order.
func (r *Registry) Signals() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.signals)
}

// HasSignal reports whether name is a declared signal.
func (r *Registry) HasSignal(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.signals, name)
}

// Params returns a copy of the declared parameters and their defaults.
func (r *Registry) Params() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.params)
}

// HasParam reports whether name is a declared parameter.
func (r *Registry) HasParam(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.params[name]
	return ok
}

// HasFormula reports whether id is bound to a formula.
func (r *Registry) HasFormula(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.formulas[id]
	return ok
}

// Register binds id to f. Registering an identical body again returns the
// existing binding; a different body fails with ErrIdentifierConflict.
// Every signal and parameter f references must already be declared.
//
// Parameters:
//   - id: The formula identifier
//   - f: The formula body
//
// Returns the interned binding.
//
// Example:
//
//	reg := formula.NewRegistry()
//	_ = reg.DeclareSignals("x")
//	n, err := reg.Register("safe", formula.Always{
//	    Interval: formula.Span(0, 5),
//	    F:        formula.Predicate{Left: formula.Ref{Signal: "x"}, Op: formula.Less, Right: formula.Num{Value: 10}},
//	})
func (r *Registry) Register(id string, f Formula) (*Named, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.validateLocked(f); err != nil {
		return nil, err
	}
	if existing, ok := r.formulas[id]; ok {
		if existing.Formula.String() == f.String() {
			return existing, nil
		}
		return nil, &Error{Kind: ErrIdentifierConflict, Ident: id, Msg: "already bound to " + existing.Formula.String()}
	}
	if err := r.checkFreeLocked(id, "formula"); err != nil {
		return nil, err
	}
	n := &Named{ID: id, Formula: f}
	r.formulas[id] = n
	r.order = append(r.order, id)
	return n, nil
}

// Replace binds id to f, overwriting any previous body.
func (r *Registry) Replace(id string, f Formula) (*Named, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.validateLocked(f); err != nil {
		return nil, err
	}
	n := &Named{ID: id, Formula: f}
	if _, ok := r.formulas[id]; !ok {
		if err := r.checkFreeLocked(id, "formula"); err != nil {
			return nil, err
		}
		r.order = append(r.order, id)
	}
	r.formulas[id] = n
	return n, nil
}

// Lookup returns the formula bound to id.
func (r *Registry) Lookup(id string) (*Named, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.formulas[id]
	if !ok {
		return nil, &Error{Kind: ErrUnknownFormula, Ident: id}
	}
	return n, nil
}

// Formulas returns every binding in registration order.
func (r *Registry) Formulas() []*Named {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Named, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.formulas[id])
	}
	return out
}

// Reset drops every formula and parameter. Declared signals are kept since
// they describe the simulated system rather than the specification.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.params = map[string]float64{}
	r.formulas = map[string]*Named{}
	r.order = nil
}

// Validate checks that every signal and parameter referenced by f is
// declared.
func (r *Registry) Validate(f Formula) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.validateLocked(f)
}

func (r *Registry) validateLocked(f Formula) error {
	for _, s := range Signals(f) {
		if !slices.Contains(r.signals, s) {
			return &Error{Kind: ErrUnknownSignal, Ident: s}
		}
	}
	for _, p := range Params(f) {
		if _, ok := r.params[p]; !ok {
			return &Error{Kind: ErrUnknownParam, Ident: p}
		}
	}
	return nil
}

func (r *Registry) checkFreeLocked(name, as string) error {
	var taken string
	switch {
	case slices.Contains(r.signals, name):
		taken = "signal"
	case r.formulas[name] != nil:
		taken = "formula"
	default:
		if _, ok := r.params[name]; ok {
			taken = "parameter"
		}
	}
	if taken == "" {
		return nil
	}
	return &Error{Kind: ErrIdentifierConflict, Ident: name, Msg: fmt.Sprintf("cannot declare %s, already a %s", as, taken)}
}
