// Package falsify checks Signal Temporal Logic specifications against
// simulated trajectories and searches parameter spaces for
// counterexamples.
//
// A Session ties together a formula registry, a parameter set and a
// simulator. CheckSpec scores every point of the parameter set,
// FilterSpec splits it into satisfying and violating points, and
// Falsifier starts a resumable phased search for a point whose
// robustness falls below zero.
package falsify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/goatx/falsify/formula"
	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/paramset"
	"github.com/goatx/falsify/robust"
	"github.com/goatx/falsify/search"
	"github.com/goatx/falsify/signal"
	"github.com/goatx/falsify/simulator"
)

var (
	// ErrNoSimulator indicates an operation that needs trajectories on a
	// session without a simulator.
	ErrNoSimulator = errors.New("falsify: no simulator configured")

	// ErrNoParamSet indicates an operation that needs points on a session
	// without a parameter set.
	ErrNoParamSet = errors.New("falsify: no parameter set configured")
)

// Session holds the specification, the parameter set and the simulator
// of one verification task.
type Session struct {
	reg     *formula.Registry
	sim     simulator.Simulator
	span    simulator.TimeSpan
	workers int
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	params *paramset.Set
	spec   []string
}

// New creates a session.
//
// Parameters:
//   - opts: WithSimulator, WithTimeSpan, WithParamSet, WithRegistry,
//     WithWorkers, WithLogger and WithMetrics
//
// Returns the session, or an error if the time span is invalid.
//
// Example:
//
//	s, err := falsify.New(
//	    falsify.WithSimulator(model),
//	    falsify.WithTimeSpan(simulator.TimeSpan{End: 10}),
//	    falsify.WithParamSet(ps),
//	)
func New(opts ...Option) (*Session, error) {
	o := newOptions(opts...)
	if o.sim != nil {
		if err := o.span.Validate(); err != nil {
			return nil, err
		}
	}
	return &Session{
		reg:     o.registry,
		sim:     o.sim,
		span:    o.span,
		workers: o.workers,
		logger:  o.logger,
		metrics: o.metrics,
		params:  o.params,
	}, nil
}

// Registry returns the session's formula registry.
func (s *Session) Registry() *formula.Registry { return s.reg }

// SetSpec clears every parameter and formula binding and parses src.
// Declared signals are kept.
//
// Example:
//
//	_, err := s.SetSpec(`
//	    signal x
//	    param T=5
//	    phi := alw_[0,T] (x[t] < 10)
//	`)
func (s *Session) SetSpec(src string) ([]*formula.Named, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.Reset()
	s.spec = nil
	return s.addSpecLocked(src)
}

// AddSpec parses src on top of the current bindings. Re-binding an
// identifier to a different formula fails with
// formula.ErrIdentifierConflict.
func (s *Session) AddSpec(src string) ([]*formula.Named, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addSpecLocked(src)
}

func (s *Session) addSpecLocked(src string) ([]*formula.Named, error) {
	named, err := formula.Parse(s.reg, src)
	if err != nil {
		return nil, err
	}
	s.spec = append(s.spec, src)
	return named, nil
}

// Spec returns the specification text accepted since the last SetSpec.
func (s *Session) Spec() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return strings.Join(s.spec, "\n")
}

// SetParamSet replaces the session's parameter set.
func (s *Session) SetParamSet(ps *paramset.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = ps
}

// ParamSet returns the session's parameter set, with any trajectories
// and robustness values computed so far.
func (s *Session) ParamSet() *paramset.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// CheckSpec returns the robustness of formula id at the start of the time
// span for every point of the parameter set. Points whose trajectory
// failed get NaN. Trajectories and values are cached in the parameter
// set.
func (s *Session) CheckSpec(ctx context.Context, id string) ([]float64, error) {
	ps := s.ParamSet()
	if ps == nil {
		return nil, ErrNoParamSet
	}
	named, err := s.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	return s.robustness(ctx, ps, named)
}

// FilterSpec splits the parameter set into the points that satisfy
// formula id (robustness >= 0) and those that violate it. Points with
// undefined robustness belong to neither.
func (s *Session) FilterSpec(ctx context.Context, id string) (sat, viol *paramset.Set, err error) {
	values, err := s.CheckSpec(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var satIdx, violIdx []int
	for i, v := range values {
		switch {
		case v >= 0:
			satIdx = append(satIdx, i)
		case v < 0:
			violIdx = append(violIdx, i)
		}
	}
	ps := s.ParamSet()
	if sat, err = ps.Select(satIdx); err != nil {
		return nil, nil, err
	}
	if viol, err = ps.Select(violIdx); err != nil {
		return nil, nil, err
	}
	return sat, viol, nil
}

// GetRobustSat returns the robustness of formula id for the first point
// of the parameter set with the given parameters overridden, both at the
// start of the time span and as a signal over the whole trajectory.
func (s *Session) GetRobustSat(ctx context.Context, id string, overrides map[string]float64) (float64, robust.Signal, error) {
	ps := s.ParamSet()
	if ps == nil {
		return 0, robust.Signal{}, ErrNoParamSet
	}
	named, err := s.reg.Lookup(id)
	if err != nil {
		return 0, robust.Signal{}, err
	}
	ps, err = ps.Override(overrides)
	if err != nil {
		return 0, robust.Signal{}, err
	}
	if ps, err = ps.Select([]int{0}); err != nil {
		return 0, robust.Signal{}, err
	}
	if err := s.simulate(ctx, ps); err != nil {
		return 0, robust.Signal{}, err
	}
	tr, _ := ps.Trajectory(0)
	params, err := s.pointParams(ps, 0)
	if err != nil {
		return 0, robust.Signal{}, err
	}
	sig, err := robust.EvaluateSignal(named.Formula, tr, params)
	if err != nil {
		return 0, robust.Signal{}, err
	}
	v, err := sig.At(tr.Start())
	if err != nil {
		return 0, robust.Signal{}, err
	}
	return v, sig, nil
}

// Robustness evaluates formula id over a recorded trajectory at time t,
// with parameters taken from their declared defaults.
func (s *Session) Robustness(id string, tr *signal.Trajectory, t float64) (float64, robust.Signal, error) {
	named, err := s.reg.Lookup(id)
	if err != nil {
		return 0, robust.Signal{}, err
	}
	params := s.reg.Params()
	sig, err := robust.EvaluateSignal(named.Formula, tr, params)
	if err != nil {
		return 0, robust.Signal{}, err
	}
	v, err := robust.Evaluate(named.Formula, tr, t, params)
	if err != nil {
		return 0, robust.Signal{}, err
	}
	return v, sig, nil
}

// Falsifier returns a resumable search for points of domain at which
// formula id has robustness below the configured target. A nil domain
// searches the session's parameter set.
//
// Example:
//
//	f, err := s.Falsifier("phi", nil, search.Config{
//	    Corners: true,
//	    Local:   true,
//	    Budget:  search.Budget{Evaluations: 200},
//	})
//	res, err := f.Run(ctx)
func (s *Session) Falsifier(id string, domain *paramset.Set, cfg search.Config, opts ...search.Option) (*search.Falsifier, error) {
	named, err := s.reg.Lookup(id)
	if err != nil {
		return nil, err
	}
	if domain == nil {
		domain = s.ParamSet()
	}
	if domain == nil {
		return nil, ErrNoParamSet
	}
	obj := search.ObjectiveFunc(func(ctx context.Context, batch *paramset.Set) ([]float64, error) {
		return s.robustness(ctx, batch, named)
	})
	base := []search.Option{
		search.WithLogger(s.logger.With("formula", id)),
		search.WithMetrics(s.metrics),
	}
	return search.New(obj, domain, cfg, append(base, opts...)...)
}

// robustness simulates the missing trajectories of ps and evaluates named
// at every point not yet memoized. Values are published to the memo once
// the whole batch is done.
func (s *Session) robustness(ctx context.Context, ps *paramset.Set, named *formula.Named) ([]float64, error) {
	if err := s.simulate(ctx, ps); err != nil {
		return nil, err
	}
	key := s.memoKey(named)
	out := make([]float64, ps.Len())
	var todo []int
	for i := range out {
		if v, ok := ps.Memo(key, i); ok {
			out[i] = v
			continue
		}
		todo = append(todo, i)
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		g.SetLimit(s.workers)
	}
	for _, i := range todo {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tr, ok := ps.Trajectory(i)
			if !ok {
				return fmt.Errorf("falsify: no trajectory for point %d", i)
			}
			params, err := s.pointParams(ps, i)
			if err != nil {
				return err
			}
			v, err := robust.Evaluate(named.Formula, tr, tr.Start(), params)
			if err != nil {
				return fmt.Errorf("evaluating %s at point %d: %w", named.ID, i, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	values := make([]float64, len(todo))
	for k, i := range todo {
		values[k] = out[i]
	}
	ps.StoreMemo(key, todo, values)
	return out, nil
}

// memoKey identifies named by its body and the defaults of the parameters
// it reads, so values memoized before a rebinding are never served for the
// new formula.
func (s *Session) memoKey(named *formula.Named) string {
	var b strings.Builder
	b.WriteString(named.ID)
	b.WriteString(" := ")
	b.WriteString(named.Formula.String())
	defaults := s.reg.Params()
	for _, p := range formula.Params(named.Formula) {
		b.WriteString("; " + p + "=" + strconv.FormatFloat(defaults[p], 'g', -1, 64))
	}
	return b.String()
}

func (s *Session) simulate(ctx context.Context, ps *paramset.Set) error {
	if s.sim == nil {
		return ErrNoSimulator
	}
	calls, faults, err := ps.Simulate(ctx, s.sim, s.span, s.workers)
	if err != nil {
		return err
	}
	if calls > 0 {
		s.logger.Debug("simulated", "calls", calls, "faults", faults)
	}
	if faults > 0 {
		s.logger.Warn("simulation faults", "faults", faults, "calls", calls)
	}
	return nil
}

// pointParams merges the declared parameter defaults with the values of
// point i.
func (s *Session) pointParams(ps *paramset.Set, i int) (map[string]float64, error) {
	values, err := ps.Values(i)
	if err != nil {
		return nil, err
	}
	params := s.reg.Params()
	maps.Copy(params, values)
	return params, nil
}

// countDefined returns the number of values that are not NaN.
func countDefined(values []float64) int {
	n := 0
	for _, v := range values {
		if !math.IsNaN(v) {
			n++
		}
	}
	return n
}
