// Package search implements a phased falsification search: corner
// testing, quasi-random sampling with a resumable cursor, selection of a
// local seed and Nelder-Mead refinement, repeated until a counterexample
// is found or a budget runs out.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/paramset"
)

// Objective scores every point of a batch. Lower is worse for the system
// under test; a value below the target falsifies it. NaN marks a point
// that could not be evaluated.
type Objective interface {
	Evaluate(ctx context.Context, batch *paramset.Set) ([]float64, error)
}

// ObjectiveFunc adapts a function to Objective.
type ObjectiveFunc func(ctx context.Context, batch *paramset.Set) ([]float64, error)

// Evaluate calls f.
func (f ObjectiveFunc) Evaluate(ctx context.Context, batch *paramset.Set) ([]float64, error) {
	return f(ctx, batch)
}

type options struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	recorder func(Batch)
	state    *State
	clock    func() time.Time
}

// Option configures a Falsifier.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger sets the logger for phase transitions and batches.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = l })
}

// WithMetrics sets the collectors updated per batch.
func WithMetrics(m *metrics.Metrics) Option {
	return optionFunc(func(o *options) { o.metrics = m })
}

// WithRecorder registers a function called with every batch after it is
// merged into the state.
func WithRecorder(fn func(Batch)) Option {
	return optionFunc(func(o *options) { o.recorder = fn })
}

// WithState resumes from a previously saved state.
func WithState(s State) Option {
	return optionFunc(func(o *options) { o.state = &s })
}

func withClock(now func() time.Time) Option {
	return optionFunc(func(o *options) { o.clock = now })
}

func newOptions(opts ...Option) *options {
	o := &options{clock: time.Now}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.metrics == nil {
		o.metrics = metrics.Default
	}
	return o
}

// Falsifier searches a parameter domain for points whose objective falls
// below the target. It is not safe for concurrent use; a single goroutine
// drives the phases while batches fan out inside the objective.
type Falsifier struct {
	obj    Objective
	domain *paramset.Set
	cfg    Config
	opts   *options
	state  State
}

// New creates a Falsifier over domain.
//
// Parameters:
//   - obj: The objective evaluated for every candidate batch
//   - domain: The parameter set whose rectangles bound the search
//   - cfg: Search settings; unset fields take their defaults
//   - opts: WithLogger, WithMetrics, WithRecorder and WithState
//
// Returns the Falsifier, or an error wrapping ErrInvalidConfig or
// ErrUnbounded.
//
// Example:
//
//	f, err := search.New(obj, domain, search.Config{
//	    Corners: true,
//	    Local:   true,
//	    Budget:  search.Budget{Evaluations: 500},
//	})
//	res, err := f.Run(ctx)
func New(obj Objective, domain *paramset.Set, cfg Config, opts ...Option) (*Falsifier, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if domain == nil || domain.Len() == 0 {
		return nil, fmt.Errorf("%w: empty domain", ErrInvalidConfig)
	}
	o := newOptions(opts...)
	f := &Falsifier{obj: obj, domain: domain, cfg: cfg, opts: o, state: State{Phase: PhaseIdle}}
	if o.state != nil {
		f.state = o.state.clone()
	}
	return f, nil
}

// State returns a copy of the current search state.
func (f *Falsifier) State() State { return f.state.clone() }

// Reset discards all progress, including the seed cursor.
func (f *Falsifier) Reset() { f.state = State{Phase: PhaseIdle} }

// Config returns the effective configuration.
func (f *Falsifier) Config() Config { return f.cfg }

// SetBudget replaces the budget applied by subsequent Run calls.
func (f *Falsifier) SetBudget(b Budget) error {
	cfg := f.cfg
	cfg.Budget = b
	if err := cfg.Validate(); err != nil {
		return err
	}
	f.cfg = cfg
	return nil
}

// run tracks the budget of one Run call.
type run struct {
	start    time.Time
	deadline time.Time
	evals    int
	faults   int
	iters    int
}

func (f *Falsifier) remaining(r *run) int {
	if f.cfg.Budget.Evaluations == 0 {
		return math.MaxInt
	}
	return f.cfg.Budget.Evaluations - (f.state.Evaluations - r.evals)
}

func (f *Falsifier) falsified() bool {
	return f.state.Best != nil && f.state.Best.Objective < f.cfg.Target
}

func (f *Falsifier) stop(ctx context.Context, r *run) StopReason {
	switch {
	case ctx.Err() != nil:
		return StopCanceled
	case f.falsified():
		return StopFalsified
	case f.remaining(r) <= 0:
		return StopEvaluations
	case !r.deadline.IsZero() && !f.opts.clock().Before(r.deadline):
		return StopTime
	case f.cfg.Budget.Iterations > 0 && f.state.Iterations-r.iters >= f.cfg.Budget.Iterations:
		return StopIterations
	}
	return StopNone
}

// Run drives the phases until a stopping condition fires. The budget
// applies to this call only; a later Run continues from the same seed
// cursor and best-known point. Cancellation is checked between phases and
// by the local phase before every evaluation; a canceled Run returns the
// partial result together with the context error.
func (f *Falsifier) Run(ctx context.Context) (*Result, error) {
	now := f.opts.clock()
	r := &run{start: now, evals: f.state.Evaluations, faults: f.state.Faults, iters: f.state.Iterations}
	if f.cfg.Budget.Time > 0 {
		r.deadline = now.Add(f.cfg.Budget.Time)
	}
	if f.state.Phase == PhaseDone {
		f.state.Phase = PhaseQuasiRandom
		if f.state.Next != "" {
			f.state.Phase = f.state.Next
		}
		f.state.Next = ""
	}
	f.state.Stop = StopNone

	log := f.opts.logger
	for {
		if reason := f.stop(ctx, r); reason != StopNone {
			f.state.Stop = reason
			if reason == StopCanceled {
				return f.result(r), ctx.Err()
			}
			f.state.Next, f.state.Phase = f.state.Phase, PhaseDone
			log.Info("search stopped", "reason", reason, "evaluations", f.state.Evaluations-r.evals)
			return f.result(r), nil
		}

		var err error
		switch f.state.Phase {
		case PhaseIdle:
			f.state.Phase = PhaseQuasiRandom
			if f.cfg.Corners && !f.state.CornersDone {
				f.state.Phase = PhaseCorners
			}
		case PhaseCorners:
			err = f.corners(ctx, r)
		case PhaseQuasiRandom:
			err = f.quasiRandom(ctx, r)
		case PhaseSelecting:
			f.selecting()
		case PhaseLocalRefine:
			err = f.localRefine(ctx, r)
		default:
			return nil, fmt.Errorf("search: unknown phase %q", f.state.Phase)
		}
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				f.state.Stop = StopCanceled
				return f.result(r), err
			}
			return nil, err
		}
	}
}

func (f *Falsifier) result(r *run) *Result {
	return &Result{
		Falsified:      f.falsified(),
		Stop:           f.state.Stop,
		Best:           f.state.Best.clone(),
		CornersSkipped: f.state.CornersSkipped,
		Evaluations:    f.state.Evaluations - r.evals,
		Faults:         f.state.Faults - r.faults,
		Elapsed:        f.opts.clock().Sub(r.start),
		State:          f.State(),
	}
}

func (f *Falsifier) corners(ctx context.Context, r *run) error {
	batch, err := f.domain.Corners(f.cfg.MaxCorners)
	if err != nil {
		return err
	}
	if n := f.remaining(r); batch.Len() > n {
		skipped := batch.Len() - n
		f.opts.logger.Warn("corner batch exceeds evaluation budget",
			"corners", batch.Len(), "evaluated", n, "skipped", skipped)
		f.state.CornersSkipped += skipped
		batch, err = batch.Select(firstN(n))
		if err != nil {
			return err
		}
	}
	if _, err := f.evaluate(ctx, PhaseCorners, batch); err != nil {
		return err
	}
	f.state.CornersDone = true
	f.state.Phase = PhaseQuasiRandom
	return nil
}

func (f *Falsifier) quasiRandom(ctx context.Context, r *run) error {
	n := f.cfg.BatchSize
	rects := f.domain.Len()
	if rem := f.remaining(r); rem < n*rects {
		n = max(1, (rem+rects-1)/rects)
	}
	batch, err := f.domain.QuasiRandomSample(n, f.state.Cursor)
	if err != nil {
		return err
	}
	values, err := f.evaluate(ctx, PhaseQuasiRandom, batch)
	if err != nil {
		return err
	}
	f.state.Cursor += uint64(n)
	f.state.Candidate = tightest(batch, values, f.cfg.Target)

	if f.cfg.Local {
		f.state.Phase = PhaseSelecting
		return nil
	}
	f.state.Iterations++
	return nil
}

// tightest returns the point with the lowest objective at or above target,
// the first one on ties.
func tightest(batch *paramset.Set, values []float64, target float64) *Sample {
	masked := make([]float64, len(values))
	ok := false
	for i, v := range values {
		masked[i] = math.NaN()
		if v >= target {
			masked[i] = v
			ok = true
		}
	}
	if !ok {
		return nil
	}
	i := floats.MinIdx(masked)
	p, _ := batch.Point(i)
	return &Sample{Values: p.Values, Objective: values[i]}
}

func (f *Falsifier) selecting() {
	f.state.Phase = PhaseLocalRefine
	if f.state.Candidate != nil {
		return
	}
	if f.state.LeastViolating == nil {
		f.opts.logger.Warn("no evaluable point to seed local search", "error", ErrNoEvaluablePoint)
		f.state.Iterations++
		f.state.Phase = PhaseQuasiRandom
		return
	}
	f.state.Candidate = f.state.LeastViolating.clone()
}

// evaluate scores a batch, merges it into the state and records it.
func (f *Falsifier) evaluate(ctx context.Context, phase Phase, batch *paramset.Set) ([]float64, error) {
	start := time.Now()
	values, err := f.obj.Evaluate(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(values) != batch.Len() {
		return nil, fmt.Errorf("search: objective returned %d values for %d points", len(values), batch.Len())
	}
	points := make([][]float64, batch.Len())
	for i := range points {
		p, err := batch.Point(i)
		if err != nil {
			return nil, err
		}
		points[i] = p.Values
	}
	f.merge(points, values)
	f.publish(Batch{Phase: phase, Iteration: f.state.Iterations, Points: points, Objectives: values, Duration: time.Since(start)})
	return values, nil
}

// merge folds evaluated points into the state in index order, so the
// first of several equal objectives wins.
func (f *Falsifier) merge(points [][]float64, values []float64) {
	for i, v := range values {
		f.state.Evaluations++
		if math.IsNaN(v) {
			f.state.Faults++
			continue
		}
		if f.state.Best == nil || v < f.state.Best.Objective {
			f.state.Best = &Sample{Values: append([]float64(nil), points[i]...), Objective: v}
		}
		if f.state.LeastViolating == nil || v > f.state.LeastViolating.Objective {
			f.state.LeastViolating = &Sample{Values: append([]float64(nil), points[i]...), Objective: v}
		}
	}
}

func (f *Falsifier) publish(b Batch) {
	defined := 0
	for _, v := range b.Objectives {
		if !math.IsNaN(v) {
			defined++
		}
	}
	log := f.opts.logger.With("phase", b.Phase, "iteration", b.Iteration)
	if defined == 0 && len(b.Objectives) > 0 {
		log.Warn("batch produced no defined objective", "points", len(b.Objectives))
	}
	log.Debug("batch evaluated", "points", len(b.Objectives), "faults", len(b.Objectives)-defined, "duration", b.Duration)

	f.opts.metrics.Batch(string(b.Phase), len(b.Objectives), b.Duration)
	if f.state.Best != nil {
		f.opts.metrics.Best(f.state.Best.Objective)
	}
	if f.opts.recorder != nil {
		f.opts.recorder(b)
	}
}

func firstN(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
