// Package paramset implements parameter sets: ordered collections of
// points, each a hyper-rectangle given by a center and a per-parameter
// radius, together with a deduplication index over the simulation-relevant
// columns, the trajectories simulated for each distinct combination, and a
// memo of robustness values.
//
// Points are immutable. Refine, Select, the samplers and Purge return new
// sets; a caller that wants in-place semantics reassigns its binding.
// Trajectories and memo entries are caches and are filled in place,
// guarded by a lock.
package paramset

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/signal"
)

// Point is a parameter vector with a per-parameter uncertainty radius. A
// zero radius means an exact value.
type Point struct {
	Values []float64 `json:"values"`
	Radius []float64 `json:"radius"`
}

func (p Point) clone() Point {
	return Point{Values: slices.Clone(p.Values), Radius: slices.Clone(p.Radius)}
}

// Set is an ordered parameter set.
type Set struct {
	names   []string
	sim     []bool
	points  []Point
	index   []int
	first   []int
	metrics *metrics.Metrics

	mu    sync.RWMutex
	trajs []*signal.Trajectory
	memo  map[memoKey]float64
}

type memoKey struct {
	formula string
	point   int
}

type options struct {
	grid    int
	sim     []string
	metrics *metrics.Metrics
}

// Option configures New.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithGrid replaces the single center point by an n-per-dimension grid,
// see GridSample.
func WithGrid(n int) Option {
	return optionFunc(func(o *options) { o.grid = n })
}

// WithSimParams restricts the simulation-relevant parameters to names.
// Points that differ only in other parameters share one trajectory. By
// default every parameter is simulation-relevant.
func WithSimParams(names ...string) Option {
	return optionFunc(func(o *options) { o.sim = names })
}

// WithMetrics sets the collectors updated by simulation and memo lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return optionFunc(func(o *options) { o.metrics = m })
}

// New creates a parameter set with one point whose rectangle spans the
// given ranges.
//
// Parameters:
//   - names: The parameter names
//   - ranges: One [lo, hi] range per name; lo == hi fixes the parameter
//   - opts: WithGrid, WithSimParams and WithMetrics
//
// Returns the set, or an error wrapping ErrInvalid or ErrUnknownParam.
//
// Example:
//
//	ps, err := paramset.New(
//	    []string{"x0", "k"},
//	    [][2]float64{{-1, 1}, {0.5, 2}},
//	    paramset.WithSimParams("x0", "k"),
//	)
func New(names []string, ranges [][2]float64, opts ...Option) (*Set, error) {
	o := &options{}
	for _, opt := range opts {
		opt.apply(o)
	}
	if len(names) != len(ranges) {
		return nil, fmt.Errorf("%w: %d names but %d ranges", ErrInvalid, len(names), len(ranges))
	}
	seen := map[string]bool{}
	p := Point{Values: make([]float64, len(names)), Radius: make([]float64, len(names))}
	for i, r := range ranges {
		if seen[names[i]] {
			return nil, fmt.Errorf("%w: duplicate parameter %q", ErrInvalid, names[i])
		}
		seen[names[i]] = true
		lo, hi := r[0], r[1]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || hi < lo {
			return nil, fmt.Errorf("%w: range [%g, %g] for %q", ErrInvalid, lo, hi, names[i])
		}
		p.Values[i] = (lo + hi) / 2
		p.Radius[i] = (hi - lo) / 2
	}

	sim := make([]bool, len(names))
	if o.sim == nil {
		for i := range sim {
			sim[i] = true
		}
	}
	for _, name := range o.sim {
		i := slices.Index(names, name)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		sim[i] = true
	}
	if o.metrics == nil {
		o.metrics = metrics.Default
	}

	s := newSet(slices.Clone(names), sim, []Point{p}, o.metrics)
	if o.grid > 0 {
		return s.GridSample(o.grid)
	}
	return s, nil
}

// derive builds a set with the naming scheme of s and fresh caches.
func (s *Set) derive(points []Point) *Set {
	return newSet(s.names, s.sim, points, s.metrics)
}

func newSet(names []string, sim []bool, points []Point, m *metrics.Metrics) *Set {
	s := &Set{names: names, sim: sim, points: points, metrics: m, memo: map[memoKey]float64{}}
	s.index, s.first = dedup(points, sim)
	s.trajs = make([]*signal.Trajectory, len(s.first))
	return s
}

// dedup maps every point to the first-occurrence-ordered combination of
// its simulation-relevant values.
func dedup(points []Point, sim []bool) (index, first []int) {
	index = make([]int, len(points))
	seen := map[string]int{}
	var b strings.Builder
	for i, p := range points {
		b.Reset()
		for j, v := range p.Values {
			if sim[j] {
				b.WriteString(strconv.FormatUint(math.Float64bits(v+0), 16))
				b.WriteByte(',')
			}
		}
		k, ok := seen[b.String()]
		if !ok {
			k = len(first)
			seen[b.String()] = k
			first = append(first, i)
		}
		index[i] = k
	}
	return index, first
}

// Names returns the parameter names.
func (s *Set) Names() []string { return slices.Clone(s.names) }

// SimParams returns the simulation-relevant parameter names.
func (s *Set) SimParams() []string {
	var out []string
	for i, ok := range s.sim {
		if ok {
			out = append(out, s.names[i])
		}
	}
	return out
}

// Len returns the number of points.
func (s *Set) Len() int { return len(s.points) }

// Dim returns the number of parameters.
func (s *Set) Dim() int { return len(s.names) }

// Point returns a copy of point i.
func (s *Set) Point(i int) (Point, error) {
	if err := s.check(i); err != nil {
		return Point{}, err
	}
	return s.points[i].clone(), nil
}

// Values returns the center of point i keyed by parameter name.
func (s *Set) Values(i int) (map[string]float64, error) {
	if err := s.check(i); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(s.names))
	for j, name := range s.names {
		out[name] = s.points[i].Values[j]
	}
	return out, nil
}

// Index returns the dedup index: for each point, the combination whose
// trajectory it shares.
func (s *Set) Index() []int { return slices.Clone(s.index) }

// Combinations returns the number of distinct simulation combinations.
func (s *Set) Combinations() int { return len(s.first) }

// Uncertain returns the indices of the parameters with a non-zero radius
// in some point.
func (s *Set) Uncertain() []int {
	var out []int
	for j := range s.names {
		for _, p := range s.points {
			if p.Radius[j] > 0 {
				out = append(out, j)
				break
			}
		}
	}
	return out
}

// Bounds returns the bounding box of every point's rectangle.
func (s *Set) Bounds() (lo, hi []float64) {
	lo = make([]float64, len(s.names))
	hi = make([]float64, len(s.names))
	for j := range s.names {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
		for _, p := range s.points {
			lo[j] = math.Min(lo[j], p.Values[j]-p.Radius[j])
			hi[j] = math.Max(hi[j], p.Values[j]+p.Radius[j])
		}
	}
	return lo, hi
}

func (s *Set) check(i int) error {
	if i < 0 || i >= len(s.points) {
		return &IndexError{Index: i, Len: len(s.points)}
	}
	return nil
}

// Trajectory returns the trajectory simulated for point i, if any.
func (s *Set) Trajectory(i int) (*signal.Trajectory, bool) {
	if i < 0 || i >= len(s.points) {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr := s.trajs[s.index[i]]
	return tr, tr != nil
}

// Memo returns the robustness memoized under key at point i. The key
// names a formula together with everything its value depends on besides
// the point; callers change it whenever the formula is rebound.
func (s *Set) Memo(key string, i int) (float64, bool) {
	s.mu.RLock()
	v, ok := s.memo[memoKey{key, i}]
	s.mu.RUnlock()
	s.metrics.MemoLookup(ok)
	return v, ok
}

// StoreMemo publishes robustness values under key for the given points at
// once, so readers never observe a partial batch.
func (s *Set) StoreMemo(key string, points []int, values []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, i := range points {
		s.memo[memoKey{key, i}] = values[k]
	}
}

type snapshot struct {
	Names     []string `json:"names"`
	SimParams []string `json:"sim_params"`
	Points    []Point  `json:"points"`
	Index     []int    `json:"dedup_index"`
}

// MarshalJSON encodes the points, radii, simulation parameters and dedup
// index. Caches are not encoded.
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshot{Names: s.names, SimParams: s.SimParams(), Points: s.points, Index: s.index})
}

// UnmarshalJSON restores a set encoded by MarshalJSON. The dedup index is
// recomputed and must match the encoded one.
func (s *Set) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	sim := make([]bool, len(snap.Names))
	for _, name := range snap.SimParams {
		i := slices.Index(snap.Names, name)
		if i < 0 {
			return fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		sim[i] = true
	}
	for i, p := range snap.Points {
		if len(p.Values) != len(snap.Names) || len(p.Radius) != len(snap.Names) {
			return fmt.Errorf("%w: point %d has %d values for %d parameters", ErrInvalid, i, len(p.Values), len(snap.Names))
		}
	}
	restored := newSet(snap.Names, sim, snap.Points, metrics.Default)
	if snap.Index != nil && !slices.Equal(restored.index, snap.Index) {
		return fmt.Errorf("%w: dedup index does not match points", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names, s.sim, s.points = restored.names, restored.sim, restored.points
	s.index, s.first, s.metrics = restored.index, restored.first, restored.metrics
	s.trajs, s.memo = restored.trajs, restored.memo
	return nil
}
