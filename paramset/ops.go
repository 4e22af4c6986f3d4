package paramset

import (
	"fmt"
	"maps"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"
)

// Refine subdivides every point's rectangle along the named dimensions
// (all uncertain dimensions when none are named) into factor equal parts.
// Each point becomes factor^d points with radii divided by factor; the
// covered volume is unchanged.
func (s *Set) Refine(factor int, dims ...string) (*Set, error) {
	if factor < 1 {
		return nil, fmt.Errorf("%w: refinement factor %d", ErrInvalid, factor)
	}
	idx, err := s.dims(dims)
	if err != nil {
		return nil, err
	}
	var out []Point
	for i, p := range s.points {
		children := []Point{p.clone()}
		for _, j := range idx {
			r := p.Radius[j] / float64(factor)
			lo := p.Values[j] - p.Radius[j]
			next := make([]Point, 0, len(children)*factor)
			for _, c := range children {
				for k := range factor {
					child := c.clone()
					child.Values[j] = lo + r*float64(2*k+1)
					child.Radius[j] = r
					next = append(next, child)
				}
			}
			children = next
		}
		if err := checkVolume(i, p, children, idx); err != nil {
			return nil, err
		}
		out = append(out, children...)
	}
	return s.derive(out), nil
}

func checkVolume(i int, parent Point, children []Point, dims []int) error {
	volume := func(p Point) float64 {
		v := 1.0
		for _, j := range dims {
			v *= 2 * p.Radius[j]
		}
		return v
	}
	want := volume(parent)
	got := 0.0
	for _, c := range children {
		got += volume(c)
	}
	if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
		return &VolumeError{Point: i, Want: want, Got: got}
	}
	return nil
}

func (s *Set) dims(names []string) ([]int, error) {
	if len(names) == 0 {
		return s.Uncertain(), nil
	}
	out := make([]int, 0, len(names))
	for _, name := range names {
		j := slices.Index(s.names, name)
		if j < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		out = append(out, j)
	}
	return out, nil
}

// Select returns the points at the given indices, in that order.
// Trajectories and memoized robustness of retained points are kept.
func (s *Set) Select(indices []int) (*Set, error) {
	points := make([]Point, len(indices))
	for k, i := range indices {
		if err := s.check(i); err != nil {
			return nil, err
		}
		points[k] = s.points[i]
	}
	out := s.derive(points)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for c, k := range out.first {
		out.trajs[c] = s.trajs[s.index[indices[k]]]
	}
	pos := map[int][]int{}
	for k, i := range indices {
		pos[i] = append(pos[i], k)
	}
	for key, v := range s.memo {
		for _, k := range pos[key.point] {
			out.memo[memoKey{key.formula, k}] = v
		}
	}
	return out, nil
}

// GridSample replaces every point by an n-per-dimension uniform grid over
// its uncertain dimensions, endpoints included. Grid points are exact
// (zero radius). With n == 1 each point collapses to its center.
func (s *Set) GridSample(n int) (*Set, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: grid size %d", ErrInvalid, n)
	}
	var out []Point
	for _, p := range s.points {
		children := []Point{{Values: slices.Clone(p.Values), Radius: make([]float64, len(p.Values))}}
		for j, r := range p.Radius {
			if r == 0 {
				continue
			}
			axis := []float64{p.Values[j]}
			if n > 1 {
				axis = floats.Span(make([]float64, n), p.Values[j]-r, p.Values[j]+r)
			}
			next := make([]Point, 0, len(children)*len(axis))
			for _, c := range children {
				for _, v := range axis {
					child := c.clone()
					child.Values[j] = v
					next = append(next, child)
				}
			}
			children = next
		}
		out = append(out, children...)
	}
	return s.derive(out), nil
}

// Fixed scrambling of the Halton sequence. The sequence index, not the
// scrambling, is what callers advance between calls.
const (
	haltonSeed1 = 0x5eed
	haltonSeed2 = 0xfa15
)

// QuasiRandomSample draws n members of a scrambled Halton sequence
// inside every point's rectangle, starting at sequence index seed. The
// result depends only on n and seed, so a caller advancing seed by n
// between calls never repeats a point. Sampled points are exact.
//
// Example:
//
//	batch, err := domain.QuasiRandomSample(16, cursor)
//	cursor += 16
func (s *Set) QuasiRandomSample(n int, seed uint64) (*Set, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: sample count %d", ErrInvalid, n)
	}
	dims := s.Uncertain()
	rows := halton(int(seed)+n, len(dims))
	var out []Point
	for _, p := range s.points {
		for i := int(seed); i < int(seed)+n; i++ {
			q := Point{Values: slices.Clone(p.Values), Radius: make([]float64, len(p.Values))}
			for k, j := range dims {
				q.Values[j] = p.Values[j] - p.Radius[j] + 2*p.Radius[j]*rows.At(i, k)
			}
			out = append(out, q)
		}
	}
	return s.derive(out), nil
}

// halton returns the first n rows of the d-dimensional scrambled Halton
// sequence over the unit cube. Row i does not depend on n.
func halton(n, d int) *mat.Dense {
	if d == 0 {
		return mat.NewDense(n, 1, nil)
	}
	batch := mat.NewDense(n, d, nil)
	samplemv.Halton{
		Kind: samplemv.Owen,
		Q:    distmv.NewUnitUniform(d, nil),
		Src:  rand.NewPCG(haltonSeed1, haltonSeed2),
	}.Sample(batch)
	return batch
}

// Purge returns the same points with every cache dropped and the dedup
// index recomputed.
func (s *Set) Purge() *Set {
	points := make([]Point, len(s.points))
	for i, p := range s.points {
		points[i] = p.clone()
	}
	return s.derive(points)
}

// Corners returns every combination of the lower and upper extremes of
// the uncertain dimensions of every point. It fails with ErrTooManyCorners
// instead of subsampling when the count exceeds limit.
func (s *Set) Corners(limit int) (*Set, error) {
	dims := s.Uncertain()
	if len(dims) >= 31 {
		return nil, &CornersError{Count: math.MaxInt32, Cap: limit}
	}
	count := len(s.points) << len(dims)
	if count > limit {
		return nil, &CornersError{Count: count, Cap: limit}
	}
	out := make([]Point, 0, count)
	for _, p := range s.points {
		for mask := range 1 << len(dims) {
			q := Point{Values: slices.Clone(p.Values), Radius: make([]float64, len(p.Values))}
			for k, j := range dims {
				if mask&(1<<(len(dims)-1-k)) != 0 {
					q.Values[j] += p.Radius[j]
				} else {
					q.Values[j] -= p.Radius[j]
				}
			}
			out = append(out, q)
		}
	}
	return s.derive(out), nil
}

// SetValues returns a set of exact points with the given values, one row
// per point, sharing the naming scheme of s.
func (s *Set) SetValues(values [][]float64) (*Set, error) {
	points := make([]Point, len(values))
	for i, row := range values {
		if len(row) != len(s.names) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d parameters", ErrInvalid, i, len(row), len(s.names))
		}
		if floats.HasNaN(row) {
			return nil, fmt.Errorf("%w: row %d has NaN", ErrInvalid, i)
		}
		points[i] = Point{Values: slices.Clone(row), Radius: make([]float64, len(row))}
	}
	return s.derive(points), nil
}

// Override returns a copy of the set with the named parameters fixed to
// the given values in every point.
func (s *Set) Override(values map[string]float64) (*Set, error) {
	points := make([]Point, len(s.points))
	for i, p := range s.points {
		points[i] = p.clone()
	}
	for _, name := range slices.Sorted(maps.Keys(values)) {
		j := slices.Index(s.names, name)
		if j < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownParam, name)
		}
		for i := range points {
			points[i].Values[j] = values[name]
			points[i].Radius[j] = 0
		}
	}
	return s.derive(points), nil
}
