// Package signal provides read-only access to sampled trajectories.
//
// A Trajectory is an ascending time grid with one value series per named
// channel. Values between samples are obtained by linear interpolation;
// queries outside the recorded span fail with ErrOutOfDomain instead of
// being clamped.
package signal

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrOutOfDomain indicates a query time outside a trajectory's span.
	ErrOutOfDomain = errors.New("signal: time out of domain")

	// ErrInvalidTrajectory indicates malformed trajectory data.
	ErrInvalidTrajectory = errors.New("signal: invalid trajectory")
)

// DomainError reports a query time together with the span it missed.
type DomainError struct {
	Time  float64
	Start float64
	End   float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("signal: time %g out of domain [%g, %g]", e.Time, e.Start, e.End)
}

func (e *DomainError) Unwrap() error { return ErrOutOfDomain }

// Trajectory is an immutable sampled trajectory.
type Trajectory struct {
	names  []string
	index  map[string]int
	time   []float64
	series [][]float64
	failed bool
}

// New builds a trajectory from signal names, a strictly ascending time grid
// and one series per name. Inputs are copied.
func New(names []string, times []float64, series [][]float64) (*Trajectory, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: empty time grid", ErrInvalidTrajectory)
	}
	if len(series) != len(names) {
		return nil, fmt.Errorf("%w: %d names but %d series", ErrInvalidTrajectory, len(names), len(series))
	}
	for i := 1; i < len(times); i++ {
		if !(times[i] > times[i-1]) {
			return nil, fmt.Errorf("%w: time grid not strictly ascending at sample %d", ErrInvalidTrajectory, i)
		}
	}
	tr := &Trajectory{
		names:  append([]string(nil), names...),
		index:  make(map[string]int, len(names)),
		time:   append([]float64(nil), times...),
		series: make([][]float64, len(series)),
	}
	for ch, s := range series {
		if len(s) != len(times) {
			return nil, fmt.Errorf("%w: signal %q has %d samples, want %d", ErrInvalidTrajectory, names[ch], len(s), len(times))
		}
		if _, dup := tr.index[names[ch]]; dup {
			return nil, fmt.Errorf("%w: duplicate signal %q", ErrInvalidTrajectory, names[ch])
		}
		tr.index[names[ch]] = ch
		tr.series[ch] = append([]float64(nil), s...)
		if floats.HasNaN(s) {
			tr.failed = true
		}
	}
	return tr, nil
}

// Failed returns a trajectory marked as a simulation fault: every channel is
// NaN at the start and end of the span.
func Failed(names []string, start, end float64) *Trajectory {
	times := []float64{start}
	if end > start {
		times = append(times, end)
	}
	series := make([][]float64, len(names))
	for i := range series {
		series[i] = make([]float64, len(times))
		for j := range series[i] {
			series[i][j] = math.NaN()
		}
	}
	tr, _ := New(names, times, series)
	tr.failed = true
	return tr
}

// Failed reports whether any sample of any channel is NaN.
func (tr *Trajectory) Failed() bool { return tr.failed }

// Names returns the channel names in channel order.
func (tr *Trajectory) Names() []string { return append([]string(nil), tr.names...) }

// Channel resolves a signal name to its channel index.
func (tr *Trajectory) Channel(name string) (int, bool) {
	ch, ok := tr.index[name]
	return ch, ok
}

// Len returns the number of samples.
func (tr *Trajectory) Len() int { return len(tr.time) }

// Start returns the first sample time.
func (tr *Trajectory) Start() float64 { return tr.time[0] }

// End returns the last sample time.
func (tr *Trajectory) End() float64 { return tr.time[len(tr.time)-1] }

// Breakpoints returns a copy of the sample times.
func (tr *Trajectory) Breakpoints() []float64 { return append([]float64(nil), tr.time...) }

// Samples returns a copy of the raw samples of one channel.
func (tr *Trajectory) Samples(ch int) []float64 { return append([]float64(nil), tr.series[ch]...) }

// Value returns the interpolated value of channel ch at time t.
func (tr *Trajectory) Value(ch int, t float64) (float64, error) {
	if ch < 0 || ch >= len(tr.series) {
		return 0, fmt.Errorf("%w: channel %d out of range", ErrInvalidTrajectory, ch)
	}
	i, frac, err := tr.locate(t)
	if err != nil {
		return 0, err
	}
	return lerp(tr.series[ch], i, frac), nil
}

// At returns the interpolated value of every channel at time t.
func (tr *Trajectory) At(t float64) ([]float64, error) {
	i, frac, err := tr.locate(t)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(tr.series))
	for ch, s := range tr.series {
		out[ch] = lerp(s, i, frac)
	}
	return out, nil
}

// locate finds the segment [time[i], time[i+1]] containing t and the
// fractional position inside it.
func (tr *Trajectory) locate(t float64) (int, float64, error) {
	n := len(tr.time)
	if math.IsNaN(t) || t < tr.time[0] || t > tr.time[n-1] {
		return 0, 0, &DomainError{Time: t, Start: tr.time[0], End: tr.time[n-1]}
	}
	if n == 1 {
		return 0, 0, nil
	}
	i := sort.SearchFloat64s(tr.time, t)
	if i < n && tr.time[i] == t {
		if i == n-1 {
			return n - 2, 1, nil
		}
		return i, 0, nil
	}
	i--
	return i, (t - tr.time[i]) / (tr.time[i+1] - tr.time[i]), nil
}

func lerp(s []float64, i int, frac float64) float64 {
	if frac == 0 {
		return s[i]
	}
	if frac == 1 {
		return s[i+1]
	}
	return s[i] + frac*(s[i+1]-s[i])
}

// MergeBreakpoints returns the sorted union of the given time sets with
// exact duplicates removed.
func MergeBreakpoints(sets ...[]float64) []float64 {
	total := 0
	for _, s := range sets {
		total += len(s)
	}
	out := make([]float64, 0, total)
	for _, s := range sets {
		out = append(out, s...)
	}
	sort.Float64s(out)
	j := 0
	for i, v := range out {
		if i > 0 && v == out[j-1] {
			continue
		}
		out[j] = v
		j++
	}
	return out[:j]
}
