package paramset

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/goatx/falsify/signal"
	"github.com/goatx/falsify/simulator"
)

// Simulate requests one trajectory per distinct simulation combination
// that has none yet, running up to workers simulations at a time. A
// simulator error is recorded as a failed trajectory for that combination
// and does not abort the batch; only cancellation of ctx does.
// Trajectories are published together once every simulation finished.
//
// Returns the number of simulator calls and how many of them faulted.
func (s *Set) Simulate(ctx context.Context, sim simulator.Simulator, span simulator.TimeSpan, workers int) (calls, faults int, err error) {
	s.mu.RLock()
	var todo []int
	for c, tr := range s.trajs {
		if tr == nil {
			todo = append(todo, c)
		}
	}
	s.mu.RUnlock()
	if len(todo) == 0 {
		return 0, 0, nil
	}

	params := make([]map[string]float64, len(todo))
	for k, c := range todo {
		if params[k], err = s.simValues(s.first[c]); err != nil {
			return 0, 0, err
		}
	}

	results := make([]*signal.Trajectory, len(todo))
	failed := make([]bool, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for k := range todo {
		g.Go(func() error {
			tr, err := sim.Simulate(gctx, params[k], span)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return err
				}
				failed[k] = true
				return nil
			}
			results[k] = tr
			failed[k] = tr.Failed()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	var names []string
	for _, tr := range results {
		if tr != nil {
			names = tr.Names()
			break
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range todo {
		tr := results[k]
		if tr == nil {
			tr = signal.Failed(names, span.Start, span.End)
		}
		s.trajs[c] = tr
		s.metrics.Simulated(failed[k])
		if failed[k] {
			faults++
		}
	}
	return len(todo), faults, nil
}

// simValues returns the simulation-relevant values of point i by name.
func (s *Set) simValues(i int) (map[string]float64, error) {
	all, err := s.Values(i)
	if err != nil {
		return nil, err
	}
	for j, name := range s.names {
		if !s.sim[j] {
			delete(all, name)
		}
	}
	return all, nil
}
