package search

import (
	"context"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/optimize"
)

var (
	statusTarget = optimize.NewStatus("TargetReached", false, nil)
	statusBudget = optimize.NewStatus("BudgetExhausted", true, nil)
)

// localRefine minimizes the objective with Nelder-Mead, seeded at the
// selected candidate. The simplex lives in unit coordinates over the
// domain's bounding box on the uncertain dimensions; coordinates outside
// [0, 1] are clamped before evaluation.
func (f *Falsifier) localRefine(ctx context.Context, r *run) error {
	seed := f.state.Candidate
	f.state.Candidate = nil
	defer func() {
		f.state.Iterations++
		f.state.Phase = PhaseQuasiRandom
	}()
	if seed == nil {
		return nil
	}
	dims := f.domain.Uncertain()
	budget := min(f.cfg.LocalEvaluations, f.remaining(r))
	if len(dims) == 0 || budget <= 0 {
		return nil
	}
	lo, hi := f.domain.Bounds()

	toPoint := func(u []float64) []float64 {
		x := slices.Clone(seed.Values)
		for k, j := range dims {
			x[j] = lo[j] + (hi[j]-lo[j])*math.Max(0, math.Min(1, u[k]))
		}
		return x
	}
	u0 := make([]float64, len(dims))
	for k, j := range dims {
		u0[k] = (seed.Values[j] - lo[j]) / (hi[j] - lo[j])
	}

	var (
		points  [][]float64
		values  []float64
		evalErr error
	)
	start := time.Now()
	problem := optimize.Problem{
		Func: func(u []float64) float64 {
			x := toPoint(u)
			batch, err := f.domain.SetValues([][]float64{x})
			if err != nil {
				evalErr = err
				return math.MaxFloat64
			}
			v, err := f.obj.Evaluate(ctx, batch)
			if err != nil {
				evalErr = err
				return math.MaxFloat64
			}
			points = append(points, x)
			values = append(values, v[0])
			f.merge([][]float64{x}, v)
			if math.IsNaN(v[0]) {
				return math.MaxFloat64
			}
			return v[0]
		},
		Status: func() (optimize.Status, error) {
			switch {
			case evalErr != nil:
				return optimize.Failure, evalErr
			case ctx.Err() != nil:
				return optimize.Failure, ctx.Err()
			case f.falsified():
				return statusTarget, nil
			case !r.deadline.IsZero() && !f.opts.clock().Before(r.deadline):
				return statusBudget, nil
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		InitValues:      &optimize.Location{F: seed.Objective},
		FuncEvaluations: budget,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Iterations: 20,
		},
	}
	res, err := optimize.Minimize(problem, u0, settings, &optimize.NelderMead{SimplexSize: f.cfg.SimplexSize})
	if len(values) > 0 {
		f.publish(Batch{
			Phase:      PhaseLocalRefine,
			Iteration:  f.state.Iterations,
			Points:     points,
			Objectives: values,
			Duration:   time.Since(start),
		})
	}
	if err != nil {
		return err
	}
	f.opts.logger.Debug("local search finished", "status", res.Status, "evaluations", res.Stats.FuncEvaluations, "objective", res.F)
	return nil
}
