package falsify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/goatx/falsify/paramset"
	"github.com/goatx/falsify/search"
)

// Summary aggregates the robustness of one formula over a parameter set.
type Summary struct {
	Formula   string `json:"formula"`
	Points    int    `json:"points"`
	Satisfied int    `json:"satisfied"`
	Violated  int    `json:"violated"`
	Undefined int    `json:"undefined"`

	Min *Extreme `json:"min,omitempty"`
	Max *Extreme `json:"max,omitempty"`

	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

// Extreme locates an extreme robustness value.
type Extreme struct {
	Point      int     `json:"point"`
	Robustness float64 `json:"robustness"`
}

// Summarize aggregates robustness values. NaN values count as undefined
// and never become extremes; ties go to the first point.
func Summarize(id string, values []float64) Summary {
	sum := Summary{Formula: id, Points: len(values)}
	for _, v := range values {
		switch {
		case math.IsNaN(v):
			sum.Undefined++
		case v >= 0:
			sum.Satisfied++
		default:
			sum.Violated++
		}
	}
	if countDefined(values) > 0 {
		i := floats.MinIdx(values)
		sum.Min = &Extreme{Point: i, Robustness: values[i]}
		j := floats.MaxIdx(values)
		sum.Max = &Extreme{Point: j, Robustness: values[j]}
	}
	return sum
}

// WriteSummary prints a human-readable summary.
func WriteSummary(w io.Writer, sum Summary) {
	_, _ = fmt.Fprintf(w, "Robustness Summary: %s\n", sum.Formula)
	_, _ = fmt.Fprintf(w, "Points: %d\n", sum.Points)
	_, _ = fmt.Fprintf(w, "Satisfied: %d\n", sum.Satisfied)
	if sum.Violated > 0 {
		_, _ = fmt.Fprintf(w, "Violations: %d found\n", sum.Violated)
	} else {
		_, _ = fmt.Fprintln(w, "Violations: None")
	}
	if sum.Undefined > 0 {
		_, _ = fmt.Fprintf(w, "Undefined: %d\n", sum.Undefined)
	}
	if sum.Min != nil {
		_, _ = fmt.Fprintf(w, "Min Robustness: %g (point %d)\n", sum.Min.Robustness, sum.Min.Point)
		_, _ = fmt.Fprintf(w, "Max Robustness: %g (point %d)\n", sum.Max.Robustness, sum.Max.Point)
	}
	_, _ = fmt.Fprintf(w, "Execution Time: %dms\n", sum.ExecutionTimeMs)
}

// WriteResult prints the outcome of a search over parameters names.
func WriteResult(w io.Writer, names []string, res *search.Result) {
	_, _ = fmt.Fprintln(w, "Falsification Summary:")
	if res.Falsified {
		_, _ = fmt.Fprintln(w, "Counterexample: found   ✘")
	} else {
		_, _ = fmt.Fprintln(w, "Counterexample: None")
	}
	if res.Best != nil {
		_, _ = fmt.Fprintf(w, "Best Robustness: %g\n", res.Best.Objective)
		for i, name := range names {
			if i < len(res.Best.Values) {
				_, _ = fmt.Fprintf(w, "  %s = %g\n", name, res.Best.Values[i])
			}
		}
	} else {
		_, _ = fmt.Fprintf(w, "Best Robustness: undefined (%v)\n", search.ErrNoEvaluablePoint)
	}
	_, _ = fmt.Fprintf(w, "Stop Reason: %s\n", res.Stop)
	_, _ = fmt.Fprintf(w, "Evaluations: %d (total %d)\n", res.Evaluations, res.State.Evaluations)
	if res.CornersSkipped > 0 {
		_, _ = fmt.Fprintf(w, "Corners Skipped: %d (evaluation budget)\n", res.CornersSkipped)
	}
	_, _ = fmt.Fprintf(w, "Simulation Faults: %d\n", res.Faults)
	_, _ = fmt.Fprintf(w, "Execution Time: %dms\n", res.Elapsed.Milliseconds())
}

type pointJSON struct {
	Values     map[string]float64 `json:"values"`
	Robustness *float64           `json:"robustness"`
	Failed     bool               `json:"failed"`
}

// Check evaluates formula id over the parameter set and prints a summary.
func (s *Session) Check(ctx context.Context, w io.Writer, id string) (Summary, error) {
	start := time.Now()
	values, err := s.CheckSpec(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	sum := Summarize(id, values)
	sum.ExecutionTimeMs = time.Since(start).Milliseconds()
	WriteSummary(w, sum)
	return sum, nil
}

// Debug evaluates formula id over the parameter set and writes every
// point with its robustness as JSON, followed by the summary. Undefined
// robustness is written as null.
//
// Example:
//
//	var buf bytes.Buffer
//	err := s.Debug(ctx, &buf, "phi")
//	fmt.Println(buf.String()) // JSON output
func (s *Session) Debug(ctx context.Context, w io.Writer, id string) error {
	start := time.Now()
	values, err := s.CheckSpec(ctx, id)
	if err != nil {
		return err
	}
	ps := s.ParamSet()
	points, err := pointsJSON(ps, values)
	if err != nil {
		return err
	}
	sum := Summarize(id, values)
	sum.ExecutionTimeMs = time.Since(start).Milliseconds()

	result := map[string]any{
		"points":  points,
		"summary": sum,
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func pointsJSON(ps *paramset.Set, values []float64) ([]pointJSON, error) {
	out := make([]pointJSON, len(values))
	for i, v := range values {
		vals, err := ps.Values(i)
		if err != nil {
			return nil, err
		}
		out[i].Values = vals
		if !math.IsNaN(v) {
			out[i].Robustness = &v
		}
		if tr, ok := ps.Trajectory(i); ok {
			out[i].Failed = tr.Failed()
		}
	}
	return out, nil
}
