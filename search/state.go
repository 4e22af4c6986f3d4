package search

import (
	"time"
)

// Phase is a state of the search.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseCorners     Phase = "corners"
	PhaseQuasiRandom Phase = "quasi_random"
	PhaseSelecting   Phase = "selecting"
	PhaseLocalRefine Phase = "local_refine"
	PhaseDone        Phase = "done"
)

// StopReason records why a Run ended.
type StopReason string

const (
	StopNone        StopReason = ""
	StopFalsified   StopReason = "falsified"
	StopEvaluations StopReason = "evaluation_budget"
	StopTime        StopReason = "time_budget"
	StopIterations  StopReason = "iteration_cap"
	StopCanceled    StopReason = "canceled"
)

// Sample is an evaluated point with a defined objective.
type Sample struct {
	Values    []float64 `json:"values"`
	Objective float64   `json:"objective"`
}

// State is the resumable progress of a search. It survives across Run
// calls and is cleared by Reset.
type State struct {
	Phase Phase `json:"phase"`
	// Next is the phase a stopped search was about to enter. The next Run
	// starts there, so a pending local phase survives a budget stop.
	Next Phase      `json:"next,omitempty"`
	Stop StopReason `json:"stop,omitempty"`

	// Best has the lowest objective seen; LeastViolating the highest.
	Best           *Sample `json:"best,omitempty"`
	LeastViolating *Sample `json:"least_violating,omitempty"`

	// Candidate is the tightest satisfying point of the last quasi-random
	// batch, the preferred seed of the next local phase.
	Candidate *Sample `json:"candidate,omitempty"`

	Evaluations int    `json:"evaluations"`
	Faults      int    `json:"faults"`
	Cursor      uint64 `json:"seed_cursor"`
	Iterations  int    `json:"iterations"`
	CornersDone bool   `json:"corners_done"`
	// CornersSkipped counts corners left out because the evaluation
	// budget ran out first.
	CornersSkipped int `json:"corners_skipped,omitempty"`
}

// Batch is one evaluated group of points, handed to the recorder after
// it has been merged into the state.
type Batch struct {
	Phase      Phase
	Iteration  int
	Points     [][]float64
	Objectives []float64
	Duration   time.Duration
}

// Result summarizes a Run.
type Result struct {
	Falsified bool       `json:"falsified"`
	Stop      StopReason `json:"stop"`
	Best      *Sample    `json:"best,omitempty"`

	// CornersSkipped is nonzero when the corner batch did not fit the
	// evaluation budget and was cut short.
	CornersSkipped int `json:"corners_skipped,omitempty"`

	// Evaluations and Faults count this Run only; State holds the totals.
	Evaluations int           `json:"evaluations"`
	Faults      int           `json:"faults"`
	Elapsed     time.Duration `json:"elapsed"`
	State       State         `json:"state"`
}

func (s *Sample) clone() *Sample {
	if s == nil {
		return nil
	}
	return &Sample{Values: append([]float64(nil), s.Values...), Objective: s.Objective}
}

func (s State) clone() State {
	s.Best = s.Best.clone()
	s.LeastViolating = s.LeastViolating.clone()
	s.Candidate = s.Candidate.clone()
	return s
}
