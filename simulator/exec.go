package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/goatx/falsify/signal"
)

// Exec runs an external program once per simulation. The program reads a
// JSON request {"params": {...}, "span": {...}} on stdin and writes the
// trajectory as CSV (see signal.ReadCSV) on stdout. A non-zero exit status
// is a fault.
type Exec struct {
	Path string
	Args []string
	Env  []string
}

type execRequest struct {
	Params map[string]float64 `json:"params"`
	Span   TimeSpan           `json:"span"`
}

// Simulate runs the program for one parameter assignment.
func (e *Exec) Simulate(ctx context.Context, params map[string]float64, span TimeSpan) (*signal.Trajectory, error) {
	if err := span.Validate(); err != nil {
		return nil, err
	}
	req, err := json.Marshal(execRequest{Params: params, Span: span})
	if err != nil {
		return nil, fmt.Errorf("encoding simulator request: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.Path, e.Args...)
	cmd.Env = e.Env
	cmd.Stdin = bytes.NewReader(req)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &FaultError{Time: span.Start, Params: params, Wrapped: err}
	}
	tr, err := signal.ReadCSV(bytes.NewReader(out))
	if err != nil {
		return nil, &FaultError{Time: span.Start, Params: params, Wrapped: err}
	}
	return tr, nil
}
