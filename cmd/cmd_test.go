package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/goatx/falsify/internal/test"
)

// executeCommand runs the root command with args and returns its output. Flags
// are reset afterwards so that commands do not leak values between runs.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	origOut := rootCmd.OutOrStdout()
	origErr := rootCmd.ErrOrStderr()

	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)

	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(origOut)
		rootCmd.SetErr(origErr)
	})
	defer resetFlags(rootCmd)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestCheckCommand_Trace(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		golden string
	}{
		{
			name:   "safe",
			args:   []string{"--formula", "safe"},
			golden: "check.golden",
		},
		{
			name:   "strict full",
			args:   []string{"--formula", "strict", "--full"},
			golden: "check_full.golden",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"check",
				"--spec", test.Fixture(t, "ramp.stl"),
				"--trace", test.Fixture(t, "trace.csv"),
			}, tt.args...)
			got, err := executeCommand(t, args...)
			if err != nil {
				t.Fatalf("execute failed: %v", err)
			}
			want := test.ReadGolden(t, tt.golden)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCheckCommand_At(t *testing.T) {
	got, err := executeCommand(t, "check", "--quiet",
		"--spec", test.Fixture(t, "ramp.stl"),
		"--trace", test.Fixture(t, "trace.csv"),
		"--formula", "strict", "--at", "3")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	want := "Formula: strict\nRobustness at t=3: 0\nVerdict: boundary\n"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckCommand_Output(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "report.txt")
	got, err := executeCommand(t, "check",
		"--spec", test.Fixture(t, "ramp.stl"),
		"--trace", test.Fixture(t, "trace.csv"),
		"--formula", "safe", "--output", outputPath)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if got != "" {
		t.Errorf("stdout = %q, want nothing", got)
	}
	report, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(test.ReadGolden(t, "check.golden"), string(report)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing trace", args: []string{"check", "--spec", "ramp.stl", "--formula", "safe"}},
		{name: "unknown formula", args: []string{"check", "--spec", "FIXTURE:ramp.stl", "--trace", "FIXTURE:trace.csv", "--formula", "nope"}},
		{name: "out of domain", args: []string{"check", "--spec", "FIXTURE:ramp.stl", "--trace", "FIXTURE:trace.csv", "--formula", "safe", "--at", "7"}},
		{name: "config and trace", args: []string{"check", "--config", "FIXTURE:run.yaml", "--trace", "FIXTURE:trace.csv"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := make([]string, len(tt.args))
			for i, a := range tt.args {
				if name, ok := strings.CutPrefix(a, "FIXTURE:"); ok {
					a = test.Fixture(t, name)
				}
				args[i] = a
			}
			if _, err := executeCommand(t, args...); err == nil {
				t.Fatal("execute succeeded, want error")
			}
		})
	}
}

func TestCheckCommand_Config(t *testing.T) {
	got, err := executeCommand(t, "check", "--config", test.Fixture(t, "run.yaml"), "--grid", "3")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	for _, line := range []string{
		"Robustness Summary: safe\n",
		"Points: 3\n",
		"Satisfied: 2\n",
		"Violations: 1 found\n",
		"Min Robustness: -1 (point 2)\n",
		"Max Robustness: 3 (point 0)\n",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("output missing %q:\n%s", line, got)
		}
	}
}

func TestCheckCommand_ConfigDebug(t *testing.T) {
	got, err := executeCommand(t, "check", "--config", test.Fixture(t, "run.yaml"),
		"--grid", "2", "--formula", "reach", "--debug")
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	var report struct {
		Points []struct {
			Values     map[string]float64 `json:"values"`
			Robustness *float64           `json:"robustness"`
		} `json:"points"`
	}
	if err := json.Unmarshal([]byte(got), &report); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, got)
	}
	if len(report.Points) != 2 {
		t.Fatalf("points = %d, want 2", len(report.Points))
	}
	// reach is ev_[0,3] (y[t] > 2) over a 2 second trajectory, so only
	// the window up to the trajectory end counts: max(y) - 2 = 2*rate - 2.
	for i, want := range []float64{-2, 2} {
		p := report.Points[i]
		if p.Robustness == nil || *p.Robustness != want {
			t.Errorf("point %d (rate %g) robustness = %v, want %g", i, p.Values["rate"], p.Robustness, want)
		}
	}
}

var runIDPattern = regexp.MustCompile(`Run ID: ([0-9a-f-]{36})`)

func TestRunCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")

	got, err := executeCommand(t, "run", "--config", test.Fixture(t, "run.yaml"), "--db", db)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	for _, line := range []string{
		"Counterexample: found",
		"Best Robustness: -1\n",
		"  rate = 2\n",
		"Stop Reason: falsified\n",
		"Evaluations: 2 (total 2)\n",
	} {
		if !strings.Contains(got, line) {
			t.Errorf("run output missing %q:\n%s", line, got)
		}
	}
	m := runIDPattern.FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("run output has no run id:\n%s", got)
	}
	id := m[1]

	got, err = executeCommand(t, "resume", id, "--db", db, "--evaluations", "5")
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if !strings.Contains(got, "Stop Reason: falsified\n") || !strings.Contains(got, "Evaluations: 0 (total 2)\n") {
		t.Errorf("resumed falsified run should stop at once:\n%s", got)
	}

	got, err = executeCommand(t, "runs", "--db", db)
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 {
		t.Fatalf("runs output = %q, want a header and one run", got)
	}
	for _, field := range []string{id, "safe", "finished", "falsified", "-1"} {
		if !strings.Contains(lines[1], field) {
			t.Errorf("runs row missing %q: %q", field, lines[1])
		}
	}

	got, err = executeCommand(t, "runs", "--db", db, id)
	if err != nil {
		t.Fatalf("runs RUN_ID failed: %v", err)
	}
	lines = strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "corners") {
		t.Errorf("batch history = %q, want one corners batch", got)
	}
}

func TestResumeCommand_ContinuesSearch(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	cfg := test.WriteTemp(t, "robust.yaml", `
spec: `+test.Fixture(t, "ramp.stl")+`
formula: safe
model: {builtin: ramp}
span: {start: 0, end: 2, step: 0.5}
params:
  - {name: rate, range: [0, 1.4]}
search:
  corners: true
  batch_size: 4
  budget: {evaluations: 10}
log: {quiet: true}
`)

	got, err := executeCommand(t, "run", "--config", cfg, "--db", db)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !strings.Contains(got, "Counterexample: None\n") || !strings.Contains(got, "Stop Reason: evaluation_budget\n") {
		t.Fatalf("run output:\n%s", got)
	}
	m := runIDPattern.FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("run output has no run id:\n%s", got)
	}

	got, err = executeCommand(t, "resume", m[1], "--db", db, "--evaluations", "6")
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if !strings.Contains(got, "Evaluations: 6 (total 16)\n") {
		t.Errorf("resume output:\n%s", got)
	}

	got, err = executeCommand(t, "runs", "--db", db, m[1])
	if err != nil {
		t.Fatalf("runs RUN_ID failed: %v", err)
	}
	// corners, two batches of 4, then 4 and 2 after resuming
	if n := strings.Count(got, "quasi_random"); n != 4 {
		t.Errorf("quasi-random batches = %d, want 4:\n%s", n, got)
	}
}

func TestResumeCommand_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	if _, err := executeCommand(t, "resume", "not-a-uuid", "--db", db); err == nil {
		t.Error("resume with a malformed id succeeded")
	}
	if _, err := executeCommand(t, "resume", "0b5c4f9e-8d7a-4c1e-9f1a-2b3c4d5e6f70", "--db", db); err == nil {
		t.Error("resume of an unknown run succeeded")
	}
}
