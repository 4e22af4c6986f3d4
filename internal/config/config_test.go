package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/internal/test"
	"github.com/goatx/falsify/search"
	"github.com/goatx/falsify/simulator"
)

const runFile = `
spec: ramp.stl
formula: safe
model:
  builtin: ramp
span: {start: 0, end: 10, step: 0.5}
params:
  - name: rate
    range: [0.1, 1]
  - name: limit
    value: 8
sim_params: [rate]
search:
  corners: true
  budget:
    evaluations: 100
    time: 30s
`

func TestLoad(t *testing.T) {
	path := test.WriteTemp(t, "run.yaml", runFile)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "safe", cfg.Formula)
	assert.Equal(t, simulator.TimeSpan{Start: 0, End: 10, Step: 0.5}, cfg.Span)
	assert.True(t, cfg.Search.Corners)
	assert.Equal(t, search.Budget{Evaluations: 100, Time: 30 * time.Second}, cfg.Search.Budget)
	assert.Equal(t, search.DefaultBatchSize, cfg.Search.BatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "ramp.stl"), cfg.Spec)

	ps, err := cfg.ParamSet(metrics.New(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"rate", "limit"}, ps.Names())
	assert.Equal(t, []string{"rate"}, ps.SimParams())
	lo, hi := ps.Bounds()
	assert.InDeltaSlice(t, []float64{0.1, 8}, lo, 1e-12)
	assert.InDeltaSlice(t, []float64{1, 8}, hi, 1e-12)

	sim, err := cfg.Simulator()
	require.NoError(t, err)
	assert.NotNil(t, sim)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FALSIFY_STORE", "/tmp/runs.db")
	t.Setenv("FALSIFY_WORKERS", "3")
	cfg, err := Parse([]byte(runFile))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/runs.db", cfg.Store)
	assert.Equal(t, 3, cfg.Workers)

	t.Setenv("FALSIFY_WORKERS", "many")
	_, err = Parse([]byte(runFile))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "no formula",
			yaml: "spec: a.stl\nmodel: {builtin: ramp}\nparams: [{name: a, value: 1}]\nsearch: {budget: {evaluations: 1}}\n",
		},
		{
			name: "no model",
			yaml: "spec: a.stl\nformula: phi\nparams: [{name: a, value: 1}]\nsearch: {budget: {evaluations: 1}}\n",
		},
		{
			name: "builtin and command",
			yaml: "spec: a.stl\nformula: phi\nmodel: {builtin: ramp, command: [sim]}\nparams: [{name: a, value: 1}]\nsearch: {budget: {evaluations: 1}}\n",
		},
		{
			name: "range and value",
			yaml: "spec: a.stl\nformula: phi\nmodel: {builtin: ramp}\nparams: [{name: a, value: 1, range: [0, 1]}]\nsearch: {budget: {evaluations: 1}}\n",
		},
		{
			name: "short range",
			yaml: "spec: a.stl\nformula: phi\nmodel: {builtin: ramp}\nparams: [{name: a, range: [0]}]\nsearch: {budget: {evaluations: 1}}\n",
		},
		{
			name: "duplicate parameter",
			yaml: "spec: a.stl\nformula: phi\nmodel: {builtin: ramp}\nparams: [{name: a, value: 1}, {name: a, value: 2}]\nsearch: {budget: {evaluations: 1}}\n",
		},
		{
			name: "unbounded search",
			yaml: "spec: a.stl\nformula: phi\nmodel: {builtin: ramp}\nparams: [{name: a, value: 1}]\n",
		},
		{
			name: "bad log level",
			yaml: "spec: a.stl\nformula: phi\nmodel: {builtin: ramp}\nparams: [{name: a, value: 1}]\nsearch: {budget: {evaluations: 1}}\nlog: {level: loud}\n",
		},
		{
			name: "reversed span",
			yaml: "spec: a.stl\nformula: phi\nmodel: {builtin: ramp}\nspan: {start: 2, end: 1}\nparams: [{name: a, value: 1}]\nsearch: {budget: {evaluations: 1}}\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Parse([]byte("spec: a.stl\nunknown_field: 1\n"))
	assert.Error(t, err)
}
