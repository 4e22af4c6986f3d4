// Package config loads falsification run files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/goatx/falsify/internal/logging"
	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/internal/models"
	"github.com/goatx/falsify/paramset"
	"github.com/goatx/falsify/search"
	"github.com/goatx/falsify/simulator"
)

// ErrInvalid indicates a run file rejected by validation.
var ErrInvalid = errors.New("config: invalid run file")

var validate = validator.New()

// Config is a falsification run file.
type Config struct {
	// Spec is the specification file, relative to the run file.
	Spec    string             `yaml:"spec" json:"spec" validate:"required"`
	Formula string             `yaml:"formula" json:"formula" validate:"required"`
	Model   Model              `yaml:"model" json:"model"`
	Span    simulator.TimeSpan `yaml:"span" json:"span"`
	Params  []Param            `yaml:"params" json:"params" validate:"required,min=1,dive"`

	// SimParams lists the parameters passed to the simulator; the rest
	// only affect evaluation. Empty means all.
	SimParams []string `yaml:"sim_params,omitempty" json:"sim_params,omitempty"`

	Workers int            `yaml:"workers" json:"workers" validate:"gte=0"`
	Search  search.Config  `yaml:"search" json:"search"`
	Log     logging.Config `yaml:"log" json:"log"`

	// Store is the SQLite run database.
	Store string `yaml:"store,omitempty" json:"store,omitempty"`
}

// Model selects a built-in model or an external simulator command.
type Model struct {
	Builtin string   `yaml:"builtin,omitempty" json:"builtin,omitempty" validate:"required_without=Command,excluded_with=Command"`
	Command []string `yaml:"command,omitempty" json:"command,omitempty" validate:"required_without=Builtin"`
	Env     []string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Param is a searched range or a fixed value.
type Param struct {
	Name  string    `yaml:"name" json:"name" validate:"required"`
	Range []float64 `yaml:"range,omitempty" json:"range,omitempty" validate:"omitempty,len=2"`
	Value *float64  `yaml:"value,omitempty" json:"value,omitempty"`
}

// Load reads, defaults and validates a run file. Environment variables
// FALSIFY_STORE, FALSIFY_LOG_LEVEL and FALSIFY_WORKERS override the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Spec != "" && !filepath.IsAbs(cfg.Spec) {
		cfg.Spec = filepath.Join(filepath.Dir(path), cfg.Spec)
	}
	return cfg, nil
}

// Parse decodes a run file from YAML. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.Search.ApplyDefaults()
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FALSIFY_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("FALSIFY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FALSIFY_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: FALSIFY_WORKERS=%q", ErrInvalid, v)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks field constraints, the time span, the search settings
// and that parameter names are unique.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Span.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.Search.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	seen := map[string]bool{}
	for _, p := range c.Params {
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate parameter %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
		if (p.Value == nil) == (len(p.Range) == 0) {
			return fmt.Errorf("%w: parameter %q needs exactly one of range and value", ErrInvalid, p.Name)
		}
		if len(p.Range) == 2 && p.Range[1] < p.Range[0] {
			return fmt.Errorf("%w: parameter %q has range [%g, %g]", ErrInvalid, p.Name, p.Range[0], p.Range[1])
		}
	}
	return nil
}

// ParamSet builds the search domain: one rectangle over the ranges, with
// fixed parameters at their value.
func (c *Config) ParamSet(m *metrics.Metrics) (*paramset.Set, error) {
	names := make([]string, len(c.Params))
	ranges := make([][2]float64, len(c.Params))
	for i, p := range c.Params {
		names[i] = p.Name
		if p.Value != nil {
			ranges[i] = [2]float64{*p.Value, *p.Value}
			continue
		}
		ranges[i] = [2]float64{p.Range[0], p.Range[1]}
	}
	opts := []paramset.Option{paramset.WithMetrics(m)}
	if len(c.SimParams) > 0 {
		opts = append(opts, paramset.WithSimParams(c.SimParams...))
	}
	return paramset.New(names, ranges, opts...)
}

// Simulator returns the configured model.
func (c *Config) Simulator() (simulator.Simulator, error) {
	if c.Model.Builtin != "" {
		m, err := models.Lookup(c.Model.Builtin)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return &simulator.Exec{Path: c.Model.Command[0], Args: c.Model.Command[1:], Env: c.Model.Env}, nil
}
