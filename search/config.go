package search

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnbounded indicates a budget with no evaluation, time or
	// iteration limit.
	ErrUnbounded = errors.New("search: budget sets no limit")

	// ErrInvalidConfig indicates a configuration rejected by validation.
	ErrInvalidConfig = errors.New("search: invalid configuration")

	// ErrNoEvaluablePoint indicates that no point evaluated so far produced
	// a defined objective, so there is nothing to seed the local phase with.
	ErrNoEvaluablePoint = errors.New("search: no evaluable point")
)

var validate = validator.New()

// Budget limits one Run. A zero field is no limit, but at least one field
// must be set.
type Budget struct {
	Evaluations int           `yaml:"evaluations" json:"evaluations" validate:"gte=0"`
	Time        time.Duration `yaml:"time" json:"time" validate:"gte=0"`
	Iterations  int           `yaml:"iterations" json:"iterations" validate:"gte=0"`
}

// Config holds the search settings.
type Config struct {
	// Corners evaluates every extreme of the uncertain parameters once,
	// before the first quasi-random batch.
	Corners    bool `yaml:"corners" json:"corners"`
	MaxCorners int  `yaml:"max_corners" json:"max_corners" validate:"gte=0"`

	// BatchSize is the number of quasi-random points drawn per rectangle
	// of the domain in each outer iteration.
	BatchSize int `yaml:"batch_size" json:"batch_size" validate:"gte=0"`

	// Local enables the Nelder-Mead phase seeded at the selected point.
	Local            bool    `yaml:"local" json:"local"`
	LocalEvaluations int     `yaml:"local_evaluations" json:"local_evaluations" validate:"gte=0"`
	SimplexSize      float64 `yaml:"simplex_size" json:"simplex_size" validate:"gte=0,lte=1"`

	// Target is the objective threshold below which a point falsifies the
	// formula.
	Target float64 `yaml:"target" json:"target"`

	Budget Budget `yaml:"budget" json:"budget"`
}

// Defaults used by ApplyDefaults.
const (
	DefaultMaxCorners       = 1024
	DefaultBatchSize        = 16
	DefaultLocalEvaluations = 50
	DefaultSimplexSize      = 0.1
)

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxCorners == 0 {
		c.MaxCorners = DefaultMaxCorners
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.LocalEvaluations == 0 {
		c.LocalEvaluations = DefaultLocalEvaluations
	}
	if c.SimplexSize == 0 {
		c.SimplexSize = DefaultSimplexSize
	}
}

// Validate checks field ranges and that the budget is bounded.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Budget.Evaluations == 0 && c.Budget.Time == 0 && c.Budget.Iterations == 0 {
		return ErrUnbounded
	}
	return nil
}
