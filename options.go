package falsify

import (
	"log/slog"
	"runtime"

	"github.com/goatx/falsify/formula"
	"github.com/goatx/falsify/internal/metrics"
	"github.com/goatx/falsify/paramset"
	"github.com/goatx/falsify/simulator"
)

// Option is a configuration option for a Session.
//
// Use the provided helper functions like WithSimulator() and
// WithTimeSpan() to create options.
//
// Example:
//
//	s, err := falsify.New(
//	    falsify.WithSimulator(model),
//	    falsify.WithTimeSpan(simulator.TimeSpan{End: 10, Step: 0.05}),
//	)
type Option interface {
	apply(*options)
}

type options struct {
	registry *formula.Registry
	sim      simulator.Simulator
	span     simulator.TimeSpan
	params   *paramset.Set
	workers  int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func newOptions(opts ...Option) *options {
	o := &options{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.registry == nil {
		o.registry = formula.NewRegistry()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.metrics == nil {
		o.metrics = metrics.Default
	}
	return o
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) {
	f(o)
}

// WithSimulator sets the simulator that produces trajectories for
// parameter points.
func WithSimulator(sim simulator.Simulator) Option {
	return optionFunc(func(o *options) {
		o.sim = sim
	})
}

// WithTimeSpan sets the simulated time span.
func WithTimeSpan(span simulator.TimeSpan) Option {
	return optionFunc(func(o *options) {
		o.span = span
	})
}

// WithParamSet sets the initial parameter set.
func WithParamSet(ps *paramset.Set) Option {
	return optionFunc(func(o *options) {
		o.params = ps
	})
}

// WithRegistry shares a formula registry with the session, for example
// one with signals already declared.
func WithRegistry(reg *formula.Registry) Option {
	return optionFunc(func(o *options) {
		o.registry = reg
	})
}

// WithWorkers bounds the number of simulations and evaluations run at a
// time. It defaults to GOMAXPROCS; n <= 0 keeps the default.
func WithWorkers(n int) Option {
	return optionFunc(func(o *options) {
		if n > 0 {
			o.workers = n
		}
	})
}

// WithLogger sets the logger. The session is silent by default.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(o *options) {
		o.logger = l
	})
}

// WithMetrics sets the Prometheus collectors updated by the session and
// the searches it creates.
func WithMetrics(m *metrics.Metrics) Option {
	return optionFunc(func(o *options) {
		o.metrics = m
	})
}
