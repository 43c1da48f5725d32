package executor

import (
	"github.com/caffeineduck/starctx/interp"
)

// Option configures a Context.
type Option func(*config)

type config struct {
	interp     *interp.Interpreter
	onFailure  FailureHandler
	threadName string
}

func defaultConfig() config {
	return config{
		onFailure: PanicOnFailure,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.interp == nil {
		cfg.interp = interp.Default()
	}
	if cfg.onFailure == nil {
		cfg.onFailure = PanicOnFailure
	}
	return cfg
}

// WithInterpreter runs the context on i instead of interp.Default().
func WithInterpreter(i *interp.Interpreter) Option {
	return func(c *config) {
		c.interp = i
	}
}

// WithFailureHandler replaces the policy applied when a fatal operation
// fails.
func WithFailureHandler(h FailureHandler) Option {
	return func(c *config) {
		c.onFailure = h
	}
}

// WithThreadName names the threads blocks run on. Defaults to the block's
// filename.
func WithThreadName(name string) Option {
	return func(c *config) {
		c.threadName = name
	}
}
