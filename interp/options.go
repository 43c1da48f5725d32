package interp

import (
	"context"
	"io"

	"github.com/caffeineduck/starctx/block"
	"github.com/caffeineduck/starctx/hostfunc"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// Option configures an Interpreter at creation time.
type Option func(*config)

type config struct {
	stdout      io.Writer
	registry    *hostfunc.Registry
	hostContext context.Context
	maxSteps    uint64 // 0 = unlimited
	fileOptions *syntax.FileOptions
	logger      *zap.Logger
	modules     map[string]*starlarkstruct.Module
}

func defaultConfig() config {
	return config{
		stdout:      defaultStdout(),
		hostContext: context.Background(),
		fileOptions: block.DefaultFileOptions(),
		logger:      zap.NewNop(),
		modules:     builtinModules(),
	}
}

// WithStdout sets where print() writes. Defaults to os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(c *config) {
		c.stdout = w
	}
}

// WithRegistry exposes the registry's host functions in the default
// namespace.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithHostContext sets the context.Context handed to host functions.
func WithHostContext(ctx context.Context) Option {
	return func(c *config) {
		c.hostContext = ctx
	}
}

// WithMaxSteps bounds the number of computation steps a single run may take.
func WithMaxSteps(n uint64) Option {
	return func(c *config) {
		c.maxSteps = n
	}
}

// WithFileOptions replaces the dialect options.
func WithFileOptions(opts *syntax.FileOptions) Option {
	return func(c *config) {
		c.fileOptions = opts
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithModule makes members loadable as load(name, ...).
func WithModule(name string, members starlark.StringDict) Option {
	return func(c *config) {
		c.modules[name] = &starlarkstruct.Module{Name: name, Members: members}
	}
}
