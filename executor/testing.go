package executor

import (
	"context"
	"io"
	"sync"

	"github.com/caffeineduck/starctx/hostfunc"
	"github.com/caffeineduck/starctx/interp"
)

// TestInterpreter provides an interpreter shared by tests so each test does
// not rebuild the default namespace. It discards print output and exposes
// an "echo" host function returning its arguments.
var (
	testInterp     *interp.Interpreter
	testInterpOnce sync.Once
)

// GetTestInterpreter returns the shared test interpreter, creating it on
// first use.
func GetTestInterpreter() *interp.Interpreter {
	testInterpOnce.Do(func() {
		registry := hostfunc.NewRegistry()
		registry.Register("echo", func(ctx context.Context, args map[string]any) (any, error) {
			return args, nil
		})
		testInterp = interp.New(
			interp.WithRegistry(registry),
			interp.WithStdout(io.Discard),
		)
	})
	return testInterp
}

// NewTestContext returns a fresh Context on the shared test interpreter.
func NewTestContext(opts ...Option) *Context {
	opts = append([]Option{WithInterpreter(GetTestInterpreter())}, opts...)
	return New(opts...)
}
