// Package interp owns the embedded Starlark interpreter state shared by
// every execution context: the global interpreter lock, the __main__
// namespace new contexts are bootstrapped from, and thread configuration.
//
// All namespace reads, writes and executions must happen while holding the
// interpreter's lock. Acquire returns a *Lock that serves as proof of
// ownership; operations that take a *Lock verify it with Check.
//
//	i := interp.Default()
//	lock := i.Acquire()
//	defer lock.Release()
//
// The lock is not reentrant: acquiring it twice from the same goroutine
// deadlocks. Code that already holds a lock must use the WithLock variants
// of the executor API.
package interp

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/starctx/errors"
	"github.com/caffeineduck/starctx/hostfunc"
	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// MainName is the value of __name__ in the default namespace.
const MainName = "__main__"

// Interpreter is one embedded interpreter instance.
type Interpreter struct {
	gil    sync.Mutex
	cfg    config
	main   starlark.StringDict
	closed atomic.Bool
}

var (
	defaultInterp     *Interpreter
	defaultInterpOnce sync.Once
)

// Default returns the process-wide interpreter, creating it on first use.
func Default() *Interpreter {
	defaultInterpOnce.Do(func() {
		defaultInterp = New()
	})
	return defaultInterp
}

// New creates an independent interpreter.
func New(opts ...Option) *Interpreter {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	i := &Interpreter{cfg: cfg}
	i.main = i.buildMain()
	return i
}

func (i *Interpreter) buildMain() starlark.StringDict {
	main := starlark.StringDict{
		"__name__": starlark.String(MainName),
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	if i.cfg.registry != nil {
		for name, fn := range hostfunc.Builtins(i.cfg.registry) {
			main[name] = fn
		}
	}
	main.Freeze()
	return main
}

// MainModule returns the default top-level namespace. The returned dict is
// shared and frozen; callers copy its entries instead of mutating it.
func (i *Interpreter) MainModule(lock *Lock) (starlark.StringDict, error) {
	if err := lock.Check(i); err != nil {
		return nil, err
	}
	if i.closed.Load() {
		return nil, errors.Bootstrap("module "+MainName+" not found: interpreter closed", nil)
	}
	return i.main, nil
}

// NewThread returns a thread for executing code under lock.
func (i *Interpreter) NewThread(lock *Lock, name string) (*starlark.Thread, error) {
	if err := lock.Check(i); err != nil {
		return nil, err
	}
	if i.closed.Load() {
		return nil, errors.New(errors.PhaseExecute, errors.KindUnavailable).
			Detail("interpreter closed").
			Build()
	}

	thread := &starlark.Thread{
		Name:  name,
		Print: i.print,
		Load:  i.load,
	}
	if i.cfg.maxSteps > 0 {
		thread.SetMaxExecutionSteps(i.cfg.maxSteps)
	}
	thread.SetLocal(hostfunc.ContextKey, i.cfg.hostContext)
	return thread, nil
}

// FileOptions returns the dialect options blocks should be parsed with.
func (i *Interpreter) FileOptions() *syntax.FileOptions {
	return i.cfg.fileOptions
}

// Logger returns the interpreter's logger.
func (i *Interpreter) Logger() *zap.Logger {
	return i.cfg.logger
}

// Modules returns the names accepted by load().
func (i *Interpreter) Modules() []string {
	names := make([]string, 0, len(i.cfg.modules))
	for name := range i.cfg.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close marks the interpreter unusable. Contexts can no longer be created
// and blocks can no longer run.
func (i *Interpreter) Close() {
	if i.closed.CompareAndSwap(false, true) {
		i.cfg.logger.Debug("interpreter closed")
	}
}

// Closed reports whether Close has been called.
func (i *Interpreter) Closed() bool {
	return i.closed.Load()
}

func (i *Interpreter) print(_ *starlark.Thread, msg string) {
	fmt.Fprintln(i.cfg.stdout, msg)
}

// load resolves load("name", ...) against the built-in modules. The module
// itself is bound under its name and its members are importable directly:
//
//	load("json", "json")
//	load("math", "sqrt")
func (i *Interpreter) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	mod, ok := i.cfg.modules[module]
	if !ok {
		return nil, fmt.Errorf("module %q not found (available: %v)", module, i.Modules())
	}
	out := make(starlark.StringDict, len(mod.Members)+1)
	for name, v := range mod.Members {
		out[name] = v
	}
	out[module] = mod
	return out, nil
}

func builtinModules() map[string]*starlarkstruct.Module {
	return map[string]*starlarkstruct.Module{
		"json": json.Module,
		"math": math.Module,
		"struct": &starlarkstruct.Module{
			Name:    "struct",
			Members: starlark.StringDict{"struct": starlark.NewBuiltin("struct", starlarkstruct.Make)},
		},
		"time": startime.Module,
	}
}

func defaultStdout() io.Writer {
	return os.Stdout
}
