package executor

import (
	"sort"

	"github.com/caffeineduck/starctx/block"
	"github.com/caffeineduck/starctx/errors"
	"github.com/caffeineduck/starctx/interp"
	"github.com/caffeineduck/starctx/marshal"
	"go.starlark.net/starlark"
)

// Context is a persistent global namespace on an interpreter. Variables
// set from Go and definitions made by blocks stay in it across runs.
//
// Every method either acquires the interpreter lock itself or, in its
// WithLock form, takes a lock the caller already holds.
type Context struct {
	interp  *interp.Interpreter
	globals starlark.StringDict
	cfg     config
}

// New creates a Context, acquiring the interpreter lock for the duration of
// the call. Failures go to the configured FailureHandler.
func New(opts ...Option) *Context {
	cfg := newConfig(opts)

	lock := cfg.interp.Acquire()
	defer lock.Release()

	c, err := newWithLock(lock, cfg)
	if err != nil {
		logFailure(cfg, "new", err)
		cfg.onFailure("new", err)
		return nil
	}
	return c
}

// NewChecked is like New but returns the error.
func NewChecked(opts ...Option) (*Context, error) {
	cfg := newConfig(opts)

	lock := cfg.interp.Acquire()
	defer lock.Release()

	return newWithLock(lock, cfg)
}

// NewWithLock creates a Context on the interpreter lock belongs to. The
// caller must hold lock; an interpreter given through WithInterpreter is
// ignored.
func NewWithLock(lock *interp.Lock, opts ...Option) (*Context, error) {
	opts = append(opts, WithInterpreter(lock.Interpreter()))
	return newWithLock(lock, newConfig(opts))
}

func newWithLock(lock *interp.Lock, cfg config) (*Context, error) {
	if err := lock.Check(cfg.interp); err != nil {
		return nil, err
	}

	main, err := cfg.interp.MainModule(lock)
	if err != nil {
		return nil, err
	}

	globals, err := mergeGlobals(make(starlark.StringDict, len(main)), main)
	if err != nil {
		return nil, err
	}

	return &Context{
		interp:  cfg.interp,
		globals: globals,
		cfg:     cfg,
	}, nil
}

// mergeGlobals copies src into dst without overwriting existing entries.
func mergeGlobals(dst, src starlark.StringDict) (starlark.StringDict, error) {
	for name, v := range src {
		if v == nil {
			return nil, errors.New(errors.PhaseBootstrap, errors.KindInterpreter).
				Name(name).
				Detail("%s holds a nil value", interp.MainName).
				Build()
		}
		if _, ok := dst[name]; !ok {
			dst[name] = v
		}
	}
	return dst, nil
}

// Interpreter returns the interpreter the context runs on.
func (c *Context) Interpreter() *interp.Interpreter {
	return c.interp
}

// Globals returns the live namespace. The caller must hold lock for as long
// as it uses the dict.
func (c *Context) Globals(lock *interp.Lock) starlark.StringDict {
	if err := lock.Check(c.interp); err != nil {
		c.fail("globals", err)
		return nil
	}
	return c.globals
}

// Has reports whether name is bound.
func (c *Context) Has(name string) bool {
	lock := c.interp.Acquire()
	defer lock.Release()

	_, ok := c.globals[name]
	return ok
}

// Names returns the bound names in sorted order.
func (c *Context) Names() []string {
	lock := c.interp.Acquire()
	defer lock.Release()

	names := make([]string, 0, len(c.globals))
	for name := range c.globals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set binds value to name, replacing any previous binding.
func (c *Context) Set(name string, value any) {
	lock := c.interp.Acquire()
	defer lock.Release()

	c.SetWithLock(lock, name, value)
}

// SetWithLock is Set for callers holding the interpreter lock.
func (c *Context) SetWithLock(lock *interp.Lock, name string, value any) {
	if err := c.TrySetWithLock(lock, name, value); err != nil {
		c.fail("set", err)
	}
}

// TrySet is Set returning the error instead of failing.
func (c *Context) TrySet(name string, value any) error {
	lock := c.interp.Acquire()
	defer lock.Release()

	return c.TrySetWithLock(lock, name, value)
}

// TrySetWithLock is TrySet for callers holding the interpreter lock.
func (c *Context) TrySetWithLock(lock *interp.Lock, name string, value any) error {
	if err := lock.Check(c.interp); err != nil {
		return err
	}
	if !marshal.ValidName(name) {
		return errors.New(errors.PhaseEncode, errors.KindInvalidName).
			Name(name).
			GoType(marshal.TypeName(value)).
			Detail("not a valid identifier").
			Build()
	}
	return c.bind(name, value)
}

func (c *Context) bind(name string, value any) error {
	v, err := marshal.ToValue(value)
	if err != nil {
		return errors.Named(err, errors.PhaseEncode, name, marshal.TypeName(value))
	}
	c.globals[name] = v
	return nil
}

// Get converts the variable name to T. A missing variable or a failed
// conversion goes to the FailureHandler.
func Get[T any](c *Context, name string) T {
	lock := c.interp.Acquire()
	defer lock.Release()

	return GetWithLock[T](lock, c, name)
}

// GetWithLock is Get for callers holding the interpreter lock.
func GetWithLock[T any](lock *interp.Lock, c *Context, name string) T {
	v, err := TryGetWithLock[T](lock, c, name)
	if err != nil {
		c.fail("get", err)
	}
	return v
}

// TryGet is Get returning the error instead of failing.
func TryGet[T any](c *Context, name string) (T, error) {
	lock := c.interp.Acquire()
	defer lock.Release()

	return TryGetWithLock[T](lock, c, name)
}

// TryGetWithLock is TryGet for callers holding the interpreter lock.
func TryGetWithLock[T any](lock *interp.Lock, c *Context, name string) (T, error) {
	var zero T

	if err := lock.Check(c.interp); err != nil {
		return zero, err
	}

	v, ok := c.globals[name]
	if !ok {
		return zero, errors.NotFound(name)
	}

	out, err := marshal.As[T](v)
	if err != nil {
		return zero, errors.Named(err, errors.PhaseDecode, name, marshal.GoTypeName[T]())
	}
	return out, nil
}

// Run executes b in the context. Its captures are bound first. Failures go
// to the FailureHandler; bindings made before a failure are kept.
func (c *Context) Run(b *block.Block) {
	lock := c.interp.Acquire()
	defer lock.Release()

	c.RunWithLock(lock, b)
}

// RunWithLock is Run for callers holding the interpreter lock.
func (c *Context) RunWithLock(lock *interp.Lock, b *block.Block) {
	if err := c.ExecWithLock(lock, b); err != nil {
		c.fail("run", err)
	}
}

// Exec is Run returning the error instead of failing.
func (c *Context) Exec(b *block.Block) error {
	lock := c.interp.Acquire()
	defer lock.Release()

	return c.ExecWithLock(lock, b)
}

// ExecWithLock is Exec for callers holding the interpreter lock.
func (c *Context) ExecWithLock(lock *interp.Lock, b *block.Block) error {
	if err := lock.Check(c.interp); err != nil {
		return err
	}

	file, captures, err := b.Consume()
	if err != nil {
		return err
	}

	for _, capture := range captures {
		if err := c.bind(capture.Name, capture.Value); err != nil {
			return err
		}
	}

	name := c.cfg.threadName
	if name == "" {
		name = file.Path
	}
	return runFile(lock, c.globals, file, name)
}

// Compile compiles src with the interpreter's file options, naming the
// block after the caller.
func (c *Context) Compile(src string, captures ...block.Capture) (*block.Block, error) {
	return block.CompileFile(c.interp.FileOptions(), block.CallSite(1), block.Dedent(src), captures...)
}
