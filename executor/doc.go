// Package executor runs compiled Starlark blocks inside persistent
// execution contexts.
//
// # Overview
//
// A Context is a global namespace bootstrapped from the interpreter's
// __main__ module. Values move across the boundary through the marshal
// package: Set converts Go values in, Get converts them back out into the
// requested Go type. Blocks run against the namespace in place, so
// definitions and assignments persist from one run to the next.
//
// # Basic Usage
//
//	c := executor.New()
//	c.Set("foo", 5)
//	c.Run(block.MustCompile(`
//		foo = foo * 3
//		bar = [foo, foo + 1]
//	`))
//	fmt.Println(executor.Get[[]int](c, "bar")) // [15 16]
//
// # Captures
//
// Host values can be bound by name when a block is compiled. They are
// converted and assigned right before the block runs:
//
//	c.Run(block.MustCompile(`y = x * 2`, block.Var("x", 21)))
//
// # Locking
//
// Every operation has two forms. The plain form acquires the interpreter
// lock for the duration of the call. The WithLock form takes a lock the
// caller already holds, which lets several operations run atomically:
//
//	i := c.Interpreter()
//	i.With(func(lock *interp.Lock) error {
//		c.SetWithLock(lock, "n", 1)
//		c.RunWithLock(lock, block.MustCompile(`n += 1`))
//		return nil
//	})
//
// The lock is not reentrant. Calling a plain method while holding the lock
// deadlocks; passing a released or foreign lock fails with
// errors.KindLockNotHeld.
//
// # Failures
//
// New, Set, Get and Run have no error return. When they fail, the error is
// logged and handed to the context's FailureHandler, which panics by
// default. The lock is released before the panic leaves the call. NewChecked,
// TrySet, TryGet and Exec return the error instead.
//
//	if _, err := executor.TryGet[int](c, "missing"); errors.HasKind(err, errors.KindNotFound) {
//		...
//	}
package executor
