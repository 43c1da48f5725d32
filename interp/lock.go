package interp

import (
	"sync/atomic"

	"github.com/caffeineduck/starctx/errors"
)

// Lock is proof that the holder owns an interpreter's global lock. It is
// valid from Acquire until Release.
type Lock struct {
	interp *Interpreter
	held   atomic.Bool
}

// Acquire blocks until the interpreter lock is available.
func (i *Interpreter) Acquire() *Lock {
	i.gil.Lock()
	l := &Lock{interp: i}
	l.held.Store(true)
	return l
}

// With acquires the lock, runs fn and releases the lock on every exit path,
// including panics raised by fn.
func (i *Interpreter) With(fn func(*Lock) error) error {
	lock := i.Acquire()
	defer lock.Release()
	return fn(lock)
}

// Release gives the lock back. Releasing twice is a no-op.
func (l *Lock) Release() {
	if l == nil {
		return
	}
	if l.held.CompareAndSwap(true, false) {
		l.interp.gil.Unlock()
	}
}

// Held reports whether the lock has not been released yet.
func (l *Lock) Held() bool {
	return l != nil && l.held.Load()
}

// Interpreter returns the interpreter the lock belongs to.
func (l *Lock) Interpreter() *Interpreter {
	if l == nil {
		return nil
	}
	return l.interp
}

// Check verifies that l is held and guards i.
func (l *Lock) Check(i *Interpreter) error {
	switch {
	case l == nil:
		return errors.LockNotHeld("no lock given")
	case !l.held.Load():
		return errors.LockNotHeld("lock already released")
	case l.interp != i:
		return errors.LockNotHeld("lock belongs to a different interpreter")
	}
	return nil
}
