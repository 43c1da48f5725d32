package interp_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/caffeineduck/starctx/block"
	"github.com/caffeineduck/starctx/errors"
	"github.com/caffeineduck/starctx/hostfunc"
	"github.com/caffeineduck/starctx/interp"
	"go.starlark.net/starlark"
)

func exec(t *testing.T, i *interp.Interpreter, lock *interp.Lock, src string) error {
	t.Helper()
	main, err := i.MainModule(lock)
	if err != nil {
		t.Fatalf("main module: %v", err)
	}
	thread, err := i.NewThread(lock, t.Name())
	if err != nil {
		t.Fatalf("new thread: %v", err)
	}
	_, err = starlark.ExecFileOptions(block.DefaultFileOptions(), thread, "test.star", src, main)
	return err
}

func TestDefaultIsShared(t *testing.T) {
	if interp.Default() != interp.Default() {
		t.Error("Default returned different interpreters")
	}
}

func TestLockCheck(t *testing.T) {
	a := interp.New()
	b := interp.New()

	var nilLock *interp.Lock
	if err := nilLock.Check(a); !errors.HasKind(err, errors.KindLockNotHeld) {
		t.Errorf("nil lock: expected lock error, got %v", err)
	}

	lock := a.Acquire()
	if err := lock.Check(a); err != nil {
		t.Errorf("held lock rejected: %v", err)
	}
	if err := lock.Check(b); !errors.HasKind(err, errors.KindLockNotHeld) {
		t.Errorf("foreign lock: expected lock error, got %v", err)
	}
	if lock.Interpreter() != a {
		t.Error("lock reports wrong interpreter")
	}

	lock.Release()
	if lock.Held() {
		t.Error("released lock still held")
	}
	if err := lock.Check(a); !errors.HasKind(err, errors.KindLockNotHeld) {
		t.Errorf("released lock: expected lock error, got %v", err)
	}

	// Second release is a no-op and the lock is free again.
	lock.Release()
	a.Acquire().Release()
}

func TestWithReleasesOnError(t *testing.T) {
	i := interp.New()

	var held *interp.Lock
	err := i.With(func(lock *interp.Lock) error {
		held = lock
		return errors.LockNotHeld("boom")
	})
	if err == nil {
		t.Fatal("expected error from With")
	}
	if held.Held() {
		t.Error("lock still held after With returned")
	}
}

func TestWithReleasesOnPanic(t *testing.T) {
	i := interp.New()

	var held *interp.Lock
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		i.With(func(lock *interp.Lock) error {
			held = lock
			panic("boom")
		})
	}()

	if held.Held() {
		t.Error("lock still held after panic")
	}
	i.Acquire().Release()
}

func TestMainModule(t *testing.T) {
	registry := hostfunc.NewRegistry()
	registry.Register("greet", func(ctx context.Context, args map[string]any) (any, error) {
		return "hi", nil
	})
	i := interp.New(interp.WithRegistry(registry))

	lock := i.Acquire()
	defer lock.Release()

	main, err := i.MainModule(lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if name, _ := starlark.AsString(main["__name__"]); name != interp.MainName {
		t.Errorf("expected __name__ %q, got %v", interp.MainName, main["__name__"])
	}
	for _, want := range []string{"struct", "call", "greet"} {
		if !main.Has(want) {
			t.Errorf("main module missing %q", want)
		}
	}
}

func TestMainModuleRequiresLock(t *testing.T) {
	i := interp.New()
	lock := i.Acquire()
	lock.Release()

	if _, err := i.MainModule(lock); !errors.HasKind(err, errors.KindLockNotHeld) {
		t.Errorf("expected lock error, got %v", err)
	}
	if _, err := i.NewThread(lock, "x"); !errors.HasKind(err, errors.KindLockNotHeld) {
		t.Errorf("expected lock error, got %v", err)
	}
}

func TestClosed(t *testing.T) {
	i := interp.New()
	i.Close()
	i.Close()
	if !i.Closed() {
		t.Fatal("expected closed interpreter")
	}

	lock := i.Acquire()
	defer lock.Release()

	_, err := i.MainModule(lock)
	if !errors.HasPhase(err, errors.PhaseBootstrap) || !errors.HasKind(err, errors.KindUnavailable) {
		t.Errorf("expected bootstrap error, got %v", err)
	}
	if !strings.Contains(err.Error(), "__main__") {
		t.Errorf("error should mention __main__: %v", err)
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	i := interp.New(interp.WithStdout(&out))

	lock := i.Acquire()
	defer lock.Release()

	if err := exec(t, i, lock, `print("hello", 42)`); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.String() != "hello 42\n" {
		t.Errorf("expected %q, got %q", "hello 42\n", out.String())
	}
}

func TestLoad(t *testing.T) {
	i := interp.New(interp.WithModule("consts", starlark.StringDict{
		"answer": starlark.MakeInt(42),
	}))

	lock := i.Acquire()
	defer lock.Release()

	src := `
load("math", "sqrt")
load("json", "json")
load("consts", "answer")
load("struct", "struct")
if struct(a = 1).a != 1:
    fail("struct")
if sqrt(16) != 4:
    fail("sqrt")
if json.encode([1]) != "[1]":
    fail("json")
if answer != 42:
    fail("answer")
`
	if err := exec(t, i, lock, src); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := exec(t, i, lock, `load("missing", "x")`)
	if err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("expected missing module error, got %v", err)
	}

	want := []string{"consts", "json", "math", "struct", "time"}
	got := i.Modules()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Modules() = %v, want %v", got, want)
	}
}

func TestMaxSteps(t *testing.T) {
	i := interp.New(interp.WithMaxSteps(1000))

	lock := i.Acquire()
	defer lock.Release()

	err := exec(t, i, lock, "while True:\n    pass\n")
	if err == nil || !strings.Contains(err.Error(), "too many steps") {
		t.Errorf("expected step limit error, got %v", err)
	}
}

func TestHostContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "ok")

	registry := hostfunc.NewRegistry()
	registry.Register("probe", func(ctx context.Context, args map[string]any) (any, error) {
		return ctx.Value(key{}), nil
	})
	i := interp.New(interp.WithRegistry(registry), interp.WithHostContext(ctx))

	lock := i.Acquire()
	defer lock.Release()

	if err := exec(t, i, lock, `if probe() != "ok": fail("context not propagated")`); err != nil {
		t.Fatal(err)
	}
}
