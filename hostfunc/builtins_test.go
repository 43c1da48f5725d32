package hostfunc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.starlark.net/starlark"
)

func execWith(t *testing.T, predeclared starlark.StringDict, src string) (starlark.StringDict, error) {
	t.Helper()
	thread := &starlark.Thread{Name: "test"}
	return starlark.ExecFile(thread, "test.star", src, predeclared)
}

func TestBuiltinsDirectCall(t *testing.T) {
	registry := NewRegistry()
	registry.Register("greet", func(ctx context.Context, args map[string]any) (any, error) {
		name, _ := args["name"].(string)
		return "Hello, " + name + "!", nil
	})

	globals, err := execWith(t, Builtins(registry), `result = greet(name = "World")`)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if got := globals["result"]; got != starlark.String("Hello, World!") {
		t.Errorf("result = %v", got)
	}
}

func TestBuiltinsGenericCall(t *testing.T) {
	registry := NewRegistry()
	builtins := Builtins(registry)

	// Registered after the builtins were built: only reachable through call().
	registry.Register("sum", func(ctx context.Context, args map[string]any) (any, error) {
		var total int64
		for _, a := range args["args"].([]any) {
			total += a.(int64)
		}
		return total, nil
	})

	globals, err := execWith(t, builtins, `result = call("sum", 1, 2, 3)`)
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if got := globals["result"]; got.String() != "6" {
		t.Errorf("result = %v", got)
	}
	if _, ok := builtins["sum"]; ok {
		t.Error("late registration should not appear in the snapshot")
	}
}

func TestBuiltinsUnknownFunction(t *testing.T) {
	_, err := execWith(t, Builtins(NewRegistry()), `call("missing")`)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown function: missing") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuiltinsFunctionError(t *testing.T) {
	registry := NewRegistry()
	exploded := errors.New("exploded")
	registry.Register("boom", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, exploded
	})

	_, err := execWith(t, Builtins(registry), `boom()`)
	if !errors.Is(err, exploded) {
		t.Errorf("expected the function's error in the chain, got %v", err)
	}
	if err == nil || !strings.Contains(err.Error(), "`boom`") {
		t.Errorf("error should name the function: %v", err)
	}
}

func TestBuiltinsSkipInvalidNames(t *testing.T) {
	registry := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	registry.Register("fs.read", noop)
	registry.Register("for", noop)
	registry.Register("ok_name", noop)

	builtins := Builtins(registry)
	if _, ok := builtins["fs.read"]; ok {
		t.Error("dotted name should be skipped")
	}
	if _, ok := builtins["for"]; ok {
		t.Error("keyword should be skipped")
	}
	if _, ok := builtins["ok_name"]; !ok {
		t.Error("ok_name missing")
	}
}

func TestBuiltinsThreadContext(t *testing.T) {
	type key struct{}
	registry := NewRegistry()
	registry.Register("whoami", func(ctx context.Context, args map[string]any) (any, error) {
		return ctx.Value(key{}), nil
	})

	thread := &starlark.Thread{Name: "test"}
	thread.SetLocal(ContextKey, context.WithValue(context.Background(), key{}, "host"))

	globals, err := starlark.ExecFile(thread, "test.star", `who = whoami()`, Builtins(registry))
	if err != nil {
		t.Fatalf("exec failed: %v", err)
	}
	if got := globals["who"]; got != starlark.String("host") {
		t.Errorf("who = %v", got)
	}
}

func TestArgs(t *testing.T) {
	args, err := Args(
		starlark.Tuple{starlark.MakeInt(1), starlark.String("two")},
		[]starlark.Tuple{{starlark.String("flag"), starlark.True}},
	)
	if err != nil {
		t.Fatalf("Args: %v", err)
	}
	pos := args["args"].([]any)
	if len(pos) != 2 || pos[0] != int64(1) || pos[1] != "two" {
		t.Errorf("args = %#v", pos)
	}
	if args["flag"] != true {
		t.Errorf("flag = %v", args["flag"])
	}

	empty, err := Args(nil, nil)
	if err != nil {
		t.Fatalf("Args: %v", err)
	}
	if _, ok := empty["args"]; ok {
		t.Error("no positional arguments should leave args unset")
	}
}

func TestRegistryList(t *testing.T) {
	registry := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	registry.Register("b", noop)
	registry.Register("a", noop)

	names := registry.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("List = %v", names)
	}
	if len(registry.All()) != 2 {
		t.Errorf("All = %v", registry.All())
	}
}

func TestBuiltinsCyclicArgs(t *testing.T) {
	registry := NewRegistry()
	kv := NewKV(DefaultKVConfig())
	kv.Register(registry)

	_, err := execWith(t, Builtins(registry), `
a = [1]
a.append(a)
kv_set("k", a)
`)
	if err == nil || !strings.Contains(err.Error(), "cyclic value") {
		t.Fatalf("expected cyclic value error, got %v", err)
	}
	if keys, _ := kv.Keys(context.Background(), nil); len(keys.([]string)) != 0 {
		t.Errorf("nothing should be stored, got %v", keys)
	}

	_, err = execWith(t, Builtins(registry), `
d = {}
d["self"] = d
kv_set(key = "k", value = d)
`)
	if err == nil || !strings.Contains(err.Error(), "cyclic value") {
		t.Fatalf("expected cyclic value error, got %v", err)
	}
}

func TestBuiltinsCyclicResult(t *testing.T) {
	registry := NewRegistry()
	registry.Register("loop", func(ctx context.Context, args map[string]any) (any, error) {
		m := map[string]any{}
		m["m"] = m
		return m, nil
	})

	_, err := execWith(t, Builtins(registry), `loop()`)
	if err == nil || !strings.Contains(err.Error(), "cyclic value") {
		t.Fatalf("expected cyclic value error, got %v", err)
	}
}
