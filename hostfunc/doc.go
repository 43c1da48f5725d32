// Package hostfunc provides Go functions that scripts can call.
//
// Host functions are registered in a [Registry] and exposed to the Starlark
// namespace by [Builtins]: every function whose name is a valid identifier
// becomes a builtin of the same name, and the generic call(name, ...)
// builtin reaches any registered function, including ones registered after
// the namespace was built.
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("greet", func(ctx context.Context, args map[string]any) (any, error) {
//	    return "Hello, " + args["name"].(string), nil
//	})
//
// Scripts call it as greet(name = "World") or call("greet", name = "World").
// Keyword arguments arrive under their names; positional arguments arrive
// as a []any under "args". Values cross the boundary through the marshal
// package.
//
// # Built-in Capabilities
//
// Key-Value Store: in-memory storage shared by every context of an
// interpreter, via [KV] and [KVConfig].
//
//	kv := hostfunc.NewKV(hostfunc.DefaultKVConfig())
//	kv.Register(registry)
//
// WebAssembly: exported functions of a core wasm module, via [Wasm].
//
//	w, _ := hostfunc.NewWasm(ctx, wasmBytes)
//	defer w.Close(ctx)
//	w.Register(registry, "wasm_")
//
// All capabilities enforce configurable size limits.
package hostfunc
