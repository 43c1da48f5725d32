// Package starctx embeds a Starlark interpreter in Go programs and keeps
// persistent execution contexts on it.
//
// # Overview
//
// A context is a global namespace that survives across runs. Go code puts
// values into it, runs compiled blocks against it and reads typed values
// back out. All access goes through the interpreter's global lock.
//
// # Basic Usage
//
//	c := executor.New()
//	c.Set("x", 13)
//	c.Run(block.MustCompile(`foo = x + 2`))
//	fmt.Println(executor.Get[int](c, "foo")) // 15
//
// # Packages
//
//   - interp: interpreter instances, the global lock and the __main__
//     namespace
//   - executor: contexts, Get/Set/Run and the failure policy
//   - block: compiled blocks and their captures
//   - marshal: conversion between Go values and Starlark values
//   - hostfunc: Go functions callable from scripts, including a key-value
//     store and WebAssembly exports
//   - errors: structured errors with phase and kind
//
// # Host Functions
//
//	registry := hostfunc.NewRegistry()
//	hostfunc.NewKV(hostfunc.DefaultKVConfig()).Register(registry)
//
//	i := interp.New(interp.WithRegistry(registry))
//	c := executor.New(executor.WithInterpreter(i))
//	c.Run(block.MustCompile(`kv_set("seen", True)`))
package starctx
