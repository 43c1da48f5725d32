package hostfunc

import (
	"context"
	"fmt"

	"github.com/caffeineduck/starctx/errors"
	"github.com/caffeineduck/starctx/marshal"
	"go.starlark.net/starlark"
)

// ContextKey is the thread-local key holding the context.Context passed to
// host functions.
const ContextKey = "hostfunc.context"

// Builtins returns the Starlark builtins for every function in r plus the
// generic call builtin.
func Builtins(r *Registry) starlark.StringDict {
	out := starlark.StringDict{
		"call": starlark.NewBuiltin("call", r.callBuiltin),
	}
	for _, name := range r.List() {
		if name == "call" || !marshal.ValidName(name) {
			continue
		}
		n := name
		out[n] = starlark.NewBuiltin(n, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			return r.invoke(thread, n, args, kwargs)
		})
	}
	return out
}

func (r *Registry) callBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s: missing function name", b.Name())
	}
	name, ok := starlark.AsString(args[0])
	if !ok {
		return nil, fmt.Errorf("%s: function name must be a string, got %s", b.Name(), args[0].Type())
	}
	return r.invoke(thread, name, args[1:], kwargs)
}

func (r *Registry) invoke(thread *starlark.Thread, name string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, errors.New(errors.PhaseHost, errors.KindNotFound).
			Name(name).
			Detail("unknown function: %s", name).
			Build()
	}

	in, err := Args(args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	result, err := fn(threadContext(thread), in)
	if err != nil {
		return nil, errors.New(errors.PhaseHost, errors.KindInterpreter).
			Name(name).
			Cause(err).
			Build()
	}

	v, err := marshal.ToValue(result)
	if err != nil {
		return nil, fmt.Errorf("%s: result: %w", name, err)
	}
	return v, nil
}

// Args converts Starlark call arguments into the map handed to a Func.
// Positional arguments are stored as a []any under "args".
func Args(args starlark.Tuple, kwargs []starlark.Tuple) (map[string]any, error) {
	out := make(map[string]any, len(kwargs)+1)

	if len(args) > 0 {
		positional := make([]any, len(args))
		for i, a := range args {
			g, err := marshal.ToGo(a)
			if err != nil {
				return nil, err
			}
			positional[i] = g
		}
		out["args"] = positional
	}

	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		g, err := marshal.ToGo(kv[1])
		if err != nil {
			return nil, err
		}
		out[key] = g
	}
	return out, nil
}

func threadContext(thread *starlark.Thread) context.Context {
	if thread != nil {
		if ctx, ok := thread.Local(ContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}
