package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

var ErrWasmClosed = errors.New("wasm module closed")

// Memory limit constants for convenience.
const (
	MemoryLimit1MB   uint32 = 16    // 1 MB
	MemoryLimit16MB  uint32 = 256   // 16 MB
	MemoryLimit64MB  uint32 = 1024  // 64 MB
	MemoryLimit256MB uint32 = 4096  // 256 MB
	MemoryLimit1GB   uint32 = 16384 // 1 GB
)

type wasmConfig struct {
	name             string
	memoryLimitPages uint32 // 0 = wazero default (4GB)
}

func defaultWasmConfig() wasmConfig {
	return wasmConfig{}
}

// WasmOption configures a Wasm module at creation time.
type WasmOption func(*wasmConfig)

// WithMemoryLimit sets the maximum memory available to the module.
// Each page is 64KB.
func WithMemoryLimit(pages uint32) WasmOption {
	return func(c *wasmConfig) {
		c.memoryLimitPages = pages
	}
}

// WithModuleName sets the name the module is instantiated under.
func WithModuleName(name string) WasmOption {
	return func(c *wasmConfig) {
		c.name = name
	}
}

// Wasm exposes the exported functions of a core WebAssembly module as host
// functions. Parameters and results are numbers: i32/i64 map to int64 and
// f32/f64 map to float64. WASI preview1 is available to the module but its
// start function is not run.
type Wasm struct {
	runtime wazero.Runtime
	module  api.Module
	defs    map[string]api.FunctionDefinition

	mu     sync.Mutex
	closed bool
}

// NewWasm compiles and instantiates a module.
func NewWasm(ctx context.Context, bin []byte, opts ...WasmOption) (*Wasm, error) {
	cfg := defaultWasmConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("compile module: %w", err)
	}

	moduleConfig := wazero.NewModuleConfig().
		WithName(cfg.name).
		WithStartFunctions()

	mod, err := rt.InstantiateModule(ctx, compiled, moduleConfig)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate module: %w", err)
	}

	return &Wasm{
		runtime: rt,
		module:  mod,
		defs:    mod.ExportedFunctionDefinitions(),
	}, nil
}

// Exports returns the exported function names in sorted order.
func (w *Wasm) Exports() []string {
	names := make([]string, 0, len(w.defs))
	for name := range w.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func returns the host function calling the named export.
func (w *Wasm) Func(name string) (Func, bool) {
	def, ok := w.defs[name]
	if !ok {
		return nil, false
	}
	return w.call(name, def), true
}

// Register adds every export to the registry as prefix+name.
func (w *Wasm) Register(r *Registry, prefix string) {
	for _, name := range w.Exports() {
		r.Register(prefix+name, w.call(name, w.defs[name]))
	}
}

func (w *Wasm) call(name string, def api.FunctionDefinition) Func {
	return func(ctx context.Context, args map[string]any) (any, error) {
		params := def.ParamTypes()
		in, _ := args["args"].([]any)
		if len(in) != len(params) {
			return nil, fmt.Errorf("%s: expected %d arguments, got %d", name, len(params), len(in))
		}

		stack := make([]uint64, len(params))
		for i, p := range params {
			enc, err := encodeParam(p, in[i])
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: %w", name, i, err)
			}
			stack[i] = enc
		}

		w.mu.Lock()
		defer w.mu.Unlock()

		if w.closed {
			return nil, ErrWasmClosed
		}

		results, err := w.module.ExportedFunction(name).Call(ctx, stack...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		out := make([]any, len(results))
		for i, t := range def.ResultTypes() {
			v, err := decodeResult(t, results[i])
			if err != nil {
				return nil, fmt.Errorf("%s: result %d: %w", name, i, err)
			}
			out[i] = v
		}

		switch len(out) {
		case 0:
			return nil, nil
		case 1:
			return out[0], nil
		}
		return out, nil
	}
}

// Close releases the module and its runtime.
func (w *Wasm) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	return w.runtime.Close(ctx)
}

func encodeParam(t api.ValueType, v any) (uint64, error) {
	switch t {
	case api.ValueTypeI32:
		n, err := asInt(v)
		if err != nil {
			return 0, err
		}
		if n < math.MinInt32 || n > math.MaxUint32 {
			return 0, fmt.Errorf("value %d out of i32 range", n)
		}
		return uint64(uint32(n)), nil
	case api.ValueTypeI64:
		n, err := asInt(v)
		if err != nil {
			return 0, err
		}
		return uint64(n), nil
	case api.ValueTypeF32:
		f, err := asFloat(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF32(float32(f)), nil
	case api.ValueTypeF64:
		f, err := asFloat(v)
		if err != nil {
			return 0, err
		}
		return api.EncodeF64(f), nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", api.ValueTypeName(t))
}

func decodeResult(t api.ValueType, r uint64) (any, error) {
	switch t {
	case api.ValueTypeI32:
		return int64(api.DecodeI32(r)), nil
	case api.ValueTypeI64:
		return int64(r), nil
	case api.ValueTypeF32:
		return float64(api.DecodeF32(r)), nil
	case api.ValueTypeF64:
		return api.DecodeF64(r), nil
	}
	return nil, fmt.Errorf("unsupported result type %s", api.ValueTypeName(t))
}

func asInt(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case *big.Int:
		if x.IsInt64() {
			return x.Int64(), nil
		}
		return 0, fmt.Errorf("value %s out of i64 range", x)
	}
	return 0, fmt.Errorf("expected int, got %T", v)
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
