// Package bench measures the cost of the context operations.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. ./bench/
package bench

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"testing"
	"time"

	"github.com/caffeineduck/starctx/block"
	"github.com/caffeineduck/starctx/executor"
	"github.com/caffeineduck/starctx/hostfunc"
	"github.com/caffeineduck/starctx/interp"
	"github.com/caffeineduck/starctx/marshal"
)

type record struct {
	ID    int               `starlark:"id"`
	Name  string            `starlark:"name"`
	Tags  []string          `starlark:"tags"`
	Attrs map[string]string `starlark:"attrs"`
}

var sample = record{
	ID:    7,
	Name:  "sample",
	Tags:  []string{"a", "b", "c"},
	Attrs: map[string]string{"k": "v"},
}

func newInterp() *interp.Interpreter {
	registry := hostfunc.NewRegistry()
	registry.Register("add", func(ctx context.Context, args map[string]any) (any, error) {
		in := args["args"].([]any)
		return in[0].(int64) + in[1].(int64), nil
	})
	return interp.New(interp.WithRegistry(registry), interp.WithStdout(io.Discard))
}

// =============================================================================
// CONTEXT BENCHMARKS
// =============================================================================

func BenchmarkContext_New(b *testing.B) {
	i := newInterp()
	for n := 0; n < b.N; n++ {
		executor.New(executor.WithInterpreter(i))
	}
}

func BenchmarkContext_SetGet(b *testing.B) {
	c := executor.New(executor.WithInterpreter(newInterp()))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Set("x", n)
		executor.Get[int](c, "x")
	}
}

func BenchmarkContext_SetGet_Struct(b *testing.B) {
	c := executor.New(executor.WithInterpreter(newInterp()))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Set("r", sample)
		executor.Get[record](c, "r")
	}
}

func BenchmarkContext_Run(b *testing.B) {
	c := executor.New(executor.WithInterpreter(newInterp()))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Run(block.MustCompile(`x = 1`))
	}
}

func BenchmarkContext_Run_Computation(b *testing.B) {
	c := executor.New(executor.WithInterpreter(newInterp()))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Run(block.MustCompile(`
			total = 0
			for i in range(1000):
				total += i * i
		`))
	}
}

func BenchmarkContext_Run_Capture(b *testing.B) {
	c := executor.New(executor.WithInterpreter(newInterp()))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Run(block.MustCompile(`y = r.id + len(r.tags)`, block.Var("r", sample)))
	}
}

func BenchmarkContext_Run_HostFunction(b *testing.B) {
	c := executor.New(executor.WithInterpreter(newInterp()))

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		c.Run(block.MustCompile(`y = add(1, 2)`))
	}
}

func BenchmarkBlock_Compile(b *testing.B) {
	for n := 0; n < b.N; n++ {
		block.MustCompile(`
			def f(n):
				return n * 2
			y = f(21)
		`)
	}
}

// =============================================================================
// MARSHAL BENCHMARKS
// =============================================================================

func BenchmarkMarshal_ToValue(b *testing.B) {
	for n := 0; n < b.N; n++ {
		marshal.ToValue(sample)
	}
}

func BenchmarkMarshal_Decode(b *testing.B) {
	v := marshal.MustToValue(sample)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		var r record
		marshal.Decode(v, &r)
	}
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummary(t *testing.T) {
	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println()

	measure := func(runs int, fn func()) time.Duration {
		start := time.Now()
		for i := 0; i < runs; i++ {
			fn()
		}
		return time.Since(start) / time.Duration(runs)
	}

	const runs = 100
	i := newInterp()
	c := executor.New(executor.WithInterpreter(i))

	rows := []struct {
		name string
		d    time.Duration
	}{
		{"new context", measure(runs, func() { executor.New(executor.WithInterpreter(i)) })},
		{"set + get int", measure(runs, func() { c.Set("x", 1); executor.Get[int](c, "x") })},
		{"set + get struct", measure(runs, func() { c.Set("r", sample); executor.Get[record](c, "r") })},
		{"compile + run", measure(runs, func() { c.Run(block.MustCompile(`x = 1`)) })},
		{"host function", measure(runs, func() { c.Run(block.MustCompile(`y = add(1, 2)`)) })},
	}

	fmt.Println("┌────────────────────────┬───────────┐")
	fmt.Println("│ Operation              │ Avg       │")
	fmt.Println("├────────────────────────┼───────────┤")
	for _, r := range rows {
		fmt.Printf("│ %-22s │ %9s │\n", r.name, formatDuration(r.d))
	}
	fmt.Println("└────────────────────────┴───────────┘")
	fmt.Println()

	t.Log("Benchmark complete - see stdout for results")
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%dµs", d.Microseconds())
}

// =============================================================================
// MEMORY BENCHMARK
// =============================================================================

func TestMemoryUsage(t *testing.T) {
	var m runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&m)
	before := m.Alloc

	i := newInterp()
	contexts := make([]*executor.Context, 100)
	for n := range contexts {
		contexts[n] = executor.New(executor.WithInterpreter(i))
		contexts[n].Run(block.MustCompile(`data = list(range(100))`))
	}

	runtime.ReadMemStats(&m)
	after := m.Alloc

	contexts = nil
	runtime.GC()
	runtime.ReadMemStats(&m)
	afterGC := m.Alloc

	t.Logf("Memory before: %d KB", before/1024)
	t.Logf("Memory with 100 contexts: %d KB", after/1024)
	t.Logf("Memory after GC: %d KB", afterGC/1024)
}
