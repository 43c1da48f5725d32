// Package block holds compiled Starlark snippets ready to run in an
// execution context.
//
// A Block pairs a parsed file with the host values it captures. Captures are
// bound as globals right before the block runs, so the snippet refers to
// them by name:
//
//	b := block.MustCompile(`total = price * qty`,
//		block.Var("price", 3),
//		block.Var("qty", 4),
//	)
//
// A Block can be run exactly once; Consume hands out its contents and marks
// it used.
package block

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/caffeineduck/starctx/errors"
	"github.com/caffeineduck/starctx/marshal"
	"go.starlark.net/syntax"
)

// Capture is a host value bound to a global name when a block runs.
type Capture struct {
	Name  string
	Value any
}

// Var captures value under name.
func Var(name string, value any) Capture {
	return Capture{Name: name, Value: value}
}

// Block is a compiled snippet plus its captures.
type Block struct {
	file     *syntax.File
	captures []Capture
	used     atomic.Bool
}

// DefaultFileOptions enables the dialect features that make sense for a
// namespace shared across many runs: top-level control flow, global
// reassignment, recursion, while loops and sets, and loads that bind
// globally so loaded modules persist.
func DefaultFileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:               true,
		While:             true,
		TopLevelControl:   true,
		GlobalReassign:    true,
		LoadBindsGlobally: true,
		Recursion:         true,
	}
}

// Compile parses src with DefaultFileOptions. The block is named after the
// Go call site so backtraces point at the host code. Common leading
// indentation is removed first, which lets snippets be written as indented
// raw string literals.
func Compile(src string, captures ...Capture) (*Block, error) {
	return CompileFile(DefaultFileOptions(), CallSite(1), Dedent(src), captures...)
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string, captures ...Capture) *Block {
	b, err := CompileFile(DefaultFileOptions(), CallSite(1), Dedent(src), captures...)
	if err != nil {
		panic(err)
	}
	return b
}

// CompileFile parses src as filename using opts. src may be a string,
// []byte or io.Reader.
func CompileFile(opts *syntax.FileOptions, filename string, src any, captures ...Capture) (*Block, error) {
	if opts == nil {
		opts = DefaultFileOptions()
	}

	seen := make(map[string]bool, len(captures))
	for _, c := range captures {
		if !marshal.ValidName(c.Name) {
			return nil, errors.New(errors.PhaseCompile, errors.KindInvalidName).
				Name(c.Name).
				Detail("capture name is not a valid identifier").
				Build()
		}
		if seen[c.Name] {
			return nil, errors.New(errors.PhaseCompile, errors.KindInvalidName).
				Name(c.Name).
				Detail("captured twice").
				Build()
		}
		seen[c.Name] = true
	}

	f, err := opts.Parse(filename, src, 0)
	if err != nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindSyntax).
			Detail("%v", err).
			Cause(err).
			Build()
	}

	return &Block{
		file:     f,
		captures: append([]Capture(nil), captures...),
	}, nil
}

// Filename returns the name the block was compiled under.
func (b *Block) Filename() string {
	return b.file.Path
}

// Captures returns a copy of the block's captures.
func (b *Block) Captures() []Capture {
	return append([]Capture(nil), b.captures...)
}

// Used reports whether the block has been consumed.
func (b *Block) Used() bool {
	return b.used.Load()
}

// Consume returns the parsed file and captures and marks the block used.
// Every call after the first fails.
func (b *Block) Consume() (*syntax.File, []Capture, error) {
	if !b.used.CompareAndSwap(false, true) {
		return nil, nil, errors.New(errors.PhaseCompile, errors.KindConsumed).
			Detail("block %s already ran", b.file.Path).
			Build()
	}
	return b.file, b.captures, nil
}

// CallSite returns "file.go:line" for the caller skip frames above the
// function calling CallSite.
func CallSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "<block>"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// Dedent removes the indentation shared by every non-blank line and empties
// blank ones.
func Dedent(src string) string {
	lines := strings.Split(src, "\n")

	prefix, found := "", false
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if !found {
			prefix, found = indent, true
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return src
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.Join(lines, "\n")
}
