package executor

import (
	"strings"
	"time"

	"github.com/caffeineduck/starctx/errors"
	"github.com/caffeineduck/starctx/interp"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"
)

// RunFile executes a parsed file against globals on the interpreter lock
// belongs to. New top-level bindings are written back into globals, also
// when execution fails part way.
func RunFile(lock *interp.Lock, globals starlark.StringDict, file *syntax.File) error {
	return runFile(lock, globals, file, file.Path)
}

func runFile(lock *interp.Lock, globals starlark.StringDict, file *syntax.File, threadName string) error {
	i := lock.Interpreter()
	if err := lock.Check(i); err != nil {
		return err
	}

	thread, err := i.NewThread(lock, threadName)
	if err != nil {
		return err
	}

	start := time.Now()
	err = starlark.ExecREPLChunk(file, thread, globals)

	i.Logger().Debug("block executed",
		zap.String("file", file.Path),
		zap.Duration("duration", time.Since(start)),
		zap.Uint64("steps", thread.ExecutionSteps()),
		zap.Bool("ok", err == nil),
	)

	if err != nil {
		return executionError(err)
	}
	return nil
}

func executionError(err error) error {
	switch e := err.(type) {
	case *starlark.EvalError:
		kind := errors.KindInterpreter
		if strings.Contains(e.Msg, "too many steps") {
			kind = errors.KindLimit
		}
		return errors.New(errors.PhaseExecute, kind).
			Detail("%s", e.Msg).
			Backtrace(e.Backtrace()).
			Cause(err).
			Build()
	case resolve.ErrorList:
		return errors.New(errors.PhaseCompile, errors.KindSyntax).
			Detail("%v", e).
			Cause(err).
			Build()
	case syntax.Error:
		return errors.New(errors.PhaseCompile, errors.KindSyntax).
			Detail("%v", e).
			Cause(err).
			Build()
	}
	return errors.New(errors.PhaseExecute, errors.KindInterpreter).
		Detail("%v", err).
		Cause(err).
		Build()
}
