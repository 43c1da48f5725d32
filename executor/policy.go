package executor

import (
	stderrors "errors"

	"github.com/caffeineduck/starctx/errors"
	"go.uber.org/zap"
)

// FailureHandler decides what happens when an operation without an error
// return fails. op is the failing operation ("new", "get", "set", "run").
//
// A handler that returns lets the operation continue with a zero result:
// Get yields the zero value, Set and Run become no-ops, New returns nil.
type FailureHandler func(op string, err error)

// PanicOnFailure is the default handler. It panics with err, which is
// always an *errors.Error.
func PanicOnFailure(op string, err error) {
	panic(err)
}

func (c *Context) fail(op string, err error) {
	logFailure(c.cfg, op, err)
	c.cfg.onFailure(op, err)
}

func logFailure(cfg config, op string, err error) {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}

	var e *errors.Error
	if stderrors.As(err, &e) {
		fields = append(fields,
			zap.String("phase", string(e.Phase)),
			zap.String("kind", string(e.Kind)),
		)
		if e.Name != "" {
			fields = append(fields, zap.String("name", e.Name))
		}
		if e.GoType != "" {
			fields = append(fields, zap.String("go_type", e.GoType))
		}
		if e.Backtrace != "" {
			fields = append(fields, zap.String("backtrace", e.Backtrace))
		}
	}

	cfg.interp.Logger().Error("context operation failed", fields...)
}
