package host

import (
	"fmt"

	"go.uber.org/zap"
)

// BuiltinNamespace is the module name of the functions every unit provides.
const BuiltinNamespace = "host"

// Builtins is the host module scripts can import without any registration:
//
//	(import "host" "log" (func $log (param i32 i32)))
//	(import "host" "abort" (func $abort (param i32)))
type Builtins struct {
	log *zap.Logger
}

func (b *Builtins) Namespace() string { return BuiltinNamespace }

func (b *Builtins) Register() map[string]any {
	return map[string]any{
		"log":   b.Log,
		"abort": b.Abort,
	}
}

// Log writes msg at info level.
func (b *Builtins) Log(msg string) {
	b.logger().Info(msg, zap.String("source", "script"))
}

// Abort traps the calling script with code.
func (b *Builtins) Abort(code int32) {
	panic(fmt.Errorf("script aborted with code %d", code))
}

func (b *Builtins) logger() *zap.Logger {
	if b.log != nil {
		return b.log
	}
	return Logger()
}

// NewBuiltins returns a registry holding the builtin host module. log may
// be nil, in which case the package logger is used.
func NewBuiltins(log *zap.Logger) *Registry {
	r := NewRegistry()
	if err := r.RegisterHost(&Builtins{log: log}); err != nil {
		panic(err)
	}
	return r
}
