package kfmt

import (
	"gophermm/kernel"
	"gophermm/kernel/cpu"

	goerrors "github.com/go-errors/errors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// cpuHaltFn is mocked by tests.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic logs the supplied error (if not nil) and halts the CPU. Calls to
// Panic never return.
//
//go:noinline
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t}
	case error:
		err = &kernel.Error{Module: errRuntimePanic.Module, Message: t.Error()}
		if cause, ok := errors.Cause(t).(*kernel.Error); ok {
			err.Module = cause.Module
			err.Kind = cause.Kind
		}
	}

	if err != nil {
		// Skip the Panic frame so the trace starts at the caller.
		trace := goerrors.Wrap(err, 1)
		Logger(err.Module).WithFields(logrus.Fields{
			"kind":  err.Kind,
			"stack": trace.ErrorStack(),
		}).Errorf("unrecoverable error: %s", err.Message)
	}
	logger.Error("*** kernel panic: system halted ***")

	cpuHaltFn()
}
