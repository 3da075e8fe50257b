// Package errs provides lightweight error annotation with call-site
// context as errors cross package boundaries. It intentionally does not
// try to be a full stack-trace library; it records the immediate caller
// so a chain of Wrap calls reads like a condensed trace in logs.
package errs

import (
	"errors"
	"fmt"
	"runtime"
)

// wrapped is an error decorated with the file:line of its Wrap call site.
type wrapped struct {
	cause error
	where string
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return w.where
	}
	return w.where + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() error { return w.cause }

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// Wrap annotates err with the caller's file:line. Returns nil if err is nil
// so call sites can write `return errs.Wrap(err)` unconditionally.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{cause: err, where: caller(2)}
}

// Fmt builds a new error from format/args and annotates it the same way
// Wrap does. Use it at the point a failure is first detected.
func Fmt(format string, args ...interface{}) error {
	return &wrapped{cause: fmt.Errorf(format, args...), where: caller(2)}
}

// WrapFmt annotates err with an additional message plus call-site context.
func WrapFmt(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	return &wrapped{cause: fmt.Errorf("%s: %w", msg, err), where: caller(2)}
}

// Is delegates to errors.Is so sentinel errors tunnel through Wrap/WrapFmt.
func Is(err, target error) bool { return errors.Is(err, target) }

// As delegates to errors.As so typed errors (e.g. resolver.KeyRequiredError)
// tunnel through Wrap/WrapFmt.
func As(err error, target interface{}) bool { return errors.As(err, target) }
