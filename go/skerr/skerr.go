// Package skerr provides an error type which can wrap another error with
// context about where the error occurred. Errors should be wrapped at every
// return point so the resulting message reads like a call stack.
package skerr

import (
	"fmt"
	"runtime"
	"strings"
)

// StackTrace identifies a filename (base filename only) and line number.
type StackTrace struct {
	File string
	Line int
}

func (st StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// CallStack returns a slice of StackTrace representing the current stack
// trace. The lines returned start at the function startAt levels above the
// caller, e.g. CallStack(5, 0) gives the caller and the four functions above
// it.
func CallStack(height, startAt int) []StackTrace {
	stack := make([]StackTrace, 0, height)
	for i := 0; i < height; i++ {
		_, file, line, ok := runtime.Caller(startAt + 1 + i)
		if !ok {
			break
		}
		split := strings.Split(file, "/")
		stack = append(stack, StackTrace{
			File: split[len(split)-1],
			Line: line,
		})
	}
	return stack
}

// ErrorWithContext is an error plus the stack of where it was created or
// wrapped, and an optional additional message.
type ErrorWithContext struct {
	// Wrapped is the error being annotated, if any.
	Wrapped error
	// CallStack is the stack at the point the error was created or wrapped.
	// The first element is the innermost frame.
	CallStack []StackTrace
	// Message is the formatted message for errors created with Fmt or
	// Wrapfed context.
	Message string
}

// Error implements the error interface.
func (err *ErrorWithContext) Error() string {
	var sb strings.Builder
	if err.Message != "" {
		sb.WriteString(err.Message)
	}
	if err.Wrapped != nil {
		if err.Message != "" {
			sb.WriteString(": ")
		}
		sb.WriteString(err.Wrapped.Error())
	}
	if len(err.CallStack) > 0 {
		sb.WriteString(" At")
		for _, st := range err.CallStack {
			sb.WriteString(" ")
			sb.WriteString(st.String())
		}
	}
	return sb.String()
}

// Unwrap returns the wrapped error, supporting errors.Is and errors.As.
func (err *ErrorWithContext) Unwrap() error {
	return err.Wrapped
}

const callStackHeight = 5

// Fmt creates an error with a formatted message and a stack trace.
func Fmt(format string, args ...interface{}) *ErrorWithContext {
	return &ErrorWithContext{
		Message:   fmt.Sprintf(format, args...),
		CallStack: CallStack(callStackHeight, 1),
	}
}

// Wrap adds a stack trace to err. Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(callStackHeight, 1),
	}
}

// Wrapf adds a formatted message and a stack trace to err. Returns nil if
// err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Wrapped:   err,
		Message:   fmt.Sprintf(format, args...),
		CallStack: CallStack(callStackHeight, 1),
	}
}

// Unwrap returns the innermost error if err is an *ErrorWithContext chain,
// otherwise err itself.
func Unwrap(err error) error {
	for {
		withContext, ok := err.(*ErrorWithContext)
		if !ok || withContext.Wrapped == nil {
			return err
		}
		err = withContext.Wrapped
	}
}
