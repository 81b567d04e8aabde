// Package vm - error handling with stack traces
package vm

import (
	"fmt"
	"strings"
)

// InterpretResult is the outcome of Interpret, per spec §6.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// StackFrame is a single line of a runtime-error backtrace: the function
// name (empty for the top-level script) and the source line active when
// the frame was captured.
type StackFrame struct {
	Name string
	Line int
}

// RuntimeError carries the diagnostic message and the call-stack snapshot
// captured at the point of failure. Error formats it per spec §6/§7: for
// each frame from innermost outward, "[line L] in <name>()" or
// "[line L] in script" for the top-level function.
type RuntimeError struct {
	Message string
	Frames  []StackFrame
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, f := range e.Frames {
		b.WriteByte('\n')
		if f.Name == "" {
			fmt.Fprintf(&b, "[line %d] in script", f.Line)
		} else {
			fmt.Fprintf(&b, "[line %d] in %s()", f.Line, f.Name)
		}
	}
	return b.String()
}

// newRuntimeError creates a new RuntimeError with the given message.
func newRuntimeError(message string, frames []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, Frames: frames}
}
