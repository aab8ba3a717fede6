package vm

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a runtime Error: a malformed chunk, a bad arithmetic
// operand, a type mismatch, an invalid table key, a stack-discipline
// violation, or dispatcher corruption — splitting "kind of failure" from
// the human-readable message, the way structured error types usually do.
type Kind string

const (
	noKind          Kind = ""
	MalformedChunk  Kind = "MalformedChunk"
	ArithmeticError Kind = "ArithmeticError"
	TypeError       Kind = "TypeError"
	TableKeyError   Kind = "TableKeyError"
	StackError      Kind = "StackError"
	Corruption      Kind = "Corruption"
)

// Error is the engine's single error type, built as a plain struct by the
// new*Error helpers below. An error crossing a component boundary (a chunk
// decoder failure returned through State.Load) is wrapped with
// github.com/pkg/errors via wrap, which attaches a stack trace there.
type Error struct {
	Kind    Kind
	Op      string
	Operand Tag
	Source  string
	Line    uint32
	Message string
}

func (e *Error) Error() string {
	loc := ""
	if e.Source != "" {
		loc = fmt.Sprintf(" (%s:%d)", e.Source, e.Line)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s in %s%s", e.Kind, e.Message, e.Op, loc)
	}
	return fmt.Sprintf("%s: %s%s", e.Kind, e.Message, loc)
}

func newError(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func newTypeError(op string, t Tag) *Error {
	err := newError(TypeError, op, fmt.Sprintf("unsupported operand type %s", t))
	err.Operand = t
	return err
}

func newArithError(msg string) *Error {
	return newError(ArithmeticError, "arith", msg)
}

func newTableKeyError(msg string) *Error {
	return newError(TableKeyError, "table", msg)
}

func newStackError(msg string) *Error {
	return newError(StackError, "stack", msg)
}

func newCorruptionError(msg string) *Error {
	return newError(Corruption, "dispatch", msg)
}

// withDebug attaches source:line debug metadata to an *Error, the same
// location info Lua 5.3 error messages carry via luaG_addinfo
// (ldebug.c/lauxlib.c's "chunkname:line: message" convention).
func withDebug(err *Error, source string, line uint32) *Error {
	err.Source = source
	err.Line = line
	return err
}

// wrap attaches a pkg/errors stack trace to any error crossing a component
// boundary without discarding its *Error kind (errors.As still finds it).
func wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}
