package stv

import (
	"errors"
	"fmt"
)

// Kind classifies the errors surfaced by Service operations.
type Kind uint8

const (
	// KindNotFound means a source the operation requires does not exist.
	KindNotFound Kind = iota + 1
	// KindAlreadyExists means a destination exists and overwrite was not requested.
	KindAlreadyExists
	// KindProcess means an underlying filesystem or vault call failed.
	KindProcess
	// KindInvalidArgument means caller input was refused before touching anything.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindProcess:
		return "process error"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is the error type returned by Service operations.
type Error struct {
	Kind         Kind
	Message      string
	Context      string // usually the path involved
	RecoveryHint string
	Err          error
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrAlreadyExists   = &Error{Kind: KindAlreadyExists}
	ErrProcess         = &Error{Kind: KindProcess}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels: a target with no message matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Context == "" && t.Err == nil && t.Kind == e.Kind
}

// WithHint sets the recovery hint and returns e.
func (e *Error) WithHint(hint string) *Error {
	e.RecoveryHint = hint
	return e
}

// RecoveryHint returns the hint carried by err, if any.
func RecoveryHint(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.RecoveryHint
	}
	return ""
}

func notFound(msg, context string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Context: context}
}

func alreadyExists(msg, context string) *Error {
	return &Error{Kind: KindAlreadyExists, Message: msg, Context: context}
}

func processError(msg, context string, err error) *Error {
	return &Error{Kind: KindProcess, Message: msg, Context: context, Err: err}
}

func invalidArgument(msg, context string, err error) *Error {
	return &Error{Kind: KindInvalidArgument, Message: msg, Context: context, Err: err}
}
