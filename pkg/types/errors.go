package types

import (
	"errors"
	"fmt"
)

// Kind classifies a CodeError per the abstract error kinds of §7. These
// are not exhaustive Go error types; they are a stable tag a caller (the
// MCP layer) can switch on without parsing message text.
type Kind string

const (
	KindInvalidFilter       Kind = "invalid_filter"
	KindPathTraversal       Kind = "path_traversal"
	KindInvalidID           Kind = "invalid_id"
	KindModelLoad           Kind = "model_load"
	KindEmbeddingGeneration Kind = "embedding_generation"
	KindIoFailure           Kind = "io_failure"
	KindParseFailure        Kind = "parse_failure"
)

// CodeError is a structured error carrying a stable Kind alongside the
// wrapped underlying cause, so the MCP server can translate it into a
// tool-call error response with a consistent code (per §7's propagation
// policy: "The server translates all exceptions into a tool-call error
// response with a stable textual message").
type CodeError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *CodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.Err }

// NewCodeError constructs a CodeError of the given kind.
func NewCodeError(kind Kind, msg string, err error) *CodeError {
	return &CodeError{Kind: kind, Msg: msg, Err: err}
}

// Sentinel errors used with errors.Is for validation and lookup failures
// that do not need an attached Kind at the point they are raised (they are
// wrapped into a CodeError further up the call stack where the kind is
// known).
var (
	ErrInvalidID       = errors.New("invalid chunk id")
	ErrInvalidChunk    = errors.New("invalid chunk")
	ErrInvalidVector   = errors.New("invalid vector record")
	ErrNotFound        = errors.New("not found")
	ErrEmptyQuery      = errors.New("query cannot be empty")
	ErrPathTraversal   = errors.New("path escapes configured root")
	ErrFilterTooLong   = errors.New("filter predicate exceeds maximum length")
	ErrFilterCharset   = errors.New("filter predicate contains disallowed characters")
)
