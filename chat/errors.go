package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrTurnInFlight rejects a turn while another one is running. Callers
	// treat it as a no-op.
	ErrTurnInFlight = errors.New("a turn is already in flight")

	// ErrNoPendingTools is returned when a confirmation arrives with no
	// gated batch to run.
	ErrNoPendingTools = errors.New("no tool calls awaiting confirmation")

	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
)

// RequestError is a failed model request.
type RequestError struct {
	Phase string // "request" or "follow-up"
	Err   error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("model %s failed: %v", e.Phase, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ToolExecutionError describes one failed tool call. It only travels inside
// a ToolExecutionResult and never aborts a batch.
type ToolExecutionError struct {
	ToolName  string
	RequestID string
	Err       error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (%s): %v", e.ToolName, e.RequestID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// RetrievalError is a failed context lookup. It is logged and the turn
// continues with explicit context only.
type RetrievalError struct {
	Query string
	Err   error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("context retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// PersistenceError is a failed session load or save. The in-memory sessions
// stay authoritative.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s sessions: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
