package core

import (
	"context"
	"errors"
	"fmt"
)

// ValidationError rejects malformed input before it enters the pipeline.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request field %q: %s", e.Field, e.Message)
}

// TransientError wraps a collaborator failure (transcription, search,
// persistence) that should degrade the pipeline rather than abort it.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient marks err as a transient collaborator failure for op.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// AgentExecutionError wraps a failed model call underlying agent execution.
// Fatal to the current turn only; the conversation remains usable.
type AgentExecutionError struct {
	Agent string
	Err   error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %s execution failed: %v", e.Agent, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *AgentExecutionError) Unwrap() error { return e.Err }

// ErrStreamClosed is returned when publishing to a stream that has already
// delivered its terminal event.
var ErrStreamClosed = errors.New("stream closed")

// RetryOnce runs op and, on failure, retries exactly once unless the context
// is done. The transient-collaborator policy: one retry, then degrade.
func RetryOnce(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return op(ctx)
}
