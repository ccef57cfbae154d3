package workflow

import (
	"sync"
	"time"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/model"
)

// State accumulates everything one request produces while it moves through
// the pipeline: the tool audit trail, non-fatal warnings, errors from
// degraded stages, and usage metrics. It is safe for concurrent use; tool
// executions inside a discussion may record in parallel.
type State struct {
	mu sync.Mutex

	RequestID      string
	ConversationID string
	UserID         string
	StartedAt      time.Time

	invocations []core.ToolInvocation
	warnings    []string
	errors      []string

	usage model.Usage
	cost  float64
}

// NewState initializes per-request state. A missing conversation id gets a
// fresh one; the caller reads it back from the state.
func NewState(req *core.Request) *State {
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = core.NewID()
	}
	return &State{
		RequestID:      core.NewID(),
		ConversationID: conversationID,
		UserID:         req.UserID,
		StartedAt:      time.Now().UTC(),
	}
}

// Record implements tool.Recorder.
func (s *State) Record(inv core.ToolInvocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations = append(s.invocations, inv)
}

// Invocations returns a snapshot of the audit trail.
func (s *State) Invocations() []core.ToolInvocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ToolInvocation, len(s.invocations))
	copy(out, s.invocations)
	return out
}

// Warn records a non-fatal degradation surfaced in the result.
func (s *State) Warn(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, msg)
}

// Error records a stage error that did not abort the request.
func (s *State) Error(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, msg)
}

// AddUsage accumulates model usage and cost.
func (s *State) AddUsage(u model.Usage, cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = s.usage.Add(u)
	s.cost += cost
}

// Warnings returns the accumulated warnings.
func (s *State) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

// Errors returns the accumulated stage errors.
func (s *State) Errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

// Usage returns the accumulated usage and cost.
func (s *State) Usage() (model.Usage, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, s.cost
}
