package core

import "time"

// InvocationStatus is the lifecycle state of a single tool invocation.
type InvocationStatus string

const (
	// StatusRunning marks an invocation that has started but not finished.
	StatusRunning InvocationStatus = "running"
	// StatusCompleted marks an invocation whose tool returned success.
	StatusCompleted InvocationStatus = "completed"
	// StatusFailed marks an invocation whose tool returned a failure result.
	StatusFailed InvocationStatus = "failed"
)

// Terminal reports whether the status closes the invocation.
func (s InvocationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ToolInvocation is the audit trail entry for one tool call. The correlation
// token links the invocation's running stream event to its terminal event:
// exactly one running event precedes the terminal event per token, and no
// second running event for the token may occur before the first is closed.
type ToolInvocation struct {
	CorrelationToken string           `json:"correlation_token"`
	Tool             string           `json:"tool"`
	Agent            string           `json:"agent"`
	Args             map[string]any   `json:"args,omitempty"`
	Result           any              `json:"result,omitempty"`
	Status           InvocationStatus `json:"status"`
	StartedAt        time.Time        `json:"started_at"`
	EndedAt          time.Time        `json:"ended_at,omitempty"`
}
