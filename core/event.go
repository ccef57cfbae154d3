package core

import "time"

// EventType categorizes stream events delivered to callers.
type EventType string

const (
	// EventStart opens a stream; always the first event.
	EventStart EventType = "start"
	// EventAgentMessage carries a displayable agent message.
	EventAgentMessage EventType = "agent_message"
	// EventAgentAction reports tool invocation progress (running/completed/failed).
	EventAgentAction EventType = "agent_action"
	// EventProcessing signals a pipeline stage transition.
	EventProcessing EventType = "processing"
	// EventComplete closes a successful stream and carries the full Result.
	EventComplete EventType = "complete"
	// EventError closes a stream after an unrecoverable failure.
	EventError EventType = "error"
	// EventKeepalive is emitted on idle so transports do not appear stalled.
	EventKeepalive EventType = "keepalive"
)

// StreamEvent is a single frame of the live progress channel. Events for a
// request are delivered in strict production order; Seq is assigned by the
// publisher and increases by one per delivered event.
type StreamEvent struct {
	Seq        int64            `json:"seq"`
	Type       EventType        `json:"type"`
	Agent      string           `json:"agent,omitempty"`
	Tool       string           `json:"tool,omitempty"`
	Status     InvocationStatus `json:"status,omitempty"`
	Token      string           `json:"correlation_token,omitempty"`
	Content    string           `json:"content,omitempty"`
	ActionText string           `json:"action_text,omitempty"`
	Payload    map[string]any   `json:"payload,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// NewAgentMessageEvent builds a displayable message frame authored by agent.
func NewAgentMessageEvent(agent, content string) StreamEvent {
	return StreamEvent{Type: EventAgentMessage, Agent: agent, Content: content}
}

// NewAgentActionEvent builds a tool progress frame. Token correlates the
// running frame with its terminal frame.
func NewAgentActionEvent(agent, tool string, status InvocationStatus, token, actionText string) StreamEvent {
	return StreamEvent{
		Type:       EventAgentAction,
		Agent:      agent,
		Tool:       tool,
		Status:     status,
		Token:      token,
		ActionText: actionText,
	}
}

// NewProcessingEvent builds a stage transition frame.
func NewProcessingEvent(stage string) StreamEvent {
	return StreamEvent{Type: EventProcessing, Content: stage}
}
