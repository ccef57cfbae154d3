package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Mode selects how a request is dispatched. Besides the listed constants, a
// mode may name a specific agent directly (e.g. "scribe").
type Mode string

const (
	// ModeAuto lets the router resolve the handling agent.
	ModeAuto Mode = "auto"
	// ModeDiscussion forces a multi-agent discussion.
	ModeDiscussion Mode = "discussion"
)

// Request is the inbound contract for one conversational exchange.
type Request struct {
	Message        string   `json:"message"`
	Audio          []byte   `json:"audio,omitempty"`
	Mode           Mode     `json:"mode,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
	UserID         string   `json:"user_id,omitempty"`
	SessionID      string   `json:"session_id,omitempty"`
	ContextIDs     []string `json:"context_ids,omitempty"`
}

const maxMessageRunes = 32_000

// Validate rejects malformed requests before they enter the pipeline.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" && len(r.Audio) == 0 {
		return &ValidationError{Field: "message", Message: "message or audio is required"}
	}
	if utf8.RuneCountInString(r.Message) > maxMessageRunes {
		return &ValidationError{Field: "message", Message: fmt.Sprintf("message exceeds %d characters", maxMessageRunes)}
	}
	return nil
}

// Result is the non-streaming final contract, also carried as the payload of
// the terminal complete stream event.
type Result struct {
	Response         string            `json:"response"`
	AgentUsed        string            `json:"agent_used"`
	AgentsInvolved   []string          `json:"agents_involved,omitempty"`
	ConversationID   string            `json:"conversation_id"`
	RecordID         string            `json:"note_id,omitempty"`
	ProcessingTimeMS int64             `json:"processing_time_ms"`
	TokensUsed       int               `json:"tokens_used"`
	Cost             float64           `json:"cost"`
	Errors           []string          `json:"errors,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	ClickableObjects []ClickableObject `json:"clickable_objects,omitempty"`
}
