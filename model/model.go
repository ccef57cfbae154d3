// Package model defines the normalized language-model contract driving both
// single-agent execution and discussion turns, plus a scripted in-memory
// implementation for tests and examples. Provider adapters live in the
// openai and anthropic subpackages.
package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Conversation roles understood by provider adapters.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a provider-agnostic function call request surfaced by a model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON-encoded argument payload
}

// ToolResult feeds a tool outcome back into the conversation.
type ToolResult struct {
	ID      string `json:"id"`   // matches the originating ToolCall ID
	Name    string `json:"name"` // tool name
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// Message is one entry in the normalized conversation transcript. Assistant
// messages may carry ToolCalls; messages with RoleTool carry a ToolResult.
type Message struct {
	Role       string      `json:"role"`
	Text       string      `json:"text,omitempty"`
	ToolCalls  []ToolCall  `json:"tool_calls,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a minimal JSON Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by agent execution.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// Usage captures token statistics for one response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of two usage records.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Response is a (partial or final) chunk emitted by a model. For partial
// chunks Text holds the delta; the final chunk carries the full text, any
// pending tool calls, the finish reason and usage.
type Response struct {
	Partial      bool       `json:"partial"`
	Text         string     `json:"text,omitempty"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls"
	Usage        *Usage     `json:"usage,omitempty"`
}

// Info describes a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required to drive generation. Generate
// returns a response channel (closed after the final chunk) and an error
// channel (buffered size 1).
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)
	Info() Info
}

// MockModel is a scripted in-memory Model for tests and examples. Responses
// are keyed by the last user message; a registered tool call is emitted on
// the first pass and the canned text once the matching tool result appears
// in the transcript.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	toolCalls map[string][]ToolCall
	failWith  error
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock", SupportsTools: true},
		responses: make(map[string]string),
		toolCalls: make(map[string][]ToolCall),
	}
}

// AddResponse registers a deterministic completion for a user message.
func (m *MockModel) AddResponse(userText, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[userText] = response
}

// AddToolCall registers tool calls emitted the first time userText is the
// pending user message. After the tool results are appended, Generate falls
// through to the registered text response.
func (m *MockModel) AddToolCall(userText string, calls ...ToolCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls[userText] = append(m.toolCalls[userText], calls...)
}

// FailWith makes every Generate call surface err, for exercising the
// agent-execution failure path.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		m.mu.Lock()
		failWith := m.failWith
		m.mu.Unlock()
		if failWith != nil {
			errCh <- failWith
			return
		}

		userText, toolsDone := lastExchange(req.Messages)
		if userText == "" {
			errCh <- fmt.Errorf("no user message provided")
			return
		}

		m.mu.Lock()
		calls := m.toolCalls[userText]
		full, ok := m.responses[userText]
		m.mu.Unlock()

		if len(calls) > 0 && !toolsDone {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
			case respCh <- Response{ToolCalls: calls, FinishReason: "tool_calls", Usage: mockUsage(userText, "")}:
			}
			return
		}

		if !ok {
			full = "Mock response to: " + userText
		}
		if req.Stream {
			for _, word := range strings.Fields(full) {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Text: word + " "}:
				}
			}
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop", Usage: mockUsage(userText, full)}:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// lastExchange returns the most recent user message text and whether a tool
// result was appended after it (meaning the scripted tool round is done).
func lastExchange(messages []Message) (string, bool) {
	userText := ""
	toolsDone := false
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			userText = msg.Text
			toolsDone = false
		case RoleTool:
			toolsDone = true
		}
	}
	return userText, toolsDone
}

// mockUsage derives a deterministic, roughly word-proportional usage figure.
func mockUsage(prompt, completion string) *Usage {
	pt := len(strings.Fields(prompt))
	ct := len(strings.Fields(completion))
	return &Usage{PromptTokens: pt, CompletionTokens: ct, TotalTokens: pt + ct}
}
