package tool

import (
	"context"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
)

// Recorder collects tool invocations into the request's audit trail. The
// workflow state implements it; tests may capture invocations directly.
type Recorder interface {
	Record(inv core.ToolInvocation)
}

// Context is the constrained execution surface handed to tool functions. It
// carries the request's context.Context (through which the stream bridge is
// reached), the calling agent's identity and the audit recorder. Tools never
// receive a stream handle directly.
type Context struct {
	ctx            context.Context
	agent          string
	userID         string
	conversationID string
	recorder       Recorder
	logger         logging.Logger
}

// ContextOptions configures construction of a tool Context.
type ContextOptions struct {
	UserID         string
	ConversationID string
	Recorder       Recorder
	Logger         logging.Logger
}

// NewContext builds a tool context for one agent's tool executions.
func NewContext(ctx context.Context, agent string, optFns ...func(o *ContextOptions)) *Context {
	opts := ContextOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Context{
		ctx:            ctx,
		agent:          agent,
		userID:         opts.UserID,
		conversationID: opts.ConversationID,
		recorder:       opts.Recorder,
		logger:         opts.Logger,
	}
}

// Context returns the ambient request context.
func (tc *Context) Context() context.Context { return tc.ctx }

// Agent returns the name of the agent invoking the tool.
func (tc *Context) Agent() string { return tc.agent }

// UserID returns the requesting user, if known.
func (tc *Context) UserID() string { return tc.userID }

// ConversationID returns the active conversation, if known.
func (tc *Context) ConversationID() string { return tc.conversationID }

// Logger returns the logger associated with the tool invocation.
func (tc *Context) Logger() logging.Logger { return tc.logger }

// record forwards an invocation to the audit recorder when one is present.
func (tc *Context) record(inv core.ToolInvocation) {
	if tc.recorder != nil {
		tc.recorder.Record(inv)
	}
}
