// Package agent implements the conversational agent variants. A Variant
// binds a role instruction, a model and a tool set, and runs the
// generate/act loop that drives a single agent turn.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/internal/util"
	"github.com/scribemesh/scribemesh/logging"
	"github.com/scribemesh/scribemesh/model"
	"github.com/scribemesh/scribemesh/tool"
)

// Context carries the per-request inputs an agent needs beyond the message
// itself: retrieved memory, identity, and the audit recorder.
type Context struct {
	UserID         string
	ConversationID string
	History        []core.Turn
	Similar        []core.Turn
	Preferences    *core.Preferences
	Recorder       tool.Recorder
	Logger         logging.Logger
}

// Output is the result of a single agent execution.
type Output struct {
	Text        string
	Usage       model.Usage
	Cost        float64
	ToolResults []tool.Result
}

// Agent is a conversational participant.
type Agent interface {
	// Name returns the stable agent identifier used in routing mentions,
	// stream frames and turn attribution.
	Name() string

	// Description summarizes the agent's role for routing and discussion
	// introductions.
	Description() string

	// Execute runs one agent turn over the given message.
	Execute(ctx context.Context, ac *Context, message string) (*Output, error)
}

// Options configures a Variant.
type Options struct {
	// MaxToolTurns bounds the generate/act loop. Once exhausted the agent
	// is asked for a final answer without tools.
	MaxToolTurns int

	// CostPerInputToken and CostPerOutputToken price usage accounting.
	CostPerInputToken  float64
	CostPerOutputToken float64

	Logger logging.Logger
}

// Variant is an Agent assembled from a role instruction, a model and tools.
type Variant struct {
	name        string
	description string
	instruction string
	model       model.Model
	tools       []tool.Tool
	opts        Options
}

// New constructs a Variant. The instruction is a template rendered with the
// request context (user preferences, history summary) before each run.
func New(name, description, instruction string, m model.Model, tools []tool.Tool, optFns ...func(o *Options)) *Variant {
	opts := Options{
		MaxToolTurns: 4,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Variant{
		name:        name,
		description: description,
		instruction: instruction,
		model:       m,
		tools:       tools,
		opts:        opts,
	}
}

// Name implements Agent.
func (v *Variant) Name() string { return v.name }

// Description implements Agent.
func (v *Variant) Description() string { return v.description }

// Tools exposes the agent's tool set. The workflow coordinator uses it to
// detect capability-based degradation.
func (v *Variant) Tools() []tool.Tool { return v.tools }

// Execute implements Agent. It builds the model request from the retrieved
// context, then alternates model generations with tool executions until the
// model answers in plain text or the tool turn budget runs out.
func (v *Variant) Execute(ctx context.Context, ac *Context, message string) (*Output, error) {
	logger := v.opts.Logger
	if ac.Logger != nil {
		logger = ac.Logger
	}

	messages := v.buildMessages(ac, message)
	defs := toolDefinitions(v.tools)
	out := &Output{}

	for turn := 0; ; turn++ {
		req := model.Request{
			Instructions: v.renderInstruction(ac),
			Messages:     messages,
			Tools:        defs,
		}
		if turn >= v.opts.MaxToolTurns {
			// Budget exhausted. Force a plain answer.
			req.Tools = nil
		}

		resp, err := v.generate(ctx, req)
		if err != nil {
			return nil, &core.AgentExecutionError{Agent: v.name, Err: err}
		}
		if resp.Usage != nil {
			out.Usage = out.Usage.Add(*resp.Usage)
			out.Cost += v.cost(*resp.Usage)
		}

		if len(resp.ToolCalls) == 0 {
			out.Text = resp.Text
			return out, nil
		}

		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Text:      resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			result := v.executeTool(ctx, ac, call, logger)
			out.ToolResults = append(out.ToolResults, result)
			messages = append(messages, model.Message{
				Role: model.RoleTool,
				ToolResult: &model.ToolResult{
					ID:      call.ID,
					Name:    call.Name,
					Content: resultContent(result),
					IsError: !result.Success,
				},
			})
		}
	}
}

// generate consumes the model's channel pair and returns the final response.
func (v *Variant) generate(ctx context.Context, req model.Request) (*model.Response, error) {
	respCh, errCh := v.model.Generate(ctx, req)
	var final *model.Response
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				r := resp
				final = &r
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if final == nil {
		return nil, fmt.Errorf("model %s returned no response", v.model.Info().Name)
	}
	return final, nil
}

func (v *Variant) executeTool(ctx context.Context, ac *Context, call model.ToolCall, logger logging.Logger) tool.Result {
	t := v.toolByName(call.Name)
	if t == nil {
		return tool.Failure("unknown tool %q", call.Name)
	}
	tc := tool.NewContext(ctx, v.name, func(o *tool.ContextOptions) {
		o.UserID = ac.UserID
		o.ConversationID = ac.ConversationID
		o.Recorder = ac.Recorder
		o.Logger = logger
	})
	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return tool.Failure("malformed arguments for %s: %v", call.Name, err)
		}
	}
	return t.Call(tc, args)
}

func (v *Variant) toolByName(name string) tool.Tool {
	for _, t := range v.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

func (v *Variant) cost(u model.Usage) float64 {
	return float64(u.PromptTokens)*v.opts.CostPerInputToken +
		float64(u.CompletionTokens)*v.opts.CostPerOutputToken
}

// buildMessages assembles the model conversation: similar turns from other
// conversations first as background, then the recent history, then the
// current message.
func (v *Variant) buildMessages(ac *Context, message string) []model.Message {
	var messages []model.Message
	if len(ac.Similar) > 0 {
		var b strings.Builder
		b.WriteString("Relevant context from earlier conversations:\n")
		for _, t := range ac.Similar {
			fmt.Fprintf(&b, "- %s\n", t.Content)
		}
		messages = append(messages, model.Message{Role: model.RoleUser, Text: b.String()})
		messages = append(messages, model.Message{Role: model.RoleAssistant, Text: "Understood."})
	}
	for _, t := range ac.History {
		role := model.RoleAssistant
		if t.IsUser() {
			role = model.RoleUser
		}
		messages = append(messages, model.Message{Role: role, Text: t.Content})
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Text: message})
	return messages
}

func (v *Variant) renderInstruction(ac *Context) string {
	data := map[string]any{
		"agent_name": v.name,
	}
	if ac.Preferences != nil {
		data["preferred_agent"] = ac.Preferences.PreferredAgent
		data["topics"] = ac.Preferences.TopicsOfInterest
	}
	rendered, err := util.RenderTemplate(v.instruction, data)
	if err != nil {
		return v.instruction
	}
	return rendered
}

func toolDefinitions(tools []tool.Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

func resultContent(r tool.Result) string {
	if !r.Success {
		return fmt.Sprintf("error: %s", r.Error)
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return fmt.Sprintf("%v", r.Data)
	}
	return string(data)
}
