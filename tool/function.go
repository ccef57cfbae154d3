package tool

import (
	"fmt"
	"time"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/internal/util"
	"github.com/scribemesh/scribemesh/logging"
	"github.com/scribemesh/scribemesh/stream"
)

// FunctionTool adapts a plain Go function into a Tool. Responsibilities:
//
//   - validate model supplied arguments against the declared schema
//   - generate a correlation token per call and emit the running frame at
//     entry and the completed/failed frame at exit through the ambient
//     stream bridge (silently skipped when no sink is installed)
//   - record the invocation in the request audit trail
//   - contain panics and errors, folding them into a failed Result
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	actionText  func(args map[string]any) string
	fn          func(tc *Context, args map[string]any) (any, error)
}

// FunctionToolOptions configures optional FunctionTool behavior.
type FunctionToolOptions struct {
	// ActionText renders the human-readable progress line shown alongside
	// agent_action frames ("Searching your notes for …"). Defaults to the
	// tool description.
	ActionText func(args map[string]any) string
}

// NewFunctionTool constructs a FunctionTool from an explicit schema and
// implementation. The function's returned error never escapes the tool
// boundary; it becomes a failed Result.
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(tc *Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	opts := FunctionToolOptions{}
	for _, optFn := range optFns {
		optFn(&opts)
	}
	if opts.ActionText == nil {
		opts.ActionText = func(map[string]any) string { return description }
	}
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		actionText:  opts.ActionText,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct via
// reflection; a convenience for simple argument containers.
func NewFunctionToolFromStruct(
	name, description string,
	argsType any,
	fn func(tc *Context, args map[string]any) (any, error),
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(argsType), fn, optFns...)
}

// Name returns the unique tool name used in function call declarations.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args, emits the running frame, executes the wrapped
// function and emits the terminal frame sharing the same correlation token.
// All failure modes are folded into the returned Result.
func (t *FunctionTool) Call(tc *Context, args map[string]any) Result {
	token := core.NewID()
	start := time.Now().UTC()
	action := t.actionText(args)

	stream.Emit(tc.Context(), core.NewAgentActionEvent(tc.Agent(), t.name, core.StatusRunning, token, action))

	var (
		data any
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &ToolError{Tool: t.name, Message: fmt.Sprintf("panic: %v", r), Code: "PANIC"}
				tc.Logger().Error("tool.call.panic", "tool", t.name, "recover", fmt.Sprintf("%v", r))
			}
		}()
		if vErr := util.ValidateParameters(args, t.parameters); vErr != nil {
			err = &ToolError{Tool: t.name, Message: vErr.Error(), Code: "VALIDATION_ERROR"}
			return
		}
		data, err = t.fn(tc, args)
		if err != nil {
			if _, ok := err.(*ToolError); !ok {
				err = &ToolError{Tool: t.name, Message: err.Error(), Code: "EXECUTION_ERROR"}
			}
		}
	}()

	ended := time.Now().UTC()
	inv := core.ToolInvocation{
		CorrelationToken: token,
		Tool:             t.name,
		Agent:            tc.Agent(),
		Args:             args,
		StartedAt:        start,
		EndedAt:          ended,
	}

	if err != nil {
		inv.Status = core.StatusFailed
		inv.Result = err.Error()
		tc.record(inv)
		logging.LogToolCall(tc.Logger(), t.name, tc.Agent(), ended.Sub(start), false, err.Error())
		stream.Emit(tc.Context(), core.NewAgentActionEvent(tc.Agent(), t.name, core.StatusFailed, token, action))
		return Result{Success: false, Error: err.Error()}
	}

	inv.Status = core.StatusCompleted
	inv.Result = data
	tc.record(inv)
	logging.LogToolCall(tc.Logger(), t.name, tc.Agent(), ended.Sub(start), true, "")
	stream.Emit(tc.Context(), core.NewAgentActionEvent(tc.Agent(), t.name, core.StatusCompleted, token, action))
	return OK(data)
}
