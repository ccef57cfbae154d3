// Package tool implements the function calling subsystem that lets agents
// invoke structured domain actions (knowledge search, web search, record
// creation and update) with schema validated arguments and contained error
// handling. Tools never propagate failures to the calling agent machinery:
// every outcome, success or not, is a structured Result.
package tool

import (
	"fmt"

	"github.com/scribemesh/scribemesh/internal/util"
)

// Result is the structured outcome of a tool call. Success results carry
// Data; failures carry a user-safe Error string. Tools never panic or return
// Go errors across the boundary.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK(data any) Result { return Result{Success: true, Data: data} }

// Failure wraps an error message in a failed result.
func Failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Tool is a callable capability bound to an agent variant.
//
// Implementations should provide clear snake_case names and a minimal JSON
// schema for Parameters; both are exposed to the language model. Call must
// be safe for concurrent use and must capture all internal failures in the
// returned Result.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case).
	Name() string

	// Description is shown to the model to guide tool selection.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with validated arguments.
	Call(tc *Context, args map[string]any) Result
}

// ValidationError re-exports the shared schema validation error type.
type ValidationError = util.ValidationError

// ToolError categorizes an internal tool failure for logging and audit. It
// never crosses the tool boundary as a Go error; FunctionTool folds it into
// the failed Result.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"` // VALIDATION_ERROR, EXECUTION_ERROR, PANIC
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}
