package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/model"
	"github.com/scribemesh/scribemesh/tool"
)

type traceRecorder struct {
	mu    sync.Mutex
	trace []core.ToolInvocation
}

func (r *traceRecorder) Record(inv core.ToolInvocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = append(r.trace, inv)
}

func markerTool(name string, calls *int) tool.Tool {
	schema := map[string]any{
		"type":       "object",
		"properties": map[string]any{"value": map[string]any{"type": "string"}},
	}
	return tool.NewFunctionTool(name, "test tool", schema,
		func(tc *tool.Context, args map[string]any) (any, error) {
			*calls++
			return map[string]any{"echo": args["value"]}, nil
		})
}

func TestVariantPlainAnswer(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("hello there", "hi, how can I help?")

	v := New("scribe", "test", "You are {{.agent_name}}.", m, nil)
	out, err := v.Execute(context.Background(), &Context{UserID: "u1"}, "hello there")
	require.NoError(t, err)

	assert.Equal(t, "hi, how can I help?", out.Text)
	assert.Positive(t, out.Usage.TotalTokens)
	assert.Empty(t, out.ToolResults)
}

func TestVariantExecutesToolsThenAnswers(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddToolCall("save my recipe", model.ToolCall{
		ID:        "call-1",
		Name:      "marker",
		Arguments: `{"value":"recipe"}`,
	})
	m.AddResponse("save my recipe", "saved it")

	calls := 0
	rec := &traceRecorder{}
	v := New("scribe", "test", "instruction", m, []tool.Tool{markerTool("marker", &calls)})

	out, err := v.Execute(context.Background(), &Context{Recorder: rec}, "save my recipe")
	require.NoError(t, err)

	assert.Equal(t, "saved it", out.Text)
	assert.Equal(t, 1, calls)
	require.Len(t, out.ToolResults, 1)
	assert.True(t, out.ToolResults[0].Success)

	require.Len(t, rec.trace, 1)
	assert.Equal(t, "marker", rec.trace[0].Tool)
	assert.Equal(t, "scribe", rec.trace[0].Agent)
}

func TestVariantUnknownToolBecomesFailedResult(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddToolCall("do something", model.ToolCall{ID: "c1", Name: "ghost", Arguments: `{}`})
	m.AddResponse("do something", "done anyway")

	v := New("scribe", "test", "instruction", m, nil)
	out, err := v.Execute(context.Background(), &Context{}, "do something")
	require.NoError(t, err)

	require.Len(t, out.ToolResults, 1)
	assert.False(t, out.ToolResults[0].Success)
	assert.Equal(t, "done anyway", out.Text)
}

func TestVariantMalformedArgumentsBecomeFailedResult(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddToolCall("save this", model.ToolCall{ID: "c1", Name: "marker", Arguments: `{"value": truncated`})
	m.AddResponse("save this", "could not save")

	calls := 0
	v := New("scribe", "test", "instruction", m, []tool.Tool{markerTool("marker", &calls)})
	out, err := v.Execute(context.Background(), &Context{}, "save this")
	require.NoError(t, err)

	assert.Zero(t, calls)
	require.Len(t, out.ToolResults, 1)
	assert.False(t, out.ToolResults[0].Success)
	assert.Contains(t, out.ToolResults[0].Error, "malformed arguments")
}

func TestVariantModelFailure(t *testing.T) {
	m := model.NewMockModel("mock")
	m.FailWith(errors.New("provider outage"))

	v := New("archivist", "test", "instruction", m, nil)
	_, err := v.Execute(context.Background(), &Context{}, "anything")
	require.Error(t, err)

	var execErr *core.AgentExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "archivist", execErr.Agent)
}

func TestVariantCostAccounting(t *testing.T) {
	m := model.NewMockModel("mock")
	m.AddResponse("cost me", "four words exactly here")

	v := New("scribe", "test", "instruction", m, nil, func(o *Options) {
		o.CostPerInputToken = 0.001
		o.CostPerOutputToken = 0.002
	})
	out, err := v.Execute(context.Background(), &Context{}, "cost me")
	require.NoError(t, err)
	assert.Positive(t, out.Cost)
}

func TestVariantInstructionTemplate(t *testing.T) {
	v := New("scribe", "test", "You are {{.agent_name}}. {{if .topics}}Topics: {{join .topics \", \"}}.{{end}}", nil, nil)

	rendered := v.renderInstruction(&Context{
		Preferences: &core.Preferences{TopicsOfInterest: []string{"cooking", "gardening"}},
	})
	assert.Contains(t, rendered, "You are scribe.")
	assert.Contains(t, rendered, "Topics: cooking, gardening.")
}

func TestNewScribeAndArchivistToolSets(t *testing.T) {
	m := model.NewMockModel("mock")
	kit := tool.NewToolkit(nil, nil)

	scribe := NewScribe(m, kit)
	names := map[string]bool{}
	for _, tl := range scribe.Tools() {
		names[tl.Name()] = true
	}
	assert.True(t, names[tool.NameCreateRecord])
	assert.True(t, names[tool.NameUpdateRecord])
	assert.False(t, names[tool.NameSearchWeb])

	archivist := NewArchivist(m, kit)
	names = map[string]bool{}
	for _, tl := range archivist.Tools() {
		names[tl.Name()] = true
	}
	assert.True(t, names[tool.NameSearchKnowledge])
	assert.True(t, names[tool.NameSearchWeb])
	assert.False(t, names[tool.NameCreateRecord])
}
