package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/discussion"
	"github.com/scribemesh/scribemesh/tool"
)

func TestCleanStripsInternalMarkers(t *testing.T) {
	f := New()

	out := f.Clean("All done here. " + discussion.DonePhrase)
	assert.Equal(t, "All done here.", out)

	out = f.Clean("before\n[INTERNAL]\nafter")
	assert.NotContains(t, out, "[INTERNAL]")
	assert.Contains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestCleanCollapsesToolJSON(t *testing.T) {
	f := New()

	in := "Saved it for you.\n```json\n{\"record_id\": \"abc\", \"title\": \"Meeting notes\"}\n```"
	out := f.Clean(in)
	assert.Contains(t, out, "(saved: Meeting notes)")
	assert.NotContains(t, out, "record_id")

	in = "Here is what I found:\n```json\n{\"query\": \"henderson\", \"snippets\": [{}, {}]}\n```"
	out = f.Clean(in)
	assert.Contains(t, out, `(found 2 results for "henderson")`)
}

func TestCleanLeavesOrdinaryJSONAlone(t *testing.T) {
	f := New()

	in := "Example config:\n```json\n{\"port\": 8080}\n```"
	out := f.Clean(in)
	assert.Contains(t, out, `"port"`)
}

func TestCleanTruncates(t *testing.T) {
	f := New(func(o *Options) { o.MaxLength = 50 })

	out := f.Clean(strings.Repeat("long answer ", 20))
	assert.LessOrEqual(t, len([]rune(out)), 51)
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestCleanIsIdempotent(t *testing.T) {
	f := New(func(o *Options) { o.MaxLength = 120 })

	inputs := []string{
		"plain text answer",
		"marker at end " + discussion.DonePhrase,
		"Saved.\n```json\n{\"record_id\": \"r1\", \"title\": \"T\"}\n```",
		strings.Repeat("over the limit ", 30),
		"a\n\n\n\n\nb",
	}
	for _, in := range inputs {
		once := f.Clean(in)
		twice := f.Clean(once)
		assert.Equal(t, once, twice, "input: %q", in)
	}
}

func TestCleanNormalizesBlankRuns(t *testing.T) {
	f := New()
	out := f.Clean("a\n\n\n\n\nb")
	assert.Equal(t, "a\n\nb", out)
}

func invocation(toolName string, status core.InvocationStatus, result any) core.ToolInvocation {
	return core.ToolInvocation{
		CorrelationToken: core.NewID(),
		Tool:             toolName,
		Status:           status,
		Result:           result,
	}
}

func TestRecordWorthyExplicitToolWins(t *testing.T) {
	trace := []core.ToolInvocation{
		invocation(tool.NameCreateRecord, core.StatusCompleted, tool.RecordData{RecordID: "r1", Title: "T"}),
	}

	worthy, ids := RecordWorthy(trace, "just chatting about nothing")
	assert.True(t, worthy)
	assert.Equal(t, []string{"r1"}, ids)
}

func TestRecordWorthyFailedToolDoesNotCount(t *testing.T) {
	trace := []core.ToolInvocation{
		invocation(tool.NameCreateRecord, core.StatusFailed, "tool error"),
	}

	worthy, ids := RecordWorthy(trace, "note that this failed")
	assert.False(t, worthy, "a failed record tool settles the question negatively")
	assert.Empty(t, ids)
}

func TestRecordWorthySearchOnlyIsNot(t *testing.T) {
	trace := []core.ToolInvocation{
		invocation(tool.NameSearchKnowledge, core.StatusCompleted, tool.SearchData{}),
	}

	worthy, _ := RecordWorthy(trace, "what did I say about x?")
	assert.False(t, worthy)
}

func TestRecordWorthyHeuristicFallback(t *testing.T) {
	worthy, ids := RecordWorthy(nil, "Note that the deploy window is Tuesday")
	assert.True(t, worthy)
	assert.Empty(t, ids)

	worthy, _ = RecordWorthy(nil, "how is the weather?")
	assert.False(t, worthy)
}
