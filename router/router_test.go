package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribemesh/scribemesh/agent"
	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/model"
	"github.com/scribemesh/scribemesh/tool"
)

func testAgents(t *testing.T) []agent.Agent {
	t.Helper()
	m := model.NewMockModel("mock")
	kit := tool.NewToolkit(nil, nil)
	return []agent.Agent{
		agent.NewScribe(m, kit),
		agent.NewArchivist(m, kit),
	}
}

func route(t *testing.T, r *Router, message string) Decision {
	t.Helper()
	d, err := r.Route(context.Background(), &core.Request{Message: message}, nil)
	require.NoError(t, err)
	return d
}

func TestRouteSingleMentionForcesAgent(t *testing.T) {
	r := New(testAgents(t))

	d := route(t, r, "@archivist what notes do I have about kubernetes?")
	assert.Equal(t, []string{"archivist"}, d.Agents)
	assert.Equal(t, RationaleMention, d.Rationale)
	assert.Equal(t, core.ModeAuto, d.Mode)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestRouteMultipleMentionsForceDiscussion(t *testing.T) {
	r := New(testAgents(t))

	d := route(t, r, "@scribe @archivist work this out together")
	assert.Equal(t, core.ModeDiscussion, d.Mode)
	assert.ElementsMatch(t, []string{"scribe", "archivist"}, d.Agents)
	assert.Equal(t, RationaleMention, d.Rationale)
}

func TestRouteIgnoresUnknownMentions(t *testing.T) {
	r := New(testAgents(t))

	d := route(t, r, "@nobody note that I like coffee")
	assert.NotEqual(t, RationaleMention, d.Rationale)
}

func TestRouteExplicitDiscussionMode(t *testing.T) {
	r := New(testAgents(t))

	d, err := r.Route(context.Background(), &core.Request{
		Message: "tell me everything",
		Mode:    core.ModeDiscussion,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.ModeDiscussion, d.Mode)
	assert.Equal(t, RationaleMode, d.Rationale)
	assert.Len(t, d.Agents, 2)
}

func TestRouteNamedAgentMode(t *testing.T) {
	r := New(testAgents(t))

	d, err := r.Route(context.Background(), &core.Request{
		Message: "interesting weather today",
		Mode:    core.Mode("archivist"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"archivist"}, d.Agents)
	assert.Equal(t, RationaleMode, d.Rationale)
	assert.Equal(t, core.ModeAuto, d.Mode)
	assert.Equal(t, 1.0, d.Confidence)
}

func TestRouteUnknownNamedModeFallsThrough(t *testing.T) {
	r := New(testAgents(t))

	d, err := r.Route(context.Background(), &core.Request{
		Message: "note that the deadline moved to Friday",
		Mode:    core.Mode("librarian"),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "scribe", d.Primary())
	assert.Equal(t, RationaleKeyword, d.Rationale)
}

func TestRouteBareNameMention(t *testing.T) {
	r := New(testAgents(t))

	d := route(t, r, "archivist, what notes do I have about kubernetes?")
	assert.Equal(t, []string{"archivist"}, d.Agents)
	assert.Equal(t, RationaleMention, d.Rationale)

	d = route(t, r, "scribe and archivist should hash this out")
	assert.Equal(t, core.ModeDiscussion, d.Mode)
	assert.ElementsMatch(t, []string{"scribe", "archivist"}, d.Agents)
}

func TestRouteMentionBeatsExplicitMode(t *testing.T) {
	r := New(testAgents(t))

	d, err := r.Route(context.Background(), &core.Request{
		Message: "@scribe handle this alone",
		Mode:    core.ModeDiscussion,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"scribe"}, d.Agents)
	assert.Equal(t, core.ModeAuto, d.Mode)
}

func TestRouteKeywordClassification(t *testing.T) {
	r := New(testAgents(t))

	tests := []struct {
		message string
		want    string
	}{
		{"note that the deadline moved to Friday", "scribe"},
		{"write down the wifi password: hunter2", "scribe"},
		{"what did I say about the Henderson budget?", "archivist"},
		{"search my notes for the kubernetes upgrade plan", "archivist"},
	}
	for _, tt := range tests {
		d := route(t, r, tt.message)
		assert.Equal(t, tt.want, d.Primary(), "message: %s", tt.message)
		assert.Equal(t, RationaleKeyword, d.Rationale, "message: %s", tt.message)
	}
}

func TestRouteAmbiguousFallsBackToDefault(t *testing.T) {
	r := New(testAgents(t))

	d := route(t, r, "interesting weather today")
	assert.Equal(t, "scribe", d.Primary())
	assert.Equal(t, RationaleDefault, d.Rationale)
	assert.Less(t, d.Confidence, 0.5)
}

func TestRouteAmbiguousUsesLearnedPreference(t *testing.T) {
	r := New(testAgents(t))

	d, err := r.Route(context.Background(),
		&core.Request{Message: "interesting weather today"},
		&core.Preferences{PreferredAgent: "archivist"},
	)
	require.NoError(t, err)
	assert.Equal(t, "archivist", d.Primary())
	assert.Equal(t, RationalePreference, d.Rationale)
}

func TestRouteModelFallback(t *testing.T) {
	fallback := model.NewMockModel("router-mock")
	fallback.AddResponse("interesting weather today", "archivist")

	r := New(testAgents(t), func(o *Options) { o.Fallback = fallback })

	d := route(t, r, "interesting weather today")
	assert.Equal(t, "archivist", d.Primary())
	assert.Equal(t, RationaleModel, d.Rationale)
}

func TestRouteModelFallbackGarbageFallsThrough(t *testing.T) {
	fallback := model.NewMockModel("router-mock")
	fallback.AddResponse("interesting weather today", "no such agent")

	r := New(testAgents(t), func(o *Options) { o.Fallback = fallback })

	d := route(t, r, "interesting weather today")
	assert.Equal(t, "scribe", d.Primary())
	assert.Equal(t, RationaleDefault, d.Rationale)
}
