package discussion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribemesh/scribemesh/agent"
	"github.com/scribemesh/scribemesh/model"
)

// scriptedAgent returns canned responses in order, then repeats the last.
type scriptedAgent struct {
	name      string
	responses []string
	calls     int
	failWith  error
	delay     time.Duration
}

func (a *scriptedAgent) Name() string        { return a.name }
func (a *scriptedAgent) Description() string { return "scripted" }

func (a *scriptedAgent) Execute(ctx context.Context, _ *agent.Context, _ string) (*agent.Output, error) {
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.failWith != nil {
		return nil, a.failWith
	}
	idx := a.calls
	if idx >= len(a.responses) {
		idx = len(a.responses) - 1
	}
	a.calls++
	return &agent.Output{
		Text:  a.responses[idx],
		Usage: model.Usage{TotalTokens: 10},
	}, nil
}

func TestDiscussionStopsOnDonePhrase(t *testing.T) {
	a := &scriptedAgent{name: "scribe", responses: []string{"first thoughts"}}
	b := &scriptedAgent{name: "archivist", responses: []string{"agreed, final answer " + DonePhrase}}

	c := New([]agent.Agent{a, b})
	res, err := c.Run(context.Background(), &agent.Context{}, "question")
	require.NoError(t, err)

	assert.Equal(t, StoppedByPhrase, res.Stopped)
	require.Len(t, res.Transcript, 2)
	assert.Equal(t, "agreed, final answer", res.Final)
	assert.Equal(t, "archivist", res.FinalAgent)
	assert.NotContains(t, res.Final, DonePhrase)
}

func TestDiscussionStopsAtTurnCap(t *testing.T) {
	a := &scriptedAgent{name: "scribe", responses: []string{"more"}}
	b := &scriptedAgent{name: "archivist", responses: []string{"and more"}}

	c := New([]agent.Agent{a, b}, func(o *Options) { o.MaxTurns = 4 })
	res, err := c.Run(context.Background(), &agent.Context{}, "question")
	require.NoError(t, err)

	assert.Equal(t, StoppedByTurnCap, res.Stopped)
	assert.Len(t, res.Transcript, 4)
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, 2, b.calls)
}

func TestDiscussionTimeout(t *testing.T) {
	a := &scriptedAgent{name: "scribe", responses: []string{"slow"}, delay: 200 * time.Millisecond}
	b := &scriptedAgent{name: "archivist", responses: []string{"slower"}, delay: 200 * time.Millisecond}

	c := New([]agent.Agent{a, b}, func(o *Options) {
		o.MaxTurns = 10
		o.Timeout = 300 * time.Millisecond
	})
	start := time.Now()
	res, err := c.Run(context.Background(), &agent.Context{}, "question")
	require.NoError(t, err)

	assert.Equal(t, StoppedByTimeout, res.Stopped)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Less(t, len(res.Transcript), 10)
}

func TestDiscussionSurvivesOneFailingAgent(t *testing.T) {
	a := &scriptedAgent{name: "scribe", failWith: errors.New("model down")}
	b := &scriptedAgent{name: "archivist", responses: []string{"carrying on " + DonePhrase}}

	c := New([]agent.Agent{a, b})
	res, err := c.Run(context.Background(), &agent.Context{}, "question")
	require.NoError(t, err)

	assert.Equal(t, "archivist", res.FinalAgent)
	assert.Equal(t, "carrying on", res.Final)
}

func TestDiscussionRoundRobinOrder(t *testing.T) {
	a := &scriptedAgent{name: "scribe", responses: []string{"s1", "s2"}}
	b := &scriptedAgent{name: "archivist", responses: []string{"a1", "a2"}}

	c := New([]agent.Agent{a, b}, func(o *Options) { o.MaxTurns = 4 })
	res, err := c.Run(context.Background(), &agent.Context{}, "question")
	require.NoError(t, err)

	var order []string
	for _, turn := range res.Transcript {
		order = append(order, fmt.Sprintf("%s:%s", turn.Agent, turn.Content))
	}
	assert.Equal(t, []string{"scribe:s1", "archivist:a1", "scribe:s2", "archivist:a2"}, order)
}

func TestDiscussionInterceptor(t *testing.T) {
	a := &scriptedAgent{name: "scribe", responses: []string{"raw [INTERNAL] text"}}
	b := &scriptedAgent{name: "archivist", responses: []string{"fine " + DonePhrase}}

	c := New([]agent.Agent{a, b}, func(o *Options) {
		o.Interceptor = func(turn Turn) (Turn, bool) {
			turn.Content = strings.ReplaceAll(turn.Content, "[INTERNAL] ", "")
			return turn, true
		}
	})
	res, err := c.Run(context.Background(), &agent.Context{}, "question")
	require.NoError(t, err)

	assert.Equal(t, "raw text", res.Transcript[0].Content)
}

func TestDiscussionAggregatesUsage(t *testing.T) {
	a := &scriptedAgent{name: "scribe", responses: []string{"one"}}
	b := &scriptedAgent{name: "archivist", responses: []string{"two " + DonePhrase}}

	c := New([]agent.Agent{a, b})
	res, err := c.Run(context.Background(), &agent.Context{}, "question")
	require.NoError(t, err)

	assert.Equal(t, 20, res.Usage.TotalTokens)
}
