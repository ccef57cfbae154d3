// Package discussion runs bounded multi-agent exchanges. Agents take turns
// in a fixed round-robin order until one of three stop conditions fires:
// the turn cap, the wall-clock timeout, or an agent signaling it is done.
package discussion

import (
	"context"
	"strings"
	"time"

	"github.com/scribemesh/scribemesh/agent"
	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
	"github.com/scribemesh/scribemesh/model"
	"github.com/scribemesh/scribemesh/stream"
)

// DonePhrase is the terminal marker an agent includes to end the exchange
// early. It is stripped from the transcript.
const DonePhrase = "[DISCUSSION_COMPLETE]"

// Turn is one agent contribution to a discussion.
type Turn struct {
	Agent   string      `json:"agent"`
	Content string      `json:"content"`
	Usage   model.Usage `json:"usage"`
	Cost    float64     `json:"cost"`
}

// Result holds the full transcript plus the synthesized outcome.
type Result struct {
	Transcript []Turn      `json:"transcript"`
	Final      string      `json:"final"`
	FinalAgent string      `json:"final_agent"`
	Stopped    StopReason  `json:"stopped"`
	Usage      model.Usage `json:"usage"`
	Cost       float64     `json:"cost"`
}

// StopReason records which stop condition ended the discussion.
type StopReason string

const (
	StoppedByPhrase  StopReason = "done_phrase"
	StoppedByTurnCap StopReason = "turn_cap"
	StoppedByTimeout StopReason = "timeout"
)

// Interceptor inspects each agent contribution before it enters the
// transcript. Returning false drops the turn (it still counts against the
// cap). The workflow uses this to filter internal markers mid-discussion.
type Interceptor func(turn Turn) (Turn, bool)

// Options configures a Coordinator.
type Options struct {
	// MaxTurns caps total agent contributions across all participants.
	MaxTurns int

	// Timeout bounds the discussion wall clock. The turn in flight when it
	// expires is abandoned.
	Timeout time.Duration

	Interceptor Interceptor
	Logger      logging.Logger
}

// Coordinator drives round-robin discussions between agents.
type Coordinator struct {
	agents []agent.Agent
	opts   Options
}

// New constructs a Coordinator. At least two agents are expected; with one
// the discussion degenerates to a single execution.
func New(agents []agent.Agent, optFns ...func(o *Options)) *Coordinator {
	opts := Options{
		MaxTurns: 6,
		Timeout:  60 * time.Second,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Coordinator{agents: agents, opts: opts}
}

// Run executes the discussion over the user's message. Each agent sees the
// message plus the transcript so far, and every kept turn is published to
// the request stream. The final answer is the last substantive
// contribution, whoever made it.
func (c *Coordinator) Run(ctx context.Context, ac *agent.Context, message string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	result := &Result{Stopped: StoppedByTurnCap}

	for i := 0; i < c.opts.MaxTurns; i++ {
		a := c.agents[i%len(c.agents)]
		prompt := c.buildPrompt(message, result.Transcript, a.Name(), i)

		out, err := a.Execute(ctx, ac, prompt)
		if err != nil {
			if ctx.Err() != nil {
				result.Stopped = StoppedByTimeout
				c.opts.Logger.Warn("discussion.timeout", "agent", a.Name(), "turn", i)
				break
			}
			// One agent failing does not end the exchange; the next
			// participant continues with what exists so far.
			c.opts.Logger.Warn("discussion.turn.failed", "agent", a.Name(), "error", err)
			continue
		}
		result.Usage = result.Usage.Add(out.Usage)
		result.Cost += out.Cost

		content, done := splitDonePhrase(out.Text)
		turn := Turn{Agent: a.Name(), Content: content, Usage: out.Usage, Cost: out.Cost}
		if c.opts.Interceptor != nil {
			var keep bool
			turn, keep = c.opts.Interceptor(turn)
			if !keep {
				continue
			}
		}
		if turn.Content != "" {
			result.Transcript = append(result.Transcript, turn)
			stream.Emit(ctx, core.NewAgentMessageEvent(turn.Agent, turn.Content))
		}
		if done {
			result.Stopped = StoppedByPhrase
			break
		}
		if ctx.Err() != nil {
			result.Stopped = StoppedByTimeout
			break
		}
	}

	if len(result.Transcript) > 0 {
		last := result.Transcript[len(result.Transcript)-1]
		result.Final = last.Content
		result.FinalAgent = last.Agent
	}
	c.opts.Logger.Info("discussion.finished",
		"turns", len(result.Transcript),
		"stopped", string(result.Stopped),
		"final_agent", result.FinalAgent,
	)
	return result, nil
}

// Participants returns the agent names in turn order.
func (c *Coordinator) Participants() []string {
	names := make([]string, 0, len(c.agents))
	for _, a := range c.agents {
		names = append(names, a.Name())
	}
	return names
}

func (c *Coordinator) buildPrompt(message string, transcript []Turn, self string, turn int) string {
	var b strings.Builder
	b.WriteString("The user asked:\n")
	b.WriteString(message)
	b.WriteString("\n\nYou are in a working discussion with ")
	b.WriteString(strings.Join(c.others(self), " and "))
	b.WriteString(".\n")
	if len(transcript) == 0 {
		b.WriteString("Open the discussion with your take.\n")
	} else {
		b.WriteString("Discussion so far:\n")
		for _, t := range transcript {
			b.WriteString(t.Agent)
			b.WriteString(": ")
			b.WriteString(t.Content)
			b.WriteString("\n")
		}
		b.WriteString("Add what is missing or refine the answer.\n")
	}
	if turn >= c.opts.MaxTurns-len(c.agents) {
		b.WriteString("The discussion is closing; converge on a final answer.\n")
	}
	b.WriteString("If the answer is complete, end your message with ")
	b.WriteString(DonePhrase)
	b.WriteString(".")
	return b.String()
}

func (c *Coordinator) others(self string) []string {
	var names []string
	for _, a := range c.agents {
		if a.Name() != self {
			names = append(names, a.Name())
		}
	}
	return names
}

func splitDonePhrase(text string) (string, bool) {
	if !strings.Contains(text, DonePhrase) {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(strings.ReplaceAll(text, DonePhrase, "")), true
}
