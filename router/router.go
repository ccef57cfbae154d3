// Package router decides which agent (or agents) handle a request. Explicit
// user signals always win over inference: naming a single agent (with or
// without an @ prefix) forces that agent, naming several forces a
// discussion, and an explicit mode is honored before any classification
// runs.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/scribemesh/scribemesh/agent"
	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
	"github.com/scribemesh/scribemesh/model"
)

// Rationale tags explain how a decision was reached. They surface in logs
// and the result's warnings when routing degraded.
const (
	RationaleMention    = "mention"
	RationaleMode       = "explicit_mode"
	RationaleKeyword    = "keyword"
	RationaleModel      = "model"
	RationalePreference = "preference"
	RationaleDefault    = "default"
)

// Decision is the routing outcome for one request.
type Decision struct {
	Mode       core.Mode `json:"mode"`
	Agents     []string  `json:"agents"`
	Rationale  string    `json:"rationale"`
	Confidence float64   `json:"confidence"`
}

// Primary returns the first agent of the decision.
func (d Decision) Primary() string {
	if len(d.Agents) == 0 {
		return ""
	}
	return d.Agents[0]
}

// Options configures a Router.
type Options struct {
	// Fallback optionally resolves ambiguous requests with a model call.
	// When nil, ambiguous requests go to the default agent.
	Fallback model.Model

	// DefaultAgent handles requests nothing else claims.
	DefaultAgent string

	// ConfidenceThreshold is the keyword score below which the model
	// fallback (or default) is consulted.
	ConfidenceThreshold float64

	Logger logging.Logger
}

// Router maps requests to agents.
type Router struct {
	agents []agent.Agent
	opts   Options
}

var mentionPattern = regexp.MustCompile(`(^|\s)@([a-z][a-z0-9_-]*)`)

// researchSignals mark requests about retrieving or recalling existing
// knowledge; captureSignals mark requests that produce or modify records.
var (
	researchSignals = []string{
		"what did", "what do i know", "find", "search", "look up", "lookup",
		"recall", "remember when", "show me", "summarize my", "which notes",
		"have i", "did i",
	}
	captureSignals = []string{
		"note that", "take a note", "write down", "remember that", "record",
		"save this", "capture", "add to", "update the", "jot down", "keep track",
	}
)

// New constructs a Router over the given agents.
func New(agents []agent.Agent, optFns ...func(o *Options)) *Router {
	opts := Options{
		DefaultAgent:        agent.NameScribe,
		ConfidenceThreshold: 0.5,
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{agents: agents, opts: opts}
}

// Route resolves the handling agents for a request. The preference argument
// may be nil; when present it biases ambiguous requests toward the user's
// preferred agent before the static default applies.
func (r *Router) Route(ctx context.Context, req *core.Request, prefs *core.Preferences) (Decision, error) {
	message := strings.ToLower(req.Message)

	// 1. Explicit mentions.
	if mentioned := r.mentionedAgents(message); len(mentioned) > 0 {
		if len(mentioned) > 1 {
			return r.log(Decision{
				Mode:       core.ModeDiscussion,
				Agents:     mentioned,
				Rationale:  RationaleMention,
				Confidence: 1,
			}), nil
		}
		return r.log(Decision{
			Mode:       core.ModeAuto,
			Agents:     mentioned,
			Rationale:  RationaleMention,
			Confidence: 1,
		}), nil
	}

	// 2. Explicit mode. A mode may also name one agent directly.
	if req.Mode == core.ModeDiscussion {
		return r.log(Decision{
			Mode:       core.ModeDiscussion,
			Agents:     r.agentNames(),
			Rationale:  RationaleMode,
			Confidence: 1,
		}), nil
	}
	if name := strings.ToLower(strings.TrimSpace(string(req.Mode))); name != "" && name != string(core.ModeAuto) && r.hasAgent(name) {
		return r.log(Decision{
			Mode:       core.ModeAuto,
			Agents:     []string{name},
			Rationale:  RationaleMode,
			Confidence: 1,
		}), nil
	}

	// 3. Keyword classification.
	name, score := classify(message)
	if score >= r.opts.ConfidenceThreshold && r.hasAgent(name) {
		return r.log(Decision{
			Mode:       core.ModeAuto,
			Agents:     []string{name},
			Rationale:  RationaleKeyword,
			Confidence: score,
		}), nil
	}

	// 4. Model fallback for the ambiguous remainder.
	if r.opts.Fallback != nil {
		if name, err := r.modelRoute(ctx, req.Message); err == nil && r.hasAgent(name) {
			return r.log(Decision{
				Mode:       core.ModeAuto,
				Agents:     []string{name},
				Rationale:  RationaleModel,
				Confidence: 0.8,
			}), nil
		} else if err != nil {
			r.opts.Logger.Warn("router.fallback.failed", "error", err)
		}
	}

	// 5. Learned preference, then static default.
	if prefs != nil && prefs.PreferredAgent != "" && r.hasAgent(prefs.PreferredAgent) {
		return r.log(Decision{
			Mode:       core.ModeAuto,
			Agents:     []string{prefs.PreferredAgent},
			Rationale:  RationalePreference,
			Confidence: 0.4,
		}), nil
	}
	return r.log(Decision{
		Mode:       core.ModeAuto,
		Agents:     []string{r.opts.DefaultAgent},
		Rationale:  RationaleDefault,
		Confidence: 0.3,
	}), nil
}

// mentionedAgents collects agents the message names, @-prefixed mentions
// first, then bare name tokens.
func (r *Router) mentionedAgents(message string) []string {
	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if r.hasAgent(name) && !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	for _, m := range mentionPattern.FindAllStringSubmatch(message, -1) {
		add(m[2])
	}
	for _, token := range strings.FieldsFunc(message, func(c rune) bool {
		return !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '_' && c != '-'
	}) {
		add(token)
	}
	return names
}

func (r *Router) hasAgent(name string) bool {
	for _, a := range r.agents {
		if a.Name() == name {
			return true
		}
	}
	return false
}

func (r *Router) agentNames() []string {
	names := make([]string, 0, len(r.agents))
	for _, a := range r.agents {
		names = append(names, a.Name())
	}
	return names
}

// classify scores the message against both signal sets and returns the
// better-matching agent with a score in [0, 1].
func classify(message string) (string, float64) {
	research := matchCount(message, researchSignals)
	capture := matchCount(message, captureSignals)
	switch {
	case research == 0 && capture == 0:
		return "", 0
	case research > capture:
		return agent.NameArchivist, score(research, capture)
	case capture > research:
		return agent.NameScribe, score(capture, research)
	default:
		// Tied signals are ambiguous.
		return "", 0.3
	}
}

func matchCount(message string, signals []string) int {
	n := 0
	for _, s := range signals {
		if strings.Contains(message, s) {
			n++
		}
	}
	return n
}

func score(winner, loser int) float64 {
	s := 0.5 + 0.2*float64(winner-loser)
	if s > 1 {
		return 1
	}
	return s
}

// modelRoute asks the fallback model for a single agent name.
func (r *Router) modelRoute(ctx context.Context, message string) (string, error) {
	var b strings.Builder
	b.WriteString("Pick the best assistant for the user's message. Reply with exactly one name.\n\nAssistants:\n")
	for _, a := range r.agents {
		fmt.Fprintf(&b, "- %s: %s\n", a.Name(), a.Description())
	}
	req := model.Request{
		Instructions: b.String(),
		Messages:     []model.Message{{Role: model.RoleUser, Text: message}},
	}
	respCh, errCh := r.opts.Fallback.Generate(ctx, req)
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Partial {
				continue
			}
			return strings.ToLower(strings.TrimSpace(resp.Text)), nil
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return "", err
			}
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("routing model returned no response")
}

func (r *Router) log(d Decision) Decision {
	r.opts.Logger.Debug("router.decision",
		"mode", string(d.Mode),
		"agents", strings.Join(d.Agents, ","),
		"rationale", d.Rationale,
		"confidence", d.Confidence,
	)
	return d
}
