// Package workflow runs the request pipeline: intake, optional
// transcription, routing, context retrieval, agent execution, persistence
// and finalization. Only intake failures abort a request; every later stage
// degrades to an apologetic or partial result with a warning.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scribemesh/scribemesh/agent"
	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/discussion"
	"github.com/scribemesh/scribemesh/filter"
	"github.com/scribemesh/scribemesh/logging"
	"github.com/scribemesh/scribemesh/memory"
	"github.com/scribemesh/scribemesh/router"
	"github.com/scribemesh/scribemesh/stream"
	"github.com/scribemesh/scribemesh/tool"
)

// Options configures a Coordinator.
type Options struct {
	// Transcription is optional; audio requests fail intake without it.
	Transcription core.TranscriptionService

	// Filter cleans agent output before it reaches the user.
	Filter *filter.Filter

	// StreamBuffer and StreamKeepalive tune the per-request publisher.
	// Zero values fall back to the publisher defaults.
	StreamBuffer    int
	StreamKeepalive time.Duration

	Logger logging.Logger
}

// Coordinator owns the request pipeline.
type Coordinator struct {
	agents     map[string]agent.Agent
	router     *router.Router
	discussion *discussion.Coordinator
	memory     *memory.Service
	store      core.PersistenceStore
	opts       Options
}

// New assembles the pipeline. All agents must have distinct names.
func New(
	agents []agent.Agent,
	r *router.Router,
	d *discussion.Coordinator,
	mem *memory.Service,
	store core.PersistenceStore,
	optFns ...func(o *Options),
) *Coordinator {
	opts := Options{
		Filter: filter.New(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	byName := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	return &Coordinator{
		agents:     byName,
		router:     r,
		discussion: d,
		memory:     mem,
		store:      store,
		opts:       opts,
	}
}

// Process runs the pipeline synchronously and returns the final result.
func (c *Coordinator) Process(ctx context.Context, req *core.Request) (*core.Result, error) {
	state := NewState(req)
	logger := logging.WithRequest(c.opts.Logger, state.ConversationID, state.RequestID)

	result, err := c.run(ctx, req, state, logger)
	if err != nil {
		logger.Error("workflow.failed", "error", err)
		return nil, err
	}
	return result, nil
}

// ProcessStream runs the pipeline while publishing ordered events to the
// returned channel. Processing continues even if the consumer goes away;
// the publisher drops undeliverable events and the pipeline still persists
// its outcome.
func (c *Coordinator) ProcessStream(ctx context.Context, req *core.Request) (<-chan core.StreamEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	state := NewState(req)
	logger := logging.WithRequest(c.opts.Logger, state.ConversationID, state.RequestID)

	pub := stream.NewPublisher(ctx, func(o *stream.Options) {
		o.Logger = logger
		if c.opts.StreamBuffer > 0 {
			o.BufferSize = c.opts.StreamBuffer
		}
		if c.opts.StreamKeepalive > 0 {
			o.KeepaliveInterval = c.opts.StreamKeepalive
		}
	})
	pub.Start(state.ConversationID)

	go func() {
		// Detach from client cancellation: a dropped consumer must not
		// abort persistence of work already under way.
		runCtx := stream.WithSink(context.WithoutCancel(ctx), pub)
		result, err := c.run(runCtx, req, state, logger)
		if err != nil {
			logger.Error("workflow.failed", "error", err)
			pub.Fail(safeErrorMessage(err))
			return
		}
		pub.Complete(result)
	}()
	return pub.Events(), nil
}

// run executes the pipeline stages in order.
func (c *Coordinator) run(ctx context.Context, req *core.Request, state *State, logger logging.Logger) (*core.Result, error) {
	// Intake.
	if err := req.Validate(); err != nil {
		return nil, err
	}
	message := req.Message

	// Transcription.
	if message == "" && len(req.Audio) > 0 {
		if c.opts.Transcription == nil {
			return nil, &core.ValidationError{Field: "audio", Message: "audio input requires a transcription service"}
		}
		stream.Emit(ctx, core.NewProcessingEvent("transcribing"))
		text, err := c.transcribe(ctx, req.Audio)
		if err != nil {
			logger.Warn("workflow.transcribe.degraded", "error", err)
			state.Warn("the audio could not be transcribed")
			state.Error(err.Error())
			name := c.anyAgent()
			response := "I'm sorry, I couldn't make out that audio. Could you try again, or type it out?"
			stream.Emit(ctx, core.NewAgentMessageEvent(name, response))
			return c.finalize(state, router.Decision{}, "", response, []string{name}), nil
		}
		message = text
		logger.Debug("workflow.transcribed", "chars", len(text))
	}

	// Routing needs preferences; fetch the full context bundle first so
	// routing and execution share one retrieval.
	stream.Emit(ctx, core.NewProcessingEvent("retrieving_context"))
	bundle := c.retrieve(ctx, state, message, logger)
	c.attachContextRecords(ctx, state, req.ContextIDs, bundle, logger)

	// Routing.
	decision, err := c.router.Route(ctx, &core.Request{
		Message: message,
		Mode:    req.Mode,
		UserID:  req.UserID,
	}, bundle.Preferences)
	if err != nil {
		return nil, fmt.Errorf("routing failed: %w", err)
	}

	// Execution.
	ac := &agent.Context{
		UserID:         state.UserID,
		ConversationID: state.ConversationID,
		History:        bundle.History,
		Similar:        bundle.Similar,
		Preferences:    bundle.Preferences,
		Recorder:       state,
		Logger:         logger,
	}
	response, agentsInvolved, err := c.execute(ctx, decision, ac, message, state)
	if err != nil {
		var execErr *core.AgentExecutionError
		if !errors.As(err, &execErr) {
			return nil, err
		}
		// The agent (or discussion) blew up. The user still gets a reply
		// and the exchange is kept so they can retry in context.
		logger.Error("workflow.execute.degraded", "agent", execErr.Agent, "error", err)
		state.Warn("the agent could not complete this request")
		state.Error(execErr.Error())
		agentsInvolved = []string{execErr.Agent}
		response = "I'm sorry, something went wrong while working on that. Please try again."
		stream.Emit(ctx, core.NewAgentMessageEvent(execErr.Agent, response))
	}

	// Persistence.
	c.persist(ctx, state, decision, message, response, agentsInvolved, logger)

	// Finalization.
	return c.finalize(state, decision, message, response, agentsInvolved), nil
}

func (c *Coordinator) transcribe(ctx context.Context, audio []byte) (string, error) {
	var text string
	err := core.RetryOnce(ctx, func(ctx context.Context) error {
		var err error
		text, err = c.opts.Transcription.Transcribe(ctx, audio)
		return err
	})
	return text, err
}

// retrieve fetches the memory bundle. Retrieval failure degrades to an
// empty context rather than aborting the request.
func (c *Coordinator) retrieve(ctx context.Context, state *State, message string, logger logging.Logger) *memory.Bundle {
	var bundle *memory.Bundle
	err := core.RetryOnce(ctx, func(ctx context.Context) error {
		var err error
		bundle, err = c.memory.Retrieve(ctx, state.UserID, state.ConversationID, message)
		return err
	})
	if err != nil {
		logger.Warn("workflow.retrieve.degraded", "error", err)
		state.Warn("context retrieval failed; answering without conversation history")
		state.Error(err.Error())
		return &memory.Bundle{}
	}
	return bundle
}

// attachContextRecords loads records the user explicitly attached to the
// request and folds them into the context bundle. A missing record is a
// warning, not a failure.
func (c *Coordinator) attachContextRecords(ctx context.Context, state *State, ids []string, bundle *memory.Bundle, logger logging.Logger) {
	for _, id := range ids {
		rec, err := c.store.GetRecord(ctx, id)
		if err != nil {
			logger.Warn("workflow.context_record.missing", "record", id, "error", err)
			state.Warn(fmt.Sprintf("attached record %s could not be loaded", id))
			continue
		}
		bundle.Similar = append(bundle.Similar, core.Turn{
			ID:      rec.ID,
			Role:    core.RoleUser,
			Content: fmt.Sprintf("%s: %s", rec.Title, rec.TextContent),
		})
	}
}

func (c *Coordinator) execute(
	ctx context.Context,
	decision router.Decision,
	ac *agent.Context,
	message string,
	state *State,
) (string, []string, error) {
	if decision.Mode == core.ModeDiscussion && len(decision.Agents) > 1 {
		stream.Emit(ctx, core.NewProcessingEvent("discussing"))
		res, err := c.discussion.Run(ctx, ac, message)
		if err != nil {
			return "", nil, err
		}
		state.AddUsage(res.Usage, res.Cost)
		if res.Final == "" {
			return "", nil, &core.AgentExecutionError{
				Agent: "discussion",
				Err:   fmt.Errorf("no agent produced a substantive answer"),
			}
		}
		return c.opts.Filter.Clean(res.Final), c.discussion.Participants(), nil
	}

	name := decision.Primary()
	a, exists := c.agents[name]
	if !exists {
		return "", nil, fmt.Errorf("routed to unknown agent %q", name)
	}
	stream.Emit(ctx, core.NewProcessingEvent("thinking"))
	out, err := a.Execute(ctx, ac, message)
	if err != nil {
		return "", nil, err
	}
	state.AddUsage(out.Usage, out.Cost)

	// Internal coordination markers never leave the pipeline: the answer is
	// cleaned before it is streamed, persisted or returned.
	cleaned := c.opts.Filter.Clean(out.Text)
	stream.Emit(ctx, core.NewAgentMessageEvent(name, cleaned))
	return cleaned, []string{name}, nil
}

// persist writes the exchange. Persistence failure degrades the result; the
// user still gets the response they already earned.
func (c *Coordinator) persist(
	ctx context.Context,
	state *State,
	decision router.Decision,
	message, response string,
	agentsInvolved []string,
	logger logging.Logger,
) {
	userTurn := core.NewTurn(state.ConversationID, core.RoleUser, message)
	agentTurn := core.NewTurn(state.ConversationID, agentsInvolved[0], response)
	userTurn.UserID = state.UserID
	agentTurn.UserID = state.UserID
	usage, cost := state.Usage()
	agentTurn.Metadata = core.TurnMetadata{
		Tokens:         usage.TotalTokens,
		Cost:           cost,
		ProcessingTime: time.Since(state.StartedAt),
		ToolTrace:      state.Invocations(),
	}

	err := core.RetryOnce(ctx, func(ctx context.Context) error {
		return c.memory.Persist(ctx, &userTurn, &agentTurn)
	})
	if err != nil {
		logger.Warn("workflow.persist.degraded", "error", err)
		state.Warn("this exchange could not be saved to history")
		state.Error(err.Error())
	}

	// Records touched during the exchange stay discoverable from the
	// conversation.
	if ids := recordIDs(state.Invocations()); len(ids) > 0 {
		if err := c.store.LinkRecords(ctx, state.ConversationID, ids); err != nil {
			logger.Warn("workflow.link_records.failed", "error", err)
		}
	}

	// Only explicit choices teach preferences.
	if decision.Rationale == router.RationaleMention && len(agentsInvolved) == 1 {
		if err := c.memory.LearnPreference(ctx, state.UserID, agentsInvolved[0]); err != nil {
			logger.Warn("workflow.preference.failed", "error", err)
		}
	}
}

func (c *Coordinator) finalize(
	state *State,
	decision router.Decision,
	message, response string,
	agentsInvolved []string,
) *core.Result {
	trace := state.Invocations()
	usage, cost := state.Usage()

	result := &core.Result{
		Response:         response,
		AgentUsed:        agentsInvolved[0],
		AgentsInvolved:   agentsInvolved,
		ConversationID:   state.ConversationID,
		ProcessingTimeMS: time.Since(state.StartedAt).Milliseconds(),
		TokensUsed:       usage.TotalTokens,
		Cost:             cost,
		Errors:           state.Errors(),
		Warnings:         state.Warnings(),
	}

	if worthy, ids := filter.RecordWorthy(trace, message); worthy && len(ids) > 0 {
		result.RecordID = ids[0]
	}
	result.ClickableObjects = clickables(trace)
	return result
}

// anyAgent picks the agent a pipeline-level apology is attributed to.
func (c *Coordinator) anyAgent() string {
	if _, ok := c.agents[agent.NameScribe]; ok {
		return agent.NameScribe
	}
	for name := range c.agents {
		return name
	}
	return "assistant"
}

// safeErrorMessage maps an internal error to the text published on the
// stream. Validation problems are the user's to fix and pass through;
// anything else stays generic so internals never leak.
func safeErrorMessage(err error) string {
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	return "request processing failed"
}

// recordIDs collects the ids of records created or updated during the
// exchange, in invocation order.
func recordIDs(trace []core.ToolInvocation) []string {
	var ids []string
	seen := map[string]bool{}
	for _, inv := range trace {
		if inv.Status != core.StatusCompleted {
			continue
		}
		if data, ok := inv.Result.(tool.RecordData); ok && data.RecordID != "" && !seen[data.RecordID] {
			ids = append(ids, data.RecordID)
			seen[data.RecordID] = true
		}
	}
	return ids
}

// clickables derives the UI references from completed record and search
// invocations.
func clickables(trace []core.ToolInvocation) []core.ClickableObject {
	var out []core.ClickableObject
	seen := map[string]bool{}
	add := func(id, title string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, core.ClickableObject{Type: "record", ID: id, Title: title})
	}
	for _, inv := range trace {
		if inv.Status != core.StatusCompleted {
			continue
		}
		switch data := inv.Result.(type) {
		case tool.RecordData:
			add(data.RecordID, data.Title)
		case tool.SearchData:
			for _, s := range data.Snippets {
				if s.Source == "archive" {
					add(s.ID, s.Title)
				}
			}
		}
	}
	return out
}
