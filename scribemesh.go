// Package scribemesh is a multi-agent conversational engine over a personal
// knowledge archive. Requests are routed to specialized agents (a capture
// scribe and a research archivist) that converse, consult memory, invoke
// tools and stream their activity as an ordered event sequence.
package scribemesh

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"

	"github.com/scribemesh/scribemesh/agent"
	"github.com/scribemesh/scribemesh/config"
	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/discussion"
	"github.com/scribemesh/scribemesh/filter"
	"github.com/scribemesh/scribemesh/logging"
	"github.com/scribemesh/scribemesh/memory"
	"github.com/scribemesh/scribemesh/model"
	anthropicmodel "github.com/scribemesh/scribemesh/model/anthropic"
	openaimodel "github.com/scribemesh/scribemesh/model/openai"
	"github.com/scribemesh/scribemesh/router"
	"github.com/scribemesh/scribemesh/search"
	"github.com/scribemesh/scribemesh/store"
	"github.com/scribemesh/scribemesh/store/sqlite"
	"github.com/scribemesh/scribemesh/tool"
	"github.com/scribemesh/scribemesh/workflow"
)

// Options overrides engine collaborators. Every field is optional; the
// zero value builds everything from the configuration.
type Options struct {
	// Model replaces the configured provider. Tests inject mocks here.
	Model model.Model

	// Store replaces the configured persistence backend.
	Store core.PersistenceStore

	// WebSearch enables the archivist's web reach.
	WebSearch core.WebSearchService

	// Transcription enables audio requests.
	Transcription core.TranscriptionService

	// Embedder enables semantic similarity in memory retrieval.
	Embedder core.Embedder

	Logger logging.Logger
}

// Engine is the assembled pipeline. It is safe for concurrent use.
type Engine struct {
	coordinator *workflow.Coordinator
	store       core.PersistenceStore
	logger      logging.Logger
	caps        config.Capabilities
	closers     []func() error
}

// New assembles an Engine from configuration.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.New(&logging.Config{
			Level:     logging.ParseLevel(cfg.Logging.Level),
			Format:    cfg.Logging.Format,
			AddSource: cfg.Logging.AddSource,
		})
	}

	eng := &Engine{logger: logger}

	st, err := eng.buildStore(cfg, opts)
	if err != nil {
		return nil, err
	}
	eng.store = st

	m, err := buildModel(cfg, opts, logger)
	if err != nil {
		return nil, err
	}

	knowledge := search.NewKnowledge(st, func(o *search.Options) { o.Logger = logger })
	var web core.WebSearchService = opts.WebSearch
	if web == nil && cfg.WebSearch.Endpoint != "" {
		web = search.NewWeb(cfg.WebSearch.Endpoint, func(o *search.WebOptions) {
			o.APIKey = cfg.WebSearch.APIKey
			o.Logger = logger
		})
	}

	kit := tool.NewToolkit(st, knowledge, func(o *tool.ToolkitOptions) {
		o.Web = web
		o.Logger = logger
	})

	agentOpts := func(o *agent.Options) {
		o.Logger = logger
		o.CostPerInputToken = cfg.Models.CostPerInputToken
		o.CostPerOutputToken = cfg.Models.CostPerOutputToken
	}
	scribe := agent.NewScribe(m, kit, agentOpts)
	archivist := agent.NewArchivist(m, kit, agentOpts)
	agents := []agent.Agent{scribe, archivist}

	r := router.New(agents, func(o *router.Options) {
		o.DefaultAgent = cfg.Router.DefaultAgent
		o.ConfidenceThreshold = cfg.Router.ConfidenceThreshold
		o.Logger = logger
		if cfg.Models.RouterFallback {
			o.Fallback = m
		}
	})

	flt := filter.New(func(o *filter.Options) { o.MaxLength = cfg.Filter.MaxLength })
	disc := discussion.New(agents, func(o *discussion.Options) {
		o.MaxTurns = cfg.Discussion.MaxTurns
		o.Timeout = cfg.Discussion.Timeout.Std()
		o.Logger = logger
		o.Interceptor = func(t discussion.Turn) (discussion.Turn, bool) {
			t.Content = flt.Clean(t.Content)
			return t, t.Content != ""
		}
	})

	mem := memory.New(st, func(o *memory.Options) {
		o.RecentLimit = cfg.Memory.RecentLimit
		o.SimilarLimit = cfg.Memory.SimilarLimit
		o.SimilarWindow = cfg.Memory.SimilarWindow.Std()
		o.Embedder = opts.Embedder
		o.Logger = logger
	})

	eng.coordinator = workflow.New(agents, r, disc, mem, st, func(o *workflow.Options) {
		o.Transcription = opts.Transcription
		o.Filter = flt
		o.StreamBuffer = cfg.Stream.BufferSize
		o.StreamKeepalive = cfg.Stream.KeepaliveInterval.Std()
		o.Logger = logger
	})

	eng.caps = config.Capabilities{
		WebSearch:     web != nil,
		Transcription: opts.Transcription != nil,
		Embeddings:    opts.Embedder != nil,
	}
	for _, c := range []struct {
		name string
		ok   bool
	}{
		{"web search", eng.caps.WebSearch},
		{"transcription", eng.caps.Transcription},
		{"embeddings", eng.caps.Embeddings},
	} {
		if !c.ok {
			logger.Warn("engine.capability.missing", "detail", eng.caps.CapabilityWarning(c.name))
		}
	}

	logger.Info("engine.ready",
		"provider", cfg.Models.Provider,
		"store", cfg.Store.Backend,
		"web_search", eng.caps.WebSearch,
		"transcription", eng.caps.Transcription,
	)
	return eng, nil
}

// Capabilities reports which optional collaborators this engine was built
// with. Callers can surface missing capabilities to users up front instead
// of discovering them through degraded results.
func (e *Engine) Capabilities() config.Capabilities { return e.caps }

// Process handles a request synchronously.
func (e *Engine) Process(ctx context.Context, req *core.Request) (*core.Result, error) {
	return e.coordinator.Process(ctx, req)
}

// ProcessStream handles a request while streaming ordered events. The
// returned channel closes after the terminal complete or error event.
func (e *Engine) ProcessStream(ctx context.Context, req *core.Request) (<-chan core.StreamEvent, error) {
	return e.coordinator.ProcessStream(ctx, req)
}

// Store exposes the persistence backend for direct archive access.
func (e *Engine) Store() core.PersistenceStore { return e.store }

// Close releases resources held by the engine's backends.
func (e *Engine) Close() error {
	var firstErr error
	for _, closeFn := range e.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) buildStore(cfg *config.Config, opts Options) (core.PersistenceStore, error) {
	if opts.Store != nil {
		return opts.Store, nil
	}
	switch cfg.Store.Backend {
	case "sqlite":
		st, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, st.Close)
		return st, nil
	case "", "memory":
		return store.NewInMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func buildModel(cfg *config.Config, opts Options, logger logging.Logger) (model.Model, error) {
	if opts.Model != nil {
		return opts.Model, nil
	}
	switch cfg.Models.Provider {
	case "openai":
		modelOpts := func(o *openaimodel.Options) {
			if cfg.Models.Name != "" {
				o.Model = cfg.Models.Name
			}
			o.Temperature = cfg.Models.Temperature
			if cfg.Models.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.Models.MaxTokens)
			}
			o.Logger = logger
		}
		if cfg.Models.APIKey != "" {
			client := openaisdk.NewClient(openaiopt.WithAPIKey(cfg.Models.APIKey))
			return openaimodel.NewModelFromClient(&client, modelOpts), nil
		}
		return openaimodel.NewModel(modelOpts), nil
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Models.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Models.Name)
			}
			o.Temperature = cfg.Models.Temperature
			if cfg.Models.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.Models.MaxTokens)
			}
			o.APIKey = cfg.Models.APIKey
			o.Logger = logger
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Models.Provider)
	}
}
