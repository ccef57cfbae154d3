// Package memory assembles the conversational context an agent sees:
// recent turns from the active conversation, semantically similar turns
// from other conversations, and the user's learned preferences.
package memory

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
)

// Bundle is the retrieved context for one request. Any field may be empty;
// absence of memory is a normal state, not an error.
type Bundle struct {
	History     []core.Turn       `json:"history"`
	Similar     []core.Turn       `json:"similar"`
	Preferences *core.Preferences `json:"preferences,omitempty"`
}

// Options configures a Service.
type Options struct {
	// RecentLimit caps the turns pulled from the active conversation.
	RecentLimit int

	// SimilarLimit caps cross-conversation similar turns.
	SimilarLimit int

	// SimilarWindow bounds how far back similarity search reaches.
	SimilarWindow time.Duration

	// Embedder is optional; without it similarity search falls back to
	// the store's keyword matching.
	Embedder core.Embedder

	Logger logging.Logger
}

// Service retrieves and persists conversational memory.
type Service struct {
	store core.PersistenceStore
	opts  Options
}

// New constructs a Service over the persistence store.
func New(store core.PersistenceStore, optFns ...func(o *Options)) *Service {
	opts := Options{
		RecentLimit:   20,
		SimilarLimit:  5,
		SimilarWindow: 90 * 24 * time.Hour,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{store: store, opts: opts}
}

// Retrieve fetches the three context sources in parallel. A failure in any
// one source fails the whole retrieval; empty results do not.
func (s *Service) Retrieve(ctx context.Context, userID, conversationID, query string) (*Bundle, error) {
	bundle := &Bundle{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if conversationID == "" {
			return nil
		}
		turns, err := s.store.RecentTurns(ctx, conversationID, s.opts.RecentLimit)
		if err != nil {
			return fmt.Errorf("recent turns: %w", err)
		}
		bundle.History = turns
		return nil
	})

	g.Go(func() error {
		q := core.SimilarTurnsQuery{
			UserID:                userID,
			Query:                 query,
			ExcludeConversationID: conversationID,
			Since:                 time.Now().UTC().Add(-s.opts.SimilarWindow),
			Limit:                 s.opts.SimilarLimit,
		}
		if s.opts.Embedder != nil {
			emb, err := s.opts.Embedder.Embed(ctx, query)
			if err != nil {
				// Degrade to keyword similarity rather than failing.
				s.opts.Logger.Warn("memory.embed.failed", "error", err)
			} else {
				q.Embedding = emb
			}
		}
		turns, err := s.store.SimilarTurns(ctx, q)
		if err != nil {
			return fmt.Errorf("similar turns: %w", err)
		}
		bundle.Similar = turns
		return nil
	})

	g.Go(func() error {
		prefs, err := s.store.Preferences(ctx, userID)
		if err != nil {
			return fmt.Errorf("preferences: %w", err)
		}
		if !prefs.IsZero() {
			bundle.Preferences = &prefs
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, core.Transient("memory.retrieve", err)
	}
	s.opts.Logger.Debug("memory.retrieved",
		"history", len(bundle.History),
		"similar", len(bundle.Similar),
		"has_preferences", bundle.Preferences != nil,
	)
	return bundle, nil
}

// Persist appends the user turn and the agent turn to the conversation,
// embedding both when an embedder is configured.
func (s *Service) Persist(ctx context.Context, userTurn, agentTurn *core.Turn) error {
	for _, t := range []*core.Turn{userTurn, agentTurn} {
		if t == nil {
			continue
		}
		if s.opts.Embedder != nil && t.Content != "" {
			emb, err := s.opts.Embedder.Embed(ctx, t.Content)
			if err != nil {
				s.opts.Logger.Warn("memory.embed.failed", "turn", t.ID, "error", err)
			} else {
				t.Embedding = emb
			}
		}
		if err := s.store.AppendTurn(ctx, *t); err != nil {
			return core.Transient("memory.persist", err)
		}
	}
	return nil
}

// preferenceMentionThreshold is how many explicit mentions of the same
// agent it takes before the router starts favoring it.
const preferenceMentionThreshold = 3

// LearnPreference tallies an explicitly chosen agent. Once the same agent
// has been mentioned preferenceMentionThreshold times it becomes the user's
// preferred agent, biasing future ambiguous routing toward it. Callers
// invoke it only for explicit choices (mentions), never inferred ones.
func (s *Service) LearnPreference(ctx context.Context, userID, agentName string) error {
	prefs, err := s.store.Preferences(ctx, userID)
	if err != nil {
		return core.Transient("memory.preferences", err)
	}
	if prefs.PreferredAgent == agentName {
		return nil
	}
	if prefs.MentionCounts == nil {
		prefs.MentionCounts = make(map[string]int)
	}
	prefs.MentionCounts[agentName]++
	if prefs.MentionCounts[agentName] >= preferenceMentionThreshold {
		prefs.PreferredAgent = agentName
		s.opts.Logger.Info("memory.preference.learned", "user_id", userID, "agent", agentName)
	}
	return s.store.SavePreferences(ctx, userID, prefs)
}
