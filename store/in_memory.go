// Package store provides persistence backends for turns, conversations,
// archive records and preferences. The in-memory implementation backs tests
// and single-process deployments; store/sqlite adds a durable backend.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/internal/util"
)

// InMemory is a thread-safe, process-local PersistenceStore. Writes are
// idempotent by entity id and turn timestamps are kept monotonic per
// conversation.
type InMemory struct {
	mu            sync.RWMutex
	records       map[string]*core.ArchiveRecord
	turns         map[string][]core.Turn // conversation id -> ordered turns
	turnIDs       map[string]bool
	conversations map[string]*core.Conversation
	preferences   map[string]core.Preferences
}

var _ core.PersistenceStore = (*InMemory)(nil)

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		records:       map[string]*core.ArchiveRecord{},
		turns:         map[string][]core.Turn{},
		turnIDs:       map[string]bool{},
		conversations: map[string]*core.Conversation{},
		preferences:   map[string]core.Preferences{},
	}
}

// CreateRecord implements core.PersistenceStore. Creating an id that already
// exists is a no-op so retried requests do not duplicate records.
func (s *InMemory) CreateRecord(_ context.Context, rec *core.ArchiveRecord) error {
	if rec.ID == "" {
		return &core.ValidationError{Field: "id", Message: "record id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return nil
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// UpdateRecord implements core.PersistenceStore.
func (s *InMemory) UpdateRecord(_ context.Context, rec *core.ArchiveRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		return fmt.Errorf("record %s: %w", rec.ID, ErrNotFound)
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// GetRecord implements core.PersistenceStore.
func (s *InMemory) GetRecord(_ context.Context, id string) (*core.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, exists := s.records[id]
	if !exists || rec.IsDeleted {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// ListRecords implements core.PersistenceStore. Results are newest first.
func (s *InMemory) ListRecords(_ context.Context, userID string) ([]core.ArchiveRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.ArchiveRecord
	for _, rec := range s.records {
		if rec.UserID == userID && !rec.IsDeleted {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// AppendTurn implements core.PersistenceStore. Appending a turn id that was
// already appended is a no-op. Timestamps are nudged forward when needed so
// ordering within a conversation never regresses.
func (s *InMemory) AppendTurn(_ context.Context, turn core.Turn) error {
	if turn.ConversationID == "" {
		return &core.ValidationError{Field: "conversation_id", Message: "turn conversation id is required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnIDs[turn.ID] {
		return nil
	}
	existing := s.turns[turn.ConversationID]
	if n := len(existing); n > 0 && !turn.CreatedAt.After(existing[n-1].CreatedAt) {
		turn.CreatedAt = existing[n-1].CreatedAt.Add(time.Microsecond)
	}
	s.turns[turn.ConversationID] = append(existing, turn)
	s.turnIDs[turn.ID] = true

	conv, exists := s.conversations[turn.ConversationID]
	if !exists {
		conv = &core.Conversation{
			ID:        turn.ConversationID,
			UserID:    turn.UserID,
			CreatedAt: turn.CreatedAt,
		}
		s.conversations[turn.ConversationID] = conv
	}
	if conv.UserID == "" {
		conv.UserID = turn.UserID
	}
	conv.UpdatedAt = turn.CreatedAt
	if conv.Title == "" && turn.IsUser() {
		conv.Title = core.DeriveTitle(turn.Content)
	}
	if !turn.IsUser() && !containsString(conv.ParticipantAgents, turn.Role) {
		conv.ParticipantAgents = append(conv.ParticipantAgents, turn.Role)
	}
	return nil
}

// RecentTurns implements core.PersistenceStore. The returned slice is the
// last limit turns in chronological order.
func (s *InMemory) RecentTurns(_ context.Context, conversationID string, limit int) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.turns[conversationID]
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]core.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// SimilarTurns implements core.PersistenceStore. Embedding similarity is
// used when both the query and a candidate carry vectors; keyword overlap
// covers everything else.
func (s *InMemory) SimilarTurns(_ context.Context, q core.SimilarTurnsQuery) ([]core.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		turn  core.Turn
		score float64
	}
	var hits []scored
	for convID, turns := range s.turns {
		if convID == q.ExcludeConversationID {
			continue
		}
		// Context never crosses user boundaries.
		if q.UserID != "" {
			if conv := s.conversations[convID]; conv == nil || conv.UserID != q.UserID {
				continue
			}
		}
		for _, t := range turns {
			if !q.Since.IsZero() && t.CreatedAt.Before(q.Since) {
				continue
			}
			score := similarity(q, t)
			if score > 0.1 {
				hits = append(hits, scored{turn: t, score: score})
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	limit := q.Limit
	if limit <= 0 {
		limit = 5
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]core.Turn, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.turn)
	}
	return out, nil
}

// Conversation implements core.PersistenceStore.
func (s *InMemory) Conversation(_ context.Context, id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, exists := s.conversations[id]
	if !exists {
		return nil, fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	cp := *conv
	return &cp, nil
}

// LinkRecords implements core.PersistenceStore. Linking is a set union, so
// repeated links of the same record are no-ops.
func (s *InMemory) LinkRecords(_ context.Context, conversationID string, recordIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, exists := s.conversations[conversationID]
	if !exists {
		return fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	for _, id := range recordIDs {
		if id != "" && !containsString(conv.LinkedRecordIDs, id) {
			conv.LinkedRecordIDs = append(conv.LinkedRecordIDs, id)
		}
	}
	return nil
}

// Preferences implements core.PersistenceStore. Unknown users get the zero
// value, not an error.
func (s *InMemory) Preferences(_ context.Context, userID string) (core.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preferences[userID], nil
}

// SavePreferences implements core.PersistenceStore.
func (s *InMemory) SavePreferences(_ context.Context, userID string, p core.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferences[userID] = p
	return nil
}

func similarity(q core.SimilarTurnsQuery, t core.Turn) float64 {
	if len(q.Embedding) > 0 && len(t.Embedding) > 0 {
		return util.CosineSimilarity(q.Embedding, t.Embedding)
	}
	return KeywordOverlap(q.Query, t.Content)
}

// KeywordOverlap is the fallback similarity score used when either side of
// a comparison lacks an embedding: the fraction of query words present in
// the content.
func KeywordOverlap(query, content string) float64 {
	qWords := wordSet(query)
	cWords := wordSet(content)
	if len(qWords) == 0 || len(cWords) == 0 {
		return 0
	}
	matched := 0
	for w := range qWords {
		if cWords[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(qWords))
}

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `.,!?"'():;`)
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
