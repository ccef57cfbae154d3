package core

import (
	"context"
	"time"
)

// Snippet is a ranked unit of retrieved content returned by search services.
type Snippet struct {
	ID      string  `json:"id,omitempty"`
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source,omitempty"` // "archive", "web" or "conversation"
	URL     string  `json:"url,omitempty"`
}

// SimilarTurnsQuery scopes a semantic lookup of past turns. The current
// conversation is always excluded so retrieval does not echo the ongoing
// exchange back at the agent.
type SimilarTurnsQuery struct {
	UserID                string
	Query                 string
	Embedding             []float64 // optional; stores fall back to keyword overlap
	ExcludeConversationID string
	Since                 time.Time // recency window lower bound; zero means unbounded
	Limit                 int
}

// PersistenceStore is the durable backend for turns, conversations, archive
// records and user preferences. Implementations must make AppendTurn and the
// record writes independently idempotent so no cross-request locking is
// needed, and must keep turn timestamps monotonically increasing within a
// conversation.
type PersistenceStore interface {
	CreateRecord(ctx context.Context, rec *ArchiveRecord) error
	UpdateRecord(ctx context.Context, rec *ArchiveRecord) error
	GetRecord(ctx context.Context, id string) (*ArchiveRecord, error)
	ListRecords(ctx context.Context, userID string) ([]ArchiveRecord, error)

	AppendTurn(ctx context.Context, turn Turn) error
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]Turn, error)
	SimilarTurns(ctx context.Context, q SimilarTurnsQuery) ([]Turn, error)
	Conversation(ctx context.Context, id string) (*Conversation, error)
	LinkRecords(ctx context.Context, conversationID string, recordIDs []string) error

	Preferences(ctx context.Context, userID string) (Preferences, error)
	SavePreferences(ctx context.Context, userID string, p Preferences) error
}

// SearchService performs ranked retrieval over one user's knowledge base.
type SearchService interface {
	Search(ctx context.Context, userID, query string, k int) ([]Snippet, error)
}

// WebSearchService performs ranked retrieval against the public web.
type WebSearchService interface {
	Search(ctx context.Context, query string) ([]Snippet, error)
}

// TranscriptionService converts audio input to text. How transcription is
// computed is out of scope for this module.
type TranscriptionService interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Embedder computes semantic vectors for similarity lookups. Optional; when
// absent, stores degrade to keyword matching.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
