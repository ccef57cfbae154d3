package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RoleUser is the role recorded on turns authored by the end user. Agent
// authored turns carry the agent name as their role.
const RoleUser = "user"

// ClickableObject is a user-facing reference attached to a turn or result,
// typically pointing at an archive record surfaced during the exchange.
type ClickableObject struct {
	Type  string `json:"type"` // "record"
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// TurnMetadata carries per-turn observability data. It is written once when
// the turn is persisted and never mutated afterwards.
type TurnMetadata struct {
	Tokens           int               `json:"tokens,omitempty"`
	Cost             float64           `json:"cost,omitempty"`
	ProcessingTime   time.Duration     `json:"processing_time,omitempty"`
	ClickableObjects []ClickableObject `json:"clickable_objects,omitempty"`
	ToolTrace        []ToolInvocation  `json:"tool_trace,omitempty"`
}

// Turn is a single persisted message in a conversation. Turns are immutable
// once persisted; stores must reject mutation of existing turns. Within a
// conversation, CreatedAt is monotonically increasing.
type Turn struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversation_id"`
	UserID         string       `json:"user_id,omitempty"`
	Role           string       `json:"role"` // "user" or an agent name
	Content        string       `json:"content"`
	CreatedAt      time.Time    `json:"created_at"`
	Metadata       TurnMetadata `json:"metadata"`

	// Embedding optionally holds a semantic vector attached at persist time
	// for future similarity lookups. Not part of the wire representation.
	Embedding []float64 `json:"-"`
}

// NewTurn constructs a turn with a fresh ID and UTC timestamp.
func NewTurn(conversationID, role, content string) Turn {
	return Turn{
		ID:             NewID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
}

// IsUser reports whether the turn was authored by the end user.
func (t Turn) IsUser() bool { return t.Role == RoleUser }

// Conversation groups turns under a user. UpdatedAt is bumped on every
// appended turn; LinkedRecordIDs accumulates records touched by tools during
// the conversation.
type Conversation struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Title             string    `json:"title"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	ParticipantAgents []string  `json:"participant_agents,omitempty"`
	LinkedRecordIDs   []string  `json:"linked_record_ids,omitempty"`
}

// ArchiveRecord is a durable, user-visible knowledge artifact distinct from
// raw conversation history. Records are created or updated only by the
// create/update record tools, never implicitly from conversation flow.
type ArchiveRecord struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	TextContent   string    `json:"text_content"`
	DerivedMarkup string    `json:"derived_markup,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Source        string    `json:"source,omitempty"`
	IsDeleted     bool      `json:"is_deleted,omitempty"`
}

// Preferences holds stored per-user settings consulted before execution.
type Preferences struct {
	PreferredAgent   string   `json:"preferred_agent,omitempty"`
	TopicsOfInterest []string `json:"topics_of_interest,omitempty"`

	// MentionCounts tallies explicit @mentions per agent. A preference
	// settles only after repeated explicit choices.
	MentionCounts map[string]int `json:"mention_counts,omitempty"`
}

// IsZero reports whether no preference has been learned yet.
func (p Preferences) IsZero() bool {
	return p.PreferredAgent == "" && len(p.TopicsOfInterest) == 0
}

// NewID generates a new unique identifier for turns, records and correlation
// tokens.
func NewID() string { return uuid.NewString() }

// DeriveTitle produces a conversation title from its first user message.
func DeriveTitle(message string) string {
	const maxRunes = 60
	message = strings.TrimSpace(message)
	runes := []rune(message)
	if len(runes) <= maxRunes {
		return message
	}
	return string(runes[:maxRunes-1]) + "…"
}
