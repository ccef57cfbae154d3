// Package sqlite implements the persistence store on SQLite. It needs no
// cgo; the modernc.org/sqlite driver is pure Go.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/internal/util"
	"github.com/scribemesh/scribemesh/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	title       TEXT NOT NULL,
	content     TEXT NOT NULL,
	markup      TEXT NOT NULL DEFAULT '',
	tags        TEXT NOT NULL DEFAULT '[]',
	source      TEXT NOT NULL DEFAULT '',
	is_deleted  INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_user ON records(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS turns (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	role            TEXT NOT NULL,
	content         TEXT NOT NULL,
	metadata        TEXT NOT NULL DEFAULT '{}',
	embedding       TEXT NOT NULL DEFAULT '[]',
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS conversations (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	participants TEXT NOT NULL DEFAULT '[]',
	linked_ids   TEXT NOT NULL DEFAULT '[]',
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
	user_id TEXT PRIMARY KEY,
	data    TEXT NOT NULL
);`

// Store is a SQLite-backed core.PersistenceStore.
type Store struct {
	db *sql.DB
}

var _ core.PersistenceStore = (*Store)(nil)

// Open opens (and migrates) the database at path. Use ":memory:" for an
// ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The driver serializes access; a single connection avoids table locks.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateRecord implements core.PersistenceStore. Conflicting ids are
// ignored so retried creates stay idempotent.
func (s *Store) CreateRecord(ctx context.Context, rec *core.ArchiveRecord) error {
	if rec.ID == "" {
		return &core.ValidationError{Field: "id", Message: "record id is required"}
	}
	tags, _ := json.Marshal(rec.Tags)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (id, user_id, title, content, markup, tags, source, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.UserID, rec.Title, rec.TextContent, rec.DerivedMarkup,
		string(tags), rec.Source, boolToInt(rec.IsDeleted), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return core.Transient("store.create_record", err)
	}
	return nil
}

// UpdateRecord implements core.PersistenceStore.
func (s *Store) UpdateRecord(ctx context.Context, rec *core.ArchiveRecord) error {
	tags, _ := json.Marshal(rec.Tags)
	res, err := s.db.ExecContext(ctx, `
		UPDATE records SET title = ?, content = ?, markup = ?, tags = ?, source = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?`,
		rec.Title, rec.TextContent, rec.DerivedMarkup, string(tags),
		rec.Source, boolToInt(rec.IsDeleted), rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return core.Transient("store.update_record", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("record %s: %w", rec.ID, store.ErrNotFound)
	}
	return nil
}

// GetRecord implements core.PersistenceStore.
func (s *Store) GetRecord(ctx context.Context, id string) (*core.ArchiveRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, content, markup, tags, source, is_deleted, created_at, updated_at
		FROM records WHERE id = ? AND is_deleted = 0`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, core.Transient("store.get_record", err)
	}
	return rec, nil
}

// ListRecords implements core.PersistenceStore.
func (s *Store) ListRecords(ctx context.Context, userID string) ([]core.ArchiveRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, content, markup, tags, source, is_deleted, created_at, updated_at
		FROM records WHERE user_id = ? AND is_deleted = 0
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, core.Transient("store.list_records", err)
	}
	defer rows.Close()

	var out []core.ArchiveRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, core.Transient("store.list_records", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// AppendTurn implements core.PersistenceStore. The insert nudges the
// timestamp past the conversation's latest turn when needed so ordering
// never regresses, and duplicate turn ids are ignored.
func (s *Store) AppendTurn(ctx context.Context, turn core.Turn) error {
	if turn.ConversationID == "" {
		return &core.ValidationError{Field: "conversation_id", Message: "turn conversation id is required"}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transient("store.append_turn", err)
	}
	defer tx.Rollback()

	// Selecting the column directly keeps its TIMESTAMP decltype, which the
	// driver needs to hand back a time.Time. An aggregate loses it.
	var latest time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT created_at FROM turns WHERE conversation_id = ? ORDER BY created_at DESC LIMIT 1`,
		turn.ConversationID).Scan(&latest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First turn of the conversation.
	case err != nil:
		return core.Transient("store.append_turn", err)
	default:
		if !turn.CreatedAt.After(latest) {
			turn.CreatedAt = latest.Add(time.Microsecond)
		}
	}

	metadata, _ := json.Marshal(turn.Metadata)
	embedding, _ := json.Marshal(turn.Embedding)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO turns (id, conversation_id, user_id, role, content, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		turn.ID, turn.ConversationID, turn.UserID, turn.Role, turn.Content,
		string(metadata), string(embedding), turn.CreatedAt,
	)
	if err != nil {
		return core.Transient("store.append_turn", err)
	}

	if err := s.touchConversation(ctx, tx, turn); err != nil {
		return core.Transient("store.append_turn", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Transient("store.append_turn", err)
	}
	return nil
}

func (s *Store) touchConversation(ctx context.Context, tx *sql.Tx, turn core.Turn) error {
	var userID, title, participants string
	err := tx.QueryRowContext(ctx,
		`SELECT user_id, title, participants FROM conversations WHERE id = ?`,
		turn.ConversationID).Scan(&userID, &title, &participants)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		participants = "[]"
	case err != nil:
		return err
	}

	if userID == "" {
		userID = turn.UserID
	}
	if title == "" && turn.IsUser() {
		title = core.DeriveTitle(turn.Content)
	}
	var names []string
	if err := json.Unmarshal([]byte(participants), &names); err != nil {
		names = nil
	}
	if !turn.IsUser() && !containsString(names, turn.Role) {
		names = append(names, turn.Role)
	}
	encoded, _ := json.Marshal(names)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, title, participants, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, title = excluded.title, participants = excluded.participants, updated_at = excluded.updated_at`,
		turn.ConversationID, userID, title, string(encoded), turn.CreatedAt, turn.CreatedAt,
	)
	return err
}

// RecentTurns implements core.PersistenceStore.
func (s *Store) RecentTurns(ctx context.Context, conversationID string, limit int) ([]core.Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, user_id, role, content, metadata, embedding, created_at FROM (
			SELECT * FROM turns WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, core.Transient("store.recent_turns", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// SimilarTurns implements core.PersistenceStore. Candidate filtering is done
// in SQL; scoring happens in process since SQLite has no vector type.
func (s *Store) SimilarTurns(ctx context.Context, q core.SimilarTurnsQuery) ([]core.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.conversation_id, t.user_id, t.role, t.content, t.metadata, t.embedding, t.created_at
		FROM turns t
		JOIN conversations c ON c.id = t.conversation_id
		WHERE t.conversation_id != ? AND (? = '' OR c.user_id = ?) AND t.created_at >= ?`,
		q.ExcludeConversationID, q.UserID, q.UserID, q.Since,
	)
	if err != nil {
		return nil, core.Transient("store.similar_turns", err)
	}
	defer rows.Close()

	candidates, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	type scored struct {
		turn  core.Turn
		score float64
	}
	var hits []scored
	for _, t := range candidates {
		var score float64
		if len(q.Embedding) > 0 && len(t.Embedding) > 0 {
			score = util.CosineSimilarity(q.Embedding, t.Embedding)
		} else {
			score = keywordOverlap(q.Query, t.Content)
		}
		if score > 0.1 {
			hits = append(hits, scored{turn: t, score: score})
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
func (s *Store) Conversation(ctx context.Context, id string) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, participants, linked_ids, created_at, updated_at
		FROM conversations WHERE id = ?`, id)

	var conv core.Conversation
	var participants, linked string
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &participants, &linked, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, core.Transient("store.conversation", err)
	}
	json.Unmarshal([]byte(participants), &conv.ParticipantAgents)
	json.Unmarshal([]byte(linked), &conv.LinkedRecordIDs)
	return &conv, nil
}

// LinkRecords implements core.PersistenceStore. The stored id list is a set
// union, so repeated links are no-ops.
func (s *Store) LinkRecords(ctx context.Context, conversationID string, recordIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transient("store.link_records", err)
	}
	defer tx.Rollback()

	var linked string
	err = tx.QueryRowContext(ctx,
		`SELECT linked_ids FROM conversations WHERE id = ?`, conversationID).Scan(&linked)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("conversation %s: %w", conversationID, store.ErrNotFound)
	}
	if err != nil {
		return core.Transient("store.link_records", err)
	}

	var ids []string
	json.Unmarshal([]byte(linked), &ids)
	for _, id := range recordIDs {
		if id != "" && !containsString(ids, id) {
			ids = append(ids, id)
		}
	}
	encoded, _ := json.Marshal(ids)
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET linked_ids = ? WHERE id = ?`, string(encoded), conversationID); err != nil {
		return core.Transient("store.link_records", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Transient("store.link_records", err)
	}
	return nil
}

// Preferences implements core.PersistenceStore.
func (s *Store) Preferences(ctx context.Context, userID string) (core.Preferences, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM preferences WHERE user_id = ?`, userID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Preferences{}, nil
	}
	if err != nil {
		return core.Preferences{}, core.Transient("store.preferences", err)
	}
	var prefs core.Preferences
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return core.Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences implements core.PersistenceStore.
func (s *Store) SavePreferences(ctx context.Context, userID string, p core.Preferences) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, data) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data`,
		userID, string(data),
	)
	if err != nil {
		return core.Transient("store.save_preferences", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*core.ArchiveRecord, error) {
	var rec core.ArchiveRecord
	var tags string
	var deleted int
	err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.TextContent, &rec.DerivedMarkup,
		&tags, &rec.Source, &deleted, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.IsDeleted = deleted != 0
	json.Unmarshal([]byte(tags), &rec.Tags)
	return &rec, nil
}

func scanTurns(rows *sql.Rows) ([]core.Turn, error) {
	var out []core.Turn
	for rows.Next() {
		var t core.Turn
		var metadata, embedding string
		err := rows.Scan(&t.ID, &t.ConversationID, &t.UserID, &t.Role, &t.Content, &metadata, &embedding, &t.CreatedAt)
		if err != nil {
			return nil, core.Transient("store.scan_turns", err)
		}
		json.Unmarshal([]byte(metadata), &t.Metadata)
		json.Unmarshal([]byte(embedding), &t.Embedding)
		out = append(out, t)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func keywordOverlap(query, content string) float64 {
	return store.KeywordOverlap(query, content)
}
