package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribemesh/scribemesh/core"
)

type memStore struct {
	records map[string]*core.ArchiveRecord
}

func newMemStore() *memStore {
	return &memStore{records: map[string]*core.ArchiveRecord{}}
}

func (s *memStore) CreateRecord(_ context.Context, rec *core.ArchiveRecord) error {
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *memStore) UpdateRecord(_ context.Context, rec *core.ArchiveRecord) error {
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *memStore) GetRecord(_ context.Context, id string) (*core.ArchiveRecord, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, assert.AnError
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) ListRecords(_ context.Context, userID string) ([]core.ArchiveRecord, error) {
	var out []core.ArchiveRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *memStore) AppendTurn(context.Context, core.Turn) error { return nil }
func (s *memStore) RecentTurns(context.Context, string, int) ([]core.Turn, error) {
	return nil, nil
}
func (s *memStore) SimilarTurns(context.Context, core.SimilarTurnsQuery) ([]core.Turn, error) {
	return nil, nil
}
func (s *memStore) Conversation(context.Context, string) (*core.Conversation, error) {
	return nil, assert.AnError
}
func (s *memStore) Preferences(context.Context, string) (core.Preferences, error) {
	return core.Preferences{}, nil
}
func (s *memStore) SavePreferences(context.Context, string, core.Preferences) error { return nil }
func (s *memStore) LinkRecords(context.Context, string, []string) error             { return nil }

type fixedSearch struct {
	snippets []core.Snippet
}

func (s *fixedSearch) Search(_ context.Context, _, _ string, _ int) ([]core.Snippet, error) {
	return s.snippets, nil
}

func testToolContext(rec Recorder) *Context {
	return NewContext(context.Background(), "scribe", func(o *ContextOptions) {
		o.UserID = "u1"
		o.ConversationID = "conv-1"
		o.Recorder = rec
	})
}

func TestCreateRecordTool(t *testing.T) {
	st := newMemStore()
	kit := NewToolkit(st, &fixedSearch{})

	result := kit.CreateRecord().Call(testToolContext(nil), map[string]any{
		"title":   "Meeting notes",
		"content": "The review moved to Thursday.",
		"tags":    []any{"meetings", "planning"},
	})

	require.True(t, result.Success, result.Error)
	data, ok := result.Data.(RecordData)
	require.True(t, ok)
	assert.NotEmpty(t, data.RecordID)
	assert.Equal(t, "Meeting notes", data.Title)

	stored := st.records[data.RecordID]
	require.NotNil(t, stored)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, []string{"meetings", "planning"}, stored.Tags)
	assert.Equal(t, "conversation", stored.Source)
}

func TestCreateRecordToolSchema(t *testing.T) {
	kit := NewToolkit(newMemStore(), &fixedSearch{})

	params := kit.CreateRecord().Parameters()
	props, ok := params["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "string", props["title"].(map[string]any)["type"])
	assert.Equal(t, "array", props["tags"].(map[string]any)["type"])
	assert.ElementsMatch(t, []string{"title", "content"}, params["required"])
}

func TestCreateRecordToolRequiresTitle(t *testing.T) {
	kit := NewToolkit(newMemStore(), &fixedSearch{})

	result := kit.CreateRecord().Call(testToolContext(nil), map[string]any{
		"content": "orphan content",
	})
	assert.False(t, result.Success)
}

func TestUpdateRecordTool(t *testing.T) {
	st := newMemStore()
	st.records["r1"] = &core.ArchiveRecord{ID: "r1", UserID: "u1", Title: "Old", TextContent: "old text"}
	kit := NewToolkit(st, &fixedSearch{})

	result := kit.UpdateRecord().Call(testToolContext(nil), map[string]any{
		"record_id": "r1",
		"content":   "new text",
	})

	require.True(t, result.Success, result.Error)
	data := result.Data.(RecordData)
	assert.True(t, data.Updated)
	assert.Equal(t, "new text", st.records["r1"].TextContent)
	assert.Equal(t, "Old", st.records["r1"].Title, "unspecified fields stay untouched")
}

func TestUpdateRecordToolUnknownID(t *testing.T) {
	kit := NewToolkit(newMemStore(), &fixedSearch{})

	result := kit.UpdateRecord().Call(testToolContext(nil), map[string]any{
		"record_id": "missing",
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "missing")
}

func TestSearchKnowledgeTool(t *testing.T) {
	kit := NewToolkit(newMemStore(), &fixedSearch{snippets: []core.Snippet{
		{ID: "r1", Title: "Henderson kickoff", Score: 0.9, Source: "archive"},
	}})

	result := kit.SearchKnowledge().Call(testToolContext(nil), map[string]any{
		"query": "henderson",
	})

	require.True(t, result.Success, result.Error)
	data := result.Data.(SearchData)
	assert.Equal(t, "henderson", data.Query)
	require.Len(t, data.Snippets, 1)
	assert.Equal(t, "r1", data.Snippets[0].ID)
}

func TestSearchWebToolUnavailable(t *testing.T) {
	kit := NewToolkit(newMemStore(), &fixedSearch{})

	result := kit.SearchWeb().Call(testToolContext(nil), map[string]any{
		"query": "anything",
	})
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "not available")
}

func TestFetchRelatedRecordsByID(t *testing.T) {
	st := newMemStore()
	st.records["r1"] = &core.ArchiveRecord{ID: "r1", UserID: "u1", Title: "Henderson kickoff"}
	kit := NewToolkit(st, &fixedSearch{snippets: []core.Snippet{
		{ID: "r2", Title: "Henderson budget", Source: "archive"},
	}})

	result := kit.FetchRelatedRecords().Call(testToolContext(nil), map[string]any{
		"record_id": "r1",
	})

	require.True(t, result.Success, result.Error)
	data := result.Data.(SearchData)
	assert.Equal(t, "Henderson kickoff", data.Query, "related lookup pivots on the record title")
}

func TestFetchRelatedRecordsNeedsInput(t *testing.T) {
	kit := NewToolkit(newMemStore(), &fixedSearch{})

	result := kit.FetchRelatedRecords().Call(testToolContext(nil), map[string]any{})
	assert.False(t, result.Success)
}
