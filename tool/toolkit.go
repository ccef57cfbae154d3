package tool

import (
	"fmt"
	"strings"
	"time"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
)

// Canonical tool names. The message filter and workflow coordinator key off
// these when classifying record-worthiness and deriving clickable references.
const (
	NameSearchKnowledge     = "search_knowledge"
	NameSearchWeb           = "search_web"
	NameFetchRelatedRecords = "fetch_related_records"
	NameCreateRecord        = "create_record"
	NameUpdateRecord        = "update_record"
)

// SearchData is the structured payload of the search tools.
type SearchData struct {
	Query    string         `json:"query"`
	Snippets []core.Snippet `json:"snippets"`
}

// RecordData is the structured payload of the record tools.
type RecordData struct {
	RecordID string `json:"record_id"`
	Title    string `json:"title"`
	Updated  bool   `json:"updated,omitempty"`
}

// Toolkit builds the domain tool set over the external collaborators. Each
// agent variant is handed the subset matching its role.
type Toolkit struct {
	store  core.PersistenceStore
	search core.SearchService
	web    core.WebSearchService
	logger logging.Logger
}

// ToolkitOptions configures optional toolkit collaborators.
type ToolkitOptions struct {
	Web    core.WebSearchService
	Logger logging.Logger
}

// NewToolkit constructs the toolkit. Web search is optional; when absent the
// search_web tool reports unavailability as an ordinary failed result.
func NewToolkit(store core.PersistenceStore, search core.SearchService, optFns ...func(o *ToolkitOptions)) *Toolkit {
	opts := ToolkitOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Toolkit{store: store, search: search, web: opts.Web, logger: opts.Logger}
}

// SearchKnowledge returns the local knowledge search tool.
func (k *Toolkit) SearchKnowledge() Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "What to look for in the user's records"},
			"limit": map[string]any{"type": "integer", "description": "Maximum number of results (default 5)"},
		},
		"required": []string{"query"},
	}
	return NewFunctionTool(
		NameSearchKnowledge,
		"Search the user's archive records for relevant content",
		schema,
		func(tc *Context, args map[string]any) (any, error) {
			query := stringArg(args, "query")
			limit := intArg(args, "limit", 5)
			snippets, err := k.search.Search(tc.Context(), tc.UserID(), query, limit)
			if err != nil {
				return nil, fmt.Errorf("knowledge search failed: %w", err)
			}
			return SearchData{Query: query, Snippets: snippets}, nil
		},
		withQueryActionText("Searching your notes for %q"),
	)
}

// SearchWeb returns the web search tool.
func (k *Toolkit) SearchWeb() Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "What to look for on the web"},
		},
		"required": []string{"query"},
	}
	return NewFunctionTool(
		NameSearchWeb,
		"Search the public web for up-to-date information",
		schema,
		func(tc *Context, args map[string]any) (any, error) {
			if k.web == nil {
				return nil, fmt.Errorf("web search is not available")
			}
			query := stringArg(args, "query")
			snippets, err := k.web.Search(tc.Context(), query)
			if err != nil {
				return nil, fmt.Errorf("web search failed: %w", err)
			}
			return SearchData{Query: query, Snippets: snippets}, nil
		},
		withQueryActionText("Searching the web for %q"),
	)
}

// FetchRelatedRecords returns the cross-reference tool. It accepts either a
// record id (related to an existing record) or a free-text query.
func (k *Toolkit) FetchRelatedRecords() Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id": map[string]any{"type": "string", "description": "Find records related to this record"},
			"query":     map[string]any{"type": "string", "description": "Find records related to this text"},
			"limit":     map[string]any{"type": "integer", "description": "Maximum number of results (default 5)"},
		},
	}
	return NewFunctionTool(
		NameFetchRelatedRecords,
		"Fetch archive records related to a record or topic",
		schema,
		func(tc *Context, args map[string]any) (any, error) {
			query := stringArg(args, "query")
			if id := stringArg(args, "record_id"); id != "" {
				rec, err := k.store.GetRecord(tc.Context(), id)
				if err != nil {
					return nil, fmt.Errorf("record %s not found: %w", id, err)
				}
				query = rec.Title
			}
			if query == "" {
				return nil, fmt.Errorf("either record_id or query is required")
			}
			snippets, err := k.search.Search(tc.Context(), tc.UserID(), query, intArg(args, "limit", 5))
			if err != nil {
				return nil, fmt.Errorf("related record lookup failed: %w", err)
			}
			return SearchData{Query: query, Snippets: snippets}, nil
		},
		withQueryActionText("Fetching records related to %q"),
	)
}

// createRecordArgs declares the create_record arguments; the JSON schema is
// derived from the struct tags.
type createRecordArgs struct {
	Title   string   `json:"title" description:"Short title for the record"`
	Content string   `json:"content" description:"Full text content of the record"`
	Tags    []string `json:"tags,omitempty" description:"Optional topic tags"`
}

// CreateRecord returns the archive record creation tool. This is the only
// path that materializes a new ArchiveRecord.
func (k *Toolkit) CreateRecord() Tool {
	return NewFunctionToolFromStruct(
		NameCreateRecord,
		"Create a new archive record from conversation content",
		createRecordArgs{},
		func(tc *Context, args map[string]any) (any, error) {
			now := time.Now().UTC()
			rec := &core.ArchiveRecord{
				ID:          core.NewID(),
				UserID:      tc.UserID(),
				Title:       stringArg(args, "title"),
				TextContent: stringArg(args, "content"),
				Tags:        stringsArg(args, "tags"),
				CreatedAt:   now,
				UpdatedAt:   now,
				Source:      "conversation",
			}
			if err := k.store.CreateRecord(tc.Context(), rec); err != nil {
				return nil, fmt.Errorf("record creation failed: %w", err)
			}
			return RecordData{RecordID: rec.ID, Title: rec.Title}, nil
		},
		func(o *FunctionToolOptions) {
			o.ActionText = func(args map[string]any) string {
				return fmt.Sprintf("Creating record %q", stringArg(args, "title"))
			}
		},
	)
}

// UpdateRecord returns the archive record update tool.
func (k *Toolkit) UpdateRecord() Tool {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id": map[string]any{"type": "string", "description": "Identifier of the record to update"},
			"title":     map[string]any{"type": "string", "description": "Replacement title"},
			"content":   map[string]any{"type": "string", "description": "Replacement text content"},
			"tags":      map[string]any{"type": "array", "description": "Replacement topic tags"},
		},
		"required": []string{"record_id"},
	}
	return NewFunctionTool(
		NameUpdateRecord,
		"Update an existing archive record",
		schema,
		func(tc *Context, args map[string]any) (any, error) {
			id := stringArg(args, "record_id")
			rec, err := k.store.GetRecord(tc.Context(), id)
			if err != nil {
				return nil, fmt.Errorf("record %s not found: %w", id, err)
			}
			if title := stringArg(args, "title"); title != "" {
				rec.Title = title
			}
			if content := stringArg(args, "content"); content != "" {
				rec.TextContent = content
			}
			if tags := stringsArg(args, "tags"); tags != nil {
				rec.Tags = tags
			}
			rec.UpdatedAt = time.Now().UTC()
			if err := k.store.UpdateRecord(tc.Context(), rec); err != nil {
				return nil, fmt.Errorf("record update failed: %w", err)
			}
			return RecordData{RecordID: rec.ID, Title: rec.Title, Updated: true}, nil
		},
		func(o *FunctionToolOptions) {
			o.ActionText = func(args map[string]any) string {
				return fmt.Sprintf("Updating record %s", stringArg(args, "record_id"))
			}
		},
	)
}

// CaptureTools returns the tool subset for the capture/restitution role.
func (k *Toolkit) CaptureTools() []Tool {
	return []Tool{k.CreateRecord(), k.UpdateRecord(), k.FetchRelatedRecords()}
}

// ResearchTools returns the tool subset for the research/archive role.
func (k *Toolkit) ResearchTools() []Tool {
	return []Tool{k.SearchKnowledge(), k.SearchWeb(), k.FetchRelatedRecords()}
}

func withQueryActionText(format string) func(o *FunctionToolOptions) {
	return func(o *FunctionToolOptions) {
		o.ActionText = func(args map[string]any) string {
			return fmt.Sprintf(format, stringArg(args, "query"))
		}
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
