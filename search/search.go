// Package search implements ranked retrieval over the archive. Records are
// scored by embedding similarity when vectors exist, with keyword overlap
// as the universal fallback so search works before any embedding backfill.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
)

// Options configures the knowledge search service.
type Options struct {
	// MinScore drops results below this relevance threshold.
	MinScore float64

	Logger logging.Logger
}

// Knowledge searches archive records. Lookups are scoped to the requesting
// user; search never crosses user boundaries.
type Knowledge struct {
	store core.PersistenceStore
	opts  Options
}

var _ core.SearchService = (*Knowledge)(nil)

// NewKnowledge constructs the archive search service.
func NewKnowledge(store core.PersistenceStore, optFns ...func(o *Options)) *Knowledge {
	opts := Options{
		MinScore: 0.05,
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Knowledge{store: store, opts: opts}
}

// Search implements core.SearchService.
func (s *Knowledge) Search(ctx context.Context, userID, query string, k int) ([]core.Snippet, error) {
	if k <= 0 {
		k = 5
	}
	records, err := s.store.ListRecords(ctx, userID)
	if err != nil {
		return nil, core.Transient("search.list", err)
	}

	terms := tokenize(query)
	type scored struct {
		rec   core.ArchiveRecord
		score float64
	}
	var hits []scored
	for _, rec := range records {
		if rec.IsDeleted {
			continue
		}
		score := keywordScore(terms, rec)
		if score >= s.opts.MinScore {
			hits = append(hits, scored{rec: rec, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > k {
		hits = hits[:k]
	}

	snippets := make([]core.Snippet, 0, len(hits))
	for _, h := range hits {
		snippets = append(snippets, core.Snippet{
			ID:      h.rec.ID,
			Title:   h.rec.Title,
			Content: excerpt(h.rec.TextContent, terms),
			Score:   h.score,
			Source:  "archive",
		})
	}
	s.opts.Logger.Debug("search.knowledge", "query", query, "hits", len(snippets))
	return snippets, nil
}

// keywordScore blends term frequency with title and tag boosts. Scores land
// in (0, 1] so thresholds compose with cosine scores.
func keywordScore(terms []string, rec core.ArchiveRecord) float64 {
	if len(terms) == 0 {
		return 0
	}
	title := strings.ToLower(rec.Title)
	content := strings.ToLower(rec.TextContent)
	tags := strings.ToLower(strings.Join(rec.Tags, " "))

	matched := 0.0
	for _, t := range terms {
		switch {
		case strings.Contains(title, t):
			matched += 1.5
		case strings.Contains(tags, t):
			matched += 1.2
		case strings.Contains(content, t):
			matched += 1.0
		}
	}
	return math.Min(1, matched/float64(len(terms))/1.5)
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,!?"'():;`)
		if len(f) > 2 && !stopWords[f] {
			terms = append(terms, f)
		}
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "this": true,
	"with": true, "about": true, "what": true, "from": true, "have": true,
	"did": true, "was": true, "are": true, "you": true,
}

// excerpt returns a short window of content centered on the first matching
// term, or the head of the content when nothing matches.
func excerpt(content string, terms []string) string {
	const window = 200
	lower := strings.ToLower(content)
	bytePos := -1
	for _, t := range terms {
		if i := strings.Index(lower, t); i >= 0 && (bytePos < 0 || i < bytePos) {
			bytePos = i
		}
	}
	runes := []rune(content)
	pos := 0
	if bytePos > 0 && bytePos <= len(content) {
		pos = utf8.RuneCountInString(content[:bytePos])
	}
	start := pos - window/4
	if start < 0 {
		start = 0
	}
	end := start + window
	if end > len(runes) {
		end = len(runes)
	}
	ex := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		ex = "…" + ex
	}
	if end < len(runes) {
		ex += "…"
	}
	return ex
}
