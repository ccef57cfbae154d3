// Package filter sanitizes agent output before it reaches the user and
// classifies conversation content for record-worthiness. Clean is
// idempotent: running an already-filtered message through again is a no-op.
package filter

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/discussion"
	"github.com/scribemesh/scribemesh/tool"
)

// Options configures a Filter.
type Options struct {
	// MaxLength truncates responses longer than this many runes. Zero
	// disables truncation.
	MaxLength int
}

// Filter cleans agent responses.
type Filter struct {
	opts Options
}

// internalMarkers are coordination artifacts that must never surface.
var internalMarkers = []string{
	discussion.DonePhrase,
	"[INTERNAL]",
	"[AGENT_HANDOFF]",
}

var (
	// markerLinePattern drops whole lines that are nothing but markers.
	markerLinePattern = regexp.MustCompile(`(?m)^\s*\[(?:DISCUSSION_COMPLETE|INTERNAL|AGENT_HANDOFF)\]\s*$\n?`)

	// toolJSONPattern finds fenced JSON objects that look like leaked tool
	// payloads. The greedy non-backtick body keeps nested braces together.
	toolJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{[^`]*\\})\\s*```")

	blankRunPattern = regexp.MustCompile(`\n{3,}`)
)

// New constructs a Filter.
func New(optFns ...func(o *Options)) *Filter {
	opts := Options{MaxLength: 8_000}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Filter{opts: opts}
}

// Clean strips internal coordination markers, collapses leaked tool JSON
// into short human-readable summaries, normalizes whitespace and truncates.
func (f *Filter) Clean(text string) string {
	out := markerLinePattern.ReplaceAllString(text, "")
	for _, marker := range internalMarkers {
		out = strings.ReplaceAll(out, marker, "")
	}

	out = toolJSONPattern.ReplaceAllStringFunc(out, func(match string) string {
		sub := toolJSONPattern.FindStringSubmatch(match)
		if summary, ok := summarizeToolJSON(sub[1]); ok {
			return summary
		}
		return match
	})

	out = blankRunPattern.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)

	if f.opts.MaxLength > 0 {
		runes := []rune(out)
		if len(runes) > f.opts.MaxLength {
			out = strings.TrimSpace(string(runes[:f.opts.MaxLength])) + "…"
		}
	}
	return out
}

// summarizeToolJSON turns a leaked tool payload into a one-line summary.
// Only payloads that are recognizably tool output are collapsed; arbitrary
// JSON the agent meant to show stays intact.
func summarizeToolJSON(raw string) (string, bool) {
	if !gjson.Valid(raw) {
		return "", false
	}
	doc := gjson.Parse(raw)

	if id := doc.Get("record_id"); id.Exists() {
		title := doc.Get("title").String()
		if title != "" {
			return "(saved: " + title + ")", true
		}
		return "(record " + id.String() + ")", true
	}
	if snippets := doc.Get("snippets"); snippets.IsArray() {
		n := strconv.Itoa(len(snippets.Array()))
		query := doc.Get("query").String()
		if query != "" {
			return "(found " + n + " results for \"" + query + "\")", true
		}
		return "(found " + n + " results)", true
	}
	if doc.Get("success").Exists() && doc.Get("error").Exists() {
		return "(a lookup failed: " + doc.Get("error").String() + ")", true
	}
	return "", false
}

// RecordWorthy reports whether the exchange produced durable content and,
// when it did, which record ids it touched. An explicit record tool
// invocation always decides the question; heuristics apply only when no
// record tool ran.
func RecordWorthy(trace []core.ToolInvocation, userMessage string) (bool, []string) {
	var ids []string
	for _, inv := range trace {
		if inv.Status != core.StatusCompleted {
			continue
		}
		if inv.Tool == tool.NameCreateRecord || inv.Tool == tool.NameUpdateRecord {
			if data, ok := inv.Result.(tool.RecordData); ok {
				ids = append(ids, data.RecordID)
			}
		}
	}
	if len(ids) > 0 {
		return true, ids
	}
	for _, inv := range trace {
		// A record tool was invoked but produced nothing durable.
		if inv.Tool == tool.NameCreateRecord || inv.Tool == tool.NameUpdateRecord {
			return false, nil
		}
	}

	// Heuristic fallback: explicit capture phrasing in the user message.
	lower := strings.ToLower(userMessage)
	for _, signal := range []string{"note that", "write down", "remember that", "save this", "jot down"} {
		if strings.Contains(lower, signal) {
			return true, nil
		}
	}
	return false, nil
}
