// Package testutil provides shared builders for package tests.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/scribemesh/scribemesh/core"
)

// Record builds an archive record with sensible defaults.
func Record(userID, title, content string, tags ...string) *core.ArchiveRecord {
	now := time.Now().UTC()
	return &core.ArchiveRecord{
		ID:          core.NewID(),
		UserID:      userID,
		Title:       title,
		TextContent: content,
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
		Source:      "test",
	}
}

// Turns builds an alternating user/agent conversation history.
func Turns(conversationID string, n int) []core.Turn {
	out := make([]core.Turn, 0, n)
	base := time.Now().UTC().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		role := core.RoleUser
		if i%2 == 1 {
			role = "scribe"
		}
		t := core.NewTurn(conversationID, role, fmt.Sprintf("message %d", i))
		t.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		out = append(out, t)
	}
	return out
}

// StaticEmbedder returns the same vector for every input.
type StaticEmbedder struct {
	Vector []float64
	Err    error
}

// Embed implements core.Embedder.
func (e *StaticEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return e.Vector, nil
}

// StaticWebSearch returns fixed snippets for every query.
type StaticWebSearch struct {
	Snippets []core.Snippet
	Err      error
}

// Search implements core.WebSearchService.
func (w *StaticWebSearch) Search(_ context.Context, query string) ([]core.Snippet, error) {
	if w.Err != nil {
		return nil, w.Err
	}
	return w.Snippets, nil
}

// StaticTranscription returns fixed text for any audio payload.
type StaticTranscription struct {
	Text string
	Err  error
}

// Transcribe implements core.TranscriptionService.
func (t *StaticTranscription) Transcribe(_ context.Context, _ []byte) (string, error) {
	if t.Err != nil {
		return "", t.Err
	}
	return t.Text, nil
}

// CollectEvents drains an event channel with a timeout so a stuck stream
// fails the test instead of hanging it.
func CollectEvents(ch <-chan core.StreamEvent, timeout time.Duration) []core.StreamEvent {
	var out []core.StreamEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
}
