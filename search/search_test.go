package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribemesh/scribemesh/internal/testutil"
	"github.com/scribemesh/scribemesh/store"
)

func TestKnowledgeSearchRanksTitleMatches(t *testing.T) {
	st := store.NewInMemory()
	ctx := context.Background()

	require.NoError(t, st.CreateRecord(ctx, testutil.Record("u1",
		"Kubernetes upgrade plan", "steps for the cluster migration")))
	require.NoError(t, st.CreateRecord(ctx, testutil.Record("u1",
		"Grocery list", "kubernetes mentioned once in passing here")))
	require.NoError(t, st.CreateRecord(ctx, testutil.Record("u1",
		"Garden notes", "tomatoes and peppers")))

	k := NewKnowledge(st)
	snippets, err := k.Search(ctx, "u1", "kubernetes upgrade", 10)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(snippets), 2)
	assert.Equal(t, "Kubernetes upgrade plan", snippets[0].Title,
		"title matches outrank content matches")
	for _, s := range snippets {
		assert.NotEqual(t, "Garden notes", s.Title)
		assert.Equal(t, "archive", s.Source)
	}
}

func TestKnowledgeSearchScopesToUser(t *testing.T) {
	st := store.NewInMemory()
	ctx := context.Background()

	require.NoError(t, st.CreateRecord(ctx, testutil.Record("u2", "Kubernetes secrets", "not yours")))

	k := NewKnowledge(st)
	snippets, err := k.Search(ctx, "u1", "kubernetes", 10)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestKnowledgeSearchLimit(t *testing.T) {
	st := store.NewInMemory()
	ctx := context.Background()
	for i := 0; i < 8; i++ {
		require.NoError(t, st.CreateRecord(ctx, testutil.Record("u1", "project note", "about the project")))
	}

	k := NewKnowledge(st)
	snippets, err := k.Search(ctx, "u1", "project", 3)
	require.NoError(t, err)
	assert.Len(t, snippets, 3)
}

func TestExcerptCentersOnMatch(t *testing.T) {
	content := "padding before the match. " + "filler text " + "kubernetes appears here in the middle of a long document. " +
		"and then a lot of trailing content that goes on and on past the excerpt window for quite a while longer than needed."
	out := excerpt(content, []string{"kubernetes"})
	assert.Contains(t, out, "kubernetes")
	assert.LessOrEqual(t, len([]rune(out)), 210)
}

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "Go homepage", "snippet": "The Go programming language", "url": "https://go.dev"},
			},
		})
	}))
	defer srv.Close()

	w := NewWeb(srv.URL, func(o *WebOptions) { o.APIKey = "secret" })
	snippets, err := w.Search(context.Background(), "golang")
	require.NoError(t, err)

	require.Len(t, snippets, 1)
	assert.Equal(t, "Go homepage", snippets[0].Title)
	assert.Equal(t, "https://go.dev", snippets[0].URL)
	assert.Equal(t, "web", snippets[0].Source)
}

func TestWebSearchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWeb(srv.URL)
	_, err := w.Search(context.Background(), "anything")
	require.Error(t, err)
}
