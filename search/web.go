package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/scribemesh/scribemesh/core"
	"github.com/scribemesh/scribemesh/logging"
)

// WebOptions configures the web search client.
type WebOptions struct {
	// Endpoint is the search API base URL.
	Endpoint string

	// APIKey authenticates requests when the endpoint requires it.
	APIKey string

	MaxResults int
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Web is a thin client over a JSON search API. The response shape it expects
// is the common {"results": [{"title", "snippet", "url"}]} form.
type Web struct {
	opts WebOptions
}

// NewWeb constructs the web search client.
func NewWeb(endpoint string, optFns ...func(o *WebOptions)) *Web {
	opts := WebOptions{
		Endpoint:   endpoint,
		MaxResults: 5,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Web{opts: opts}
}

type webResponse struct {
	Results []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		URL     string `json:"url"`
	} `json:"results"`
}

// Search implements core.WebSearchService.
func (w *Web) Search(ctx context.Context, query string) ([]core.Snippet, error) {
	u, err := url.Parse(w.opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid web search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if w.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.opts.APIKey)
	}

	resp, err := w.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, core.Transient("search.web", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, core.Transient("search.web", fmt.Errorf("search API returned %d", resp.StatusCode))
	}

	var body webResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	snippets := make([]core.Snippet, 0, len(body.Results))
	for i, r := range body.Results {
		if i >= w.opts.MaxResults {
			break
		}
		snippets = append(snippets, core.Snippet{
			Title:   r.Title,
			Content: r.Snippet,
			URL:     r.URL,
			Source:  "web",
		})
	}
	w.opts.Logger.Debug("search.web", "query", query, "hits", len(snippets))
	return snippets, nil
}
