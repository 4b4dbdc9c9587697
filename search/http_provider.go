package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/deepresearch/corerun/corelog"
)

// HTTPProvider is a reference Provider implementation against a
// Serper/Brave-style JSON search API, grounded on llm.HTTPClient's
// request/response handling.
type HTTPProvider struct {
	name       string
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     corelog.Logger
}

// NewHTTPProvider creates an HTTPProvider. endpoint must accept a GET
// request with a "q" query parameter and an "X-API-KEY" header, returning
// a JSON body shaped like Serper's /search response.
func NewHTTPProvider(name, apiKey, endpoint string, logger corelog.Logger) *HTTPProvider {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	return &HTTPProvider{
		name:       name,
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("search: %s: API key not configured", p.name)
	}

	reqURL := p.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("search: %s: build request: %w", p.name, err)
	}
	req.Header.Set("X-API-KEY", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %s: request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Error("search request failed", map[string]interface{}{"provider": p.name, "status": resp.StatusCode})
		return nil, fmt.Errorf("search: %s: status %d", p.name, resp.StatusCode)
	}

	var wire struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("search: %s: parse response: %w", p.name, err)
	}

	if topK <= 0 || topK > len(wire.Organic) {
		topK = len(wire.Organic)
	}
	hits := make([]Hit, 0, topK)
	for i, item := range wire.Organic[:topK] {
		hits = append(hits, Hit{
			URL:     item.Link,
			Title:   item.Title,
			Snippet: item.Snippet,
			// Earlier organic results rank higher relevance; map rank to a
			// [0,1] weight that decays with position.
			Weight: 1.0 / float64(i+1),
		})
	}
	return hits, nil
}
