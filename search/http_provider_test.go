package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderSearchParsesOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-KEY"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"organic": []map[string]string{
				{"title": "A", "link": "https://a.example", "snippet": "snippet a"},
				{"title": "B", "link": "https://b.example", "snippet": "snippet b"},
			},
		})
	}))
	defer srv.Close()

	p := NewHTTPProvider("serper", "test-key", srv.URL, nil)
	hits, err := p.Search(context.Background(), "query", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "https://a.example", hits[0].URL)
	assert.Greater(t, hits[0].Weight, hits[1].Weight)
}

func TestHTTPProviderSearchFailsWithoutAPIKey(t *testing.T) {
	p := NewHTTPProvider("serper", "", "https://example.com", nil)
	_, err := p.Search(context.Background(), "query", 10)
	assert.Error(t, err)
}
