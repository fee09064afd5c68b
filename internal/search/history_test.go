package search_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/search"
)

func newIndex(t *testing.T, handler http.HandlerFunc) *search.HistoryIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := es.NewClient(es.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return search.NewHistoryIndex(client, "backlink_index_history", logger.NewNop())
}

func TestIndexHistory(t *testing.T) {
	idx := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/backlink_index_history/_doc/hist-1", r.URL.Path)

		var doc map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
		assert.Equal(t, "Who Is the Best Plumber?", doc["heading"])
		assert.InDelta(t, 5, doc["backlinks_count"], 0)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"hist-1","result":"created"}`))
	})

	err := idx.IndexHistory(context.Background(), &domain.IndexHistory{
		ID:             "hist-1",
		CampaignID:     "camp-1",
		Heading:        "Who Is the Best Plumber?",
		IndexedURL:     "https://blog.example/p/",
		BacklinksCount: 5,
		CreatedAt:      time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	idx := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/backlink_index_history/_search"))

		var query map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&query))
		assert.InDelta(t, 10, query["size"], 0)
		encoded, _ := json.Marshal(query)
		assert.Contains(t, string(encoded), `"multi_match"`)
		assert.Contains(t, string(encoded), `{"term":{"campaign_id":"camp-1"}}`)

		_, _ = w.Write([]byte(`{"took":3,"hits":{"total":{"value":1},"hits":[
			{"_score":2.5,"_source":{"id":"hist-1","campaign_id":"camp-1","heading":"Who Is the Best Plumber?","indexed_url":"https://blog.example/p/","backlinks_count":5,"created_at":"2026-10-01T12:00:00Z"},
			 "highlight":{"heading":["Who Is the Best <em>Plumber</em>?"]}}
		]}}`))
	})

	result, err := idx.Search(context.Background(), search.Request{Query: "plumber", CampaignID: "camp-1", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "hist-1", result.Hits[0].History.ID)
	assert.Equal(t, []string{"Who Is the Best <em>Plumber</em>?"}, result.Hits[0].Highlight["heading"])
}

func TestSearch_ErrorStatus(t *testing.T) {
	idx := newIndex(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"parsing_exception"}}`))
	})

	_, err := idx.Search(context.Background(), search.Request{Query: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[400]")
}

func TestEnsureIndex_CreatesWhenMissing(t *testing.T) {
	var created bool
	idx := newIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created = true
			assert.Equal(t, "/backlink_index_history", r.URL.Path)
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		}
	})

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.True(t, created)
}
