// Package search mirrors published batches into Elasticsearch for full-text
// search over headings and content previews.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var historyMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"campaign_id":     map[string]any{"type": "keyword"},
			"website_id":      map[string]any{"type": "keyword"},
			"user_id":         map[string]any{"type": "keyword"},
			"heading":         map[string]any{"type": "text", "fields": map[string]any{"raw": map[string]any{"type": "keyword"}}},
			"indexed_url":     map[string]any{"type": "keyword"},
			"backlinks_count": map[string]any{"type": "integer"},
			"content_preview": map[string]any{"type": "text"},
			"created_at":      map[string]any{"type": "date"},
		},
	},
}

// HistoryIndex reads and writes the history index.
type HistoryIndex struct {
	client *es.Client
	index  string
	logger logger.Logger
}

// NewHistoryIndex binds to one index name.
func NewHistoryIndex(client *es.Client, index string, log logger.Logger) *HistoryIndex {
	return &HistoryIndex{
		client: client,
		index:  index,
		logger: log.With(logger.String("component", "history_index"), logger.String("index", index)),
	}
}

// EnsureIndex creates the index with its mapping when missing.
func (h *HistoryIndex) EnsureIndex(ctx context.Context) error {
	res, err := h.client.Indices.Exists([]string{h.index}, h.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check history index: %w", err)
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(historyMapping)
	if err != nil {
		return fmt.Errorf("marshal history mapping: %w", err)
	}
	res, err = h.client.Indices.Create(h.index,
		h.client.Indices.Create.WithContext(ctx),
		h.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create history index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return responseError("create history index", res)
	}
	h.logger.Info("Created history index")
	return nil
}

// IndexHistory upserts one history row keyed by its id.
func (h *HistoryIndex) IndexHistory(ctx context.Context, history *domain.IndexHistory) error {
	body, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	res, err := h.client.Index(h.index, bytes.NewReader(body),
		h.client.Index.WithContext(ctx),
		h.client.Index.WithDocumentID(history.ID),
	)
	if err != nil {
		return fmt.Errorf("index history: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return responseError("index history", res)
	}
	return nil
}

// Request narrows a search. Query matches heading and content preview.
type Request struct {
	Query      string
	CampaignID string
	WebsiteID  string
	Limit      int
}

// Hit is one matching history row.
type Hit struct {
	History   domain.IndexHistory `json:"history"`
	Score     float64             `json:"score"`
	Highlight map[string][]string `json:"highlight,omitempty"`
}

// Result is a page of hits.
type Result struct {
	Total  int64 `json:"total"`
	TookMS int64 `json:"took_ms"`
	Hits   []Hit `json:"hits"`
}

// Search runs a multi_match over heading and content preview.
func (h *HistoryIndex) Search(ctx context.Context, req Request) (*Result, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildQuery(req)); err != nil {
		return nil, fmt.Errorf("encode history query: %w", err)
	}

	start := time.Now()
	res, err := h.client.Search(
		h.client.Search.WithContext(ctx),
		h.client.Search.WithIndex(h.index),
		h.client.Search.WithBody(&buf),
		h.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, responseError("search history", res)
	}

	var esResponse struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score     float64             `json:"_score"`
				Source    domain.IndexHistory `json:"_source"`
				Highlight map[string][]string `json:"highlight,omitempty"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err = json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("decode history search: %w", err)
	}

	result := &Result{
		Total:  esResponse.Hits.Total.Value,
		TookMS: esResponse.Took,
		Hits:   make([]Hit, 0, len(esResponse.Hits.Hits)),
	}
	for _, hit := range esResponse.Hits.Hits {
		result.Hits = append(result.Hits, Hit{History: hit.Source, Score: hit.Score, Highlight: hit.Highlight})
	}

	h.logger.Debug("History search completed",
		logger.String("query", req.Query),
		logger.Int64("total", result.Total),
		logger.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func buildQuery(req Request) map[string]any {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var must []any
	if req.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  req.Query,
				"fields": []string{"heading^3", "content_preview"},
			},
		})
	} else {
		must = append(must, map[string]any{"match_all": map[string]any{}})
	}

	var filter []any
	if req.CampaignID != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"campaign_id": req.CampaignID}})
	}
	if req.WebsiteID != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"website_id": req.WebsiteID}})
	}

	boolQuery := map[string]any{"must": must}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	return map[string]any{
		"size":  limit,
		"query": map[string]any{"bool": boolQuery},
		"sort":  []any{"_score", map[string]any{"created_at": "desc"}},
		"highlight": map[string]any{
			"fields": map[string]any{"heading": map[string]any{}},
		},
	}
}

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	return fmt.Errorf("%s: elasticsearch returned error [%d]: %s", op, res.StatusCode, string(body))
}
