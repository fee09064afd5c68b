package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/search"
)

// HistoryLister reads index history from the store.
type HistoryLister interface {
	ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.IndexHistory, error)
}

// HistorySearcher runs full-text search over published headings.
type HistorySearcher interface {
	Search(ctx context.Context, req search.Request) (*search.Result, error)
}

// HistoryHandler serves /api/v1/history.
type HistoryHandler struct {
	store    HistoryLister
	searcher HistorySearcher
	logger   infralogger.Logger
}

// NewHistoryHandler creates a history handler. searcher may be nil when
// Elasticsearch is not configured.
func NewHistoryHandler(store HistoryLister, searcher HistorySearcher, log infralogger.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, searcher: searcher, logger: log}
}

// List handles GET /api/v1/history?campaign_id=&website_id=&limit=&offset=.
func (h *HistoryHandler) List(c *gin.Context) {
	filter := domain.HistoryFilter{
		CampaignID: c.Query("campaign_id"),
		WebsiteID:  c.Query("website_id"),
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	}

	history, err := h.store.ListHistory(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("List history failed", infralogger.Error(err))
		respondStatus(c, http.StatusInternalServerError, orchestrator.KindInternal, "Failed to load index history")
		return
	}
	if history == nil {
		history = []domain.IndexHistory{}
	}
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

// Search handles GET /api/v1/history/search?q=.
func (h *HistoryHandler) Search(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "History search is not configured"})
		return
	}
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		respondStatus(c, http.StatusBadRequest, orchestrator.KindMissingParameter, "Query parameter q is required")
		return
	}

	result, err := h.searcher.Search(c.Request.Context(), search.Request{
		Query:      query,
		CampaignID: c.Query("campaign_id"),
		WebsiteID:  c.Query("website_id"),
		Limit:      queryInt(c, "limit"),
	})
	if err != nil {
		h.logger.Error("History search failed", infralogger.String("query", query), infralogger.Error(err))
		respondStatus(c, http.StatusInternalServerError, orchestrator.KindInternal, "History search failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// queryInt returns 0 for a missing or malformed value.
func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
