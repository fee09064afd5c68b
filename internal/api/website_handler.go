package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
)

// ConnectionTester checks WordPress credentials.
type ConnectionTester interface {
	TestConnection(ctx context.Context, websiteID string) (*orchestrator.ConnectionResult, error)
}

// WebsiteHandler serves /api/v1/websites.
type WebsiteHandler struct {
	tester ConnectionTester
}

// NewWebsiteHandler creates a website handler.
func NewWebsiteHandler(tester ConnectionTester) *WebsiteHandler {
	return &WebsiteHandler{tester: tester}
}

// TestConnection handles POST /api/v1/websites/:id/test-connection. A failed
// check still answers 200 with success false.
func (h *WebsiteHandler) TestConnection(c *gin.Context) {
	result, err := h.tester.TestConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
