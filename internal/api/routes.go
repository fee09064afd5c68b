// Package api exposes the orchestrator over HTTP.
package api

import (
	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/gin"
)

// Handlers groups the route handlers mounted by SetupRoutes.
type Handlers struct {
	Campaigns *CampaignHandler
	Backlinks *BacklinkHandler
	Websites  *WebsiteHandler
	History   *HistoryHandler
}

// SetupRoutes mounts /api/v1. Every route sits behind JWT when a secret is set.
func SetupRoutes(router *gin.Engine, h Handlers, jwtSecret string) {
	v1 := infragin.ProtectedGroup(router, "/api/v1", jwtSecret)

	campaigns := v1.Group("/campaigns")
	campaigns.GET("/diagnose", h.Campaigns.DiagnoseAll)
	campaigns.POST("/reset-stuck", h.Campaigns.ResetStuck)
	campaigns.POST("/:id/process", h.Campaigns.Process)
	campaigns.POST("/:id/reset", h.Campaigns.Reset)
	campaigns.GET("/:id/diagnose", h.Campaigns.Diagnose)
	campaigns.POST("/:id/backlinks/import", h.Backlinks.Import)

	v1.POST("/websites/:id/test-connection", h.Websites.TestConnection)

	v1.GET("/history", h.History.List)
	v1.GET("/history/search", h.History.Search)
}
