package api

import (
	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
)

// respondError writes the {"success":false} body for an orchestrator error.
func respondError(c *gin.Context, err error) {
	oe := orchestrator.AsError(err)
	c.JSON(oe.HTTPStatus(), gin.H{
		"success": false,
		"error":   oe.UserMessage(),
		"kind":    oe.Kind,
	})
}

func respondStatus(c *gin.Context, status int, kind orchestrator.Kind, msg string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   msg,
		"kind":    kind,
	})
}
