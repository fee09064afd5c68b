package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
)

// CampaignService is the orchestrator surface used by the campaign routes.
type CampaignService interface {
	ProcessBatch(ctx context.Context, campaignID string) (*orchestrator.Result, error)
	ResetCampaign(ctx context.Context, campaignID string) error
	Diagnose(ctx context.Context, campaignID string) (*orchestrator.Diagnosis, error)
	DiagnoseAll(ctx context.Context) ([]orchestrator.Diagnosis, error)
	SweepStuck(ctx context.Context) ([]string, error)
}

const defaultBatchTimeout = 5 * time.Minute

// CampaignHandler serves /api/v1/campaigns.
type CampaignHandler struct {
	svc          CampaignService
	batchTimeout time.Duration
	logger       infralogger.Logger
}

// NewCampaignHandler creates a campaign handler. batchTimeout bounds one
// process call and should match the server write timeout.
func NewCampaignHandler(svc CampaignService, batchTimeout time.Duration, log infralogger.Logger) *CampaignHandler {
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}
	return &CampaignHandler{svc: svc, batchTimeout: batchTimeout, logger: log}
}

// Process handles POST /api/v1/campaigns/:id/process. One call runs one batch.
// A client disconnect does not cancel the batch; only batchTimeout does.
func (h *CampaignHandler) Process(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.batchTimeout)
	defer cancel()

	result, err := h.svc.ProcessBatch(ctx, c.Param("id"))
	if err != nil {
		oe := orchestrator.AsError(err)
		if oe.Kind != orchestrator.KindConflict {
			h.logger.Error("Process campaign failed",
				infralogger.CampaignID(c.Param("id")),
				infralogger.String("kind", string(oe.Kind)),
				infralogger.String("source", string(oe.Source)),
				infralogger.Error(err),
			)
		}
		respondError(c, oe)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Reset handles POST /api/v1/campaigns/:id/reset.
func (h *CampaignHandler) Reset(c *gin.Context) {
	if err := h.svc.ResetCampaign(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Campaign reset successfully"})
}

// Diagnose handles GET /api/v1/campaigns/:id/diagnose.
func (h *CampaignHandler) Diagnose(c *gin.Context) {
	diagnosis, err := h.svc.Diagnose(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, diagnosis)
}

// DiagnoseAll handles GET /api/v1/campaigns/diagnose.
func (h *CampaignHandler) DiagnoseAll(c *gin.Context) {
	diagnoses, err := h.svc.DiagnoseAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": diagnoses, "count": len(diagnoses)})
}

// ResetStuck handles POST /api/v1/campaigns/reset-stuck.
func (h *CampaignHandler) ResetStuck(c *gin.Context) {
	reset, err := h.svc.SweepStuck(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if reset == nil {
		reset = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reset": reset, "count": len(reset)})
}
