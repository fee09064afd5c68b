package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/backlink-indexer/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/domain"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/importer"
	"github.com/jonesrussell/north-cloud/backlink-indexer/internal/orchestrator"
)

const maxUploadBytes = 10 << 20

// BacklinkImporter loads an uploaded file into a campaign.
type BacklinkImporter interface {
	Import(ctx context.Context, campaignID, filename string, r io.Reader) (*importer.Result, error)
}

// BacklinkHandler serves backlink uploads.
type BacklinkHandler struct {
	importer BacklinkImporter
	logger   infralogger.Logger
}

// NewBacklinkHandler creates a backlink handler.
func NewBacklinkHandler(imp BacklinkImporter, log infralogger.Logger) *BacklinkHandler {
	return &BacklinkHandler{importer: imp, logger: log}
}

// Import handles POST /api/v1/campaigns/:id/backlinks/import with a
// multipart "file" field holding a CSV or XLSX sheet.
func (h *BacklinkHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	header, err := c.FormFile("file")
	if err != nil {
		respondStatus(c, http.StatusBadRequest, orchestrator.KindMissingParameter, "A CSV or XLSX file is required in the \"file\" field")
		return
	}
	file, err := header.Open()
	if err != nil {
		respondStatus(c, http.StatusBadRequest, orchestrator.KindMissingParameter, "Uploaded file could not be read")
		return
	}
	defer func() { _ = file.Close() }()

	result, err := h.importer.Import(c.Request.Context(), c.Param("id"), header.Filename, file)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
	case errors.Is(err, domain.ErrNotFound):
		respondStatus(c, http.StatusNotFound, orchestrator.KindNotFound, "Campaign not found")
	case errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, importer.ErrNoURLs),
		errors.Is(err, importer.ErrMissingCampaign),
		errors.Is(err, importer.ErrInvalidFile):
		respondStatus(c, http.StatusBadRequest, orchestrator.KindMissingParameter, err.Error())
	default:
		h.logger.Error("Backlink import failed",
			infralogger.CampaignID(c.Param("id")),
			infralogger.String("filename", header.Filename),
			infralogger.Error(err),
		)
		respondStatus(c, http.StatusInternalServerError, orchestrator.KindInternal, "Failed to import backlinks")
	}
}
