package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/acadhub/curricula-api/internal/service"
	appErrors "github.com/acadhub/curricula-api/pkg/errors"
	"github.com/acadhub/curricula-api/pkg/response"
)

type exportManager interface {
	RequestTimelineExport(ctx context.Context, entityID string, format service.ExportFormat) (*service.ExportJob, error)
	RequestLineageExport(ctx context.Context, entityID string, format service.ExportFormat) (*service.ExportJob, error)
	JobStatus(id string) (*service.ExportJob, error)
	OpenDownload(token string) (*os.File, error)
}

// ExportHandler exposes report generation and download endpoints.
type ExportHandler struct {
	service exportManager
}

// NewExportHandler constructs the handler.
func NewExportHandler(service exportManager) *ExportHandler {
	return &ExportHandler{service: service}
}

// Request godoc
// @Summary Queue a timeline or lineage export for an entity
// @Tags Exports
// @Produce json
// @Param type path string true "Entity type"
// @Param id path string true "Entity ID"
// @Param kind query string false "Report kind (timeline or lineage)" default(timeline)
// @Param format query string false "File format (csv or pdf)" default(csv)
// @Success 202 {object} response.Envelope
// @Router /{type}/{id}/export [post]
func (h *ExportHandler) Request(c *gin.Context) {
	if _, ok := entityKindFromContext(c); !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown entity type"))
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	var (
		job *service.ExportJob
		err error
	)
	switch kind := c.DefaultQuery("kind", "timeline"); kind {
	case "timeline":
		job, err = h.service.RequestTimelineExport(c.Request.Context(), c.Param("id"), format)
	case "lineage":
		job, err = h.service.RequestLineageExport(c.Request.Context(), c.Param("id"), format)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "kind must be timeline or lineage"))
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Poll an export job
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /exports/jobs/{id} [get]
func (h *ExportHandler) Status(c *gin.Context) {
	job, err := h.service.JobStatus(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a completed export via its signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(file.Name())))
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
