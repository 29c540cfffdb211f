package handler

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-loadsim/internal/dto"
	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/internal/service"
	appErrors "github.com/noah-isme/course-registration-loadsim/pkg/errors"
	"github.com/noah-isme/course-registration-loadsim/pkg/response"
)

type runService interface {
	Submit(ctx context.Context, req dto.CreateRunRequest) (*dto.RunAccepted, error)
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, limit int) ([]models.Run, error)
	ArtifactLinks(ctx context.Context, id string) ([]service.ArtifactLink, error)
	ResolveDownload(ctx context.Context, token string) (*service.ArtifactDownload, error)
}

// RunHandler exposes the load-run control plane.
type RunHandler struct {
	runs   runService
	logger *zap.Logger
}

// NewRunHandler constructs handler.
func NewRunHandler(runs runService, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{runs: runs, logger: logger}
}

// CreateRun godoc
// @Summary Queue a load run
// @Tags Runs
// @Accept json
// @Produce json
// @Param payload body dto.CreateRunRequest true "Run overrides"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /runs [post]
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req dto.CreateRunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
			return
		}
	}
	accepted, err := h.runs.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	operator := ""
	if claims := claimsFromContext(c); claims != nil {
		operator = claims.Subject
	}
	h.logger.Sugar().Infow("run queued", "run_id", accepted.ID, "operator", operator)
	response.Accepted(c, strings.TrimSuffix(c.FullPath(), "/")+"/"+accepted.ID, accepted)
}

// ListRuns godoc
// @Summary List recent runs
// @Tags Runs
// @Produce json
// @Param limit query int false "Maximum runs returned"
// @Success 200 {object} response.Envelope
// @Router /runs [get]
func (h *RunHandler) ListRuns(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 200 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be between 1 and 200"))
			return
		}
		limit = parsed
	}
	runs, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	summaries := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		summaries = append(summaries, dto.SummarizeRun(run))
	}
	response.JSON(c, http.StatusOK, summaries, &models.Pagination{Page: 1, PageSize: limit, TotalCount: len(summaries)})
}

// GetRun godoc
// @Summary Run status and metrics
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /runs/{id} [get]
func (h *RunHandler) GetRun(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// GetRunSLO godoc
// @Summary SLO report of a finished run
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /runs/{id}/slo [get]
func (h *RunHandler) GetRunSLO(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if run.SLO == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrConflict, "run has no slo report yet"))
		return
	}
	response.JSON(c, http.StatusOK, run.SLO, nil, map[string]any{"status": run.Status})
}

// ListArtifacts godoc
// @Summary Signed artifact links
// @Tags Runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Router /runs/{id}/artifacts [get]
func (h *RunHandler) ListArtifacts(c *gin.Context) {
	links, err := h.runs.ArtifactLinks(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, links, nil)
}

// DownloadArtifact godoc
// @Summary Download a run artifact
// @Tags Runs
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /artifacts/{token} [get]
func (h *RunHandler) DownloadArtifact(c *gin.Context) {
	download, err := h.runs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	contentType := mime.TypeByExtension(filepath.Ext(download.Filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+download.Filename+"\"")
	c.Header("Cache-Control", "private, max-age=0")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, download.File); err != nil {
		h.logger.Sugar().Warnw("artifact stream interrupted", "file", download.Filename, "error", err)
	}
}
