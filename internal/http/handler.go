package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/cognolabs/changedetection/internal/config"
	"github.com/cognolabs/changedetection/internal/pipeline"
	"github.com/cognolabs/changedetection/internal/repository"
	"github.com/cognolabs/changedetection/internal/service"
)

type Handler struct {
	dashboard *service.DashboardService
	journal   *repository.ReviewJournal
	config    *config.Config
	log       zerolog.Logger
}

func NewHandler(
	dashboard *service.DashboardService,
	journal *repository.ReviewJournal,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		dashboard: dashboard,
		journal:   journal,
		config:    cfg,
		log:       log,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/dashboard/state", h.getState)
		api.GET("/dashboard/map", h.getMap)
		api.POST("/dashboard/reload", h.reload)

		api.POST("/dashboard/selection/property/:id", h.selectProperty)
		api.POST("/dashboard/selection/change/:id", h.selectChange)
		api.DELETE("/dashboard/selection", h.clearSelection)

		api.POST("/dashboard/lists/changes/filter", h.setChangeFilter)
		api.POST("/dashboard/lists/changes/expand/:id", h.toggleChangeRow)
		api.POST("/dashboard/lists/predictions/filter", h.setPredictionFilter)
		api.POST("/dashboard/lists/predictions/expand/:id", h.togglePredictionRow)

		api.GET("/changes/:id", h.getChange)
		api.POST("/changes/:id/review", h.submitReview)
		api.GET("/changes/export/:format", h.exportChanges)
		api.GET("/frames/:id/image", h.frameImage)
		api.GET("/predictions/:id/image", h.predictionImage)

		api.POST("/pipeline/extract-frames", h.extractFrames)
		api.POST("/pipeline/geo-match", h.geoMatch)
		api.POST("/pipeline/inference", h.runInference)
		api.GET("/pipeline/models", h.listModels)
		api.POST("/pipeline/detect-changes", h.detectChanges)
		api.POST("/pipeline/demo/seed", h.seedDemo)
		api.DELETE("/pipeline/demo", h.clearDemo)

		api.POST("/uploads/properties", h.uploadProperties)
		api.POST("/uploads/video", h.uploadVideo)
		api.POST("/uploads/gpx", h.uploadGPX)
		api.POST("/uploads/model", h.uploadModel)

		if h.journal != nil {
			api.GET("/reviews/recent", h.recentReviews)
			api.GET("/reviews/change/:id", h.reviewsForChange)
		}
	}
}

func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

func (h *Handler) getMap(c *gin.Context) {
	c.JSON(http.StatusOK, h.dashboard.MapFeatures())
}

func (h *Handler) reload(c *gin.Context) {
	if err := h.dashboard.Reload(c.Request.Context()); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

func (h *Handler) selectProperty(c *gin.Context) {
	h.dashboard.SelectProperty(c.Param("id"))
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

func (h *Handler) selectChange(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("change id must be an integer"))
		return
	}
	h.dashboard.SelectChange(id)
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

func (h *Handler) clearSelection(c *gin.Context) {
	h.dashboard.ClearSelection()
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

type filterRequest struct {
	Key string `json:"key"`
}

func (h *Handler) setChangeFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	h.dashboard.SetChangeFilter(req.Key)
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

func (h *Handler) setPredictionFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}
	h.dashboard.SetPredictionFilter(req.Key)
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

func (h *Handler) toggleChangeRow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("row id must be an integer"))
		return
	}
	h.dashboard.ToggleChangeRow(id)
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

func (h *Handler) togglePredictionRow(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("row id must be an integer"))
		return
	}
	h.dashboard.TogglePredictionRow(id)
	c.JSON(http.StatusOK, successResponse(h.dashboard.View()))
}

type reviewPayload struct {
	Status      string  `json:"status"`
	ReviewedBy  string  `json:"reviewed_by"`
	ReviewNotes *string `json:"review_notes,omitempty"`
}

func (h *Handler) submitReview(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("change id must be an integer"))
		return
	}

	var payload reviewPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	change, err := h.dashboard.SubmitReview(c.Request.Context(), id, payload.Status, payload.ReviewedBy, payload.ReviewNotes)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(change))
}

func (h *Handler) getChange(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("change id must be an integer"))
		return
	}

	change, err := h.dashboard.GetChange(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(change))
}

func (h *Handler) frameImage(c *gin.Context) {
	h.streamImage(c, h.dashboard.FrameImage)
}

func (h *Handler) predictionImage(c *gin.Context) {
	h.streamImage(c, h.dashboard.PredictionImage)
}

// streamImage relays an image from the backend without buffering it.
func (h *Handler) streamImage(c *gin.Context, fetch func(ctx context.Context, id int64) (io.ReadCloser, string, error)) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("id must be an integer"))
		return
	}

	body, contentType, err := fetch(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "image/jpeg"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

func (h *Handler) exportChanges(c *gin.Context) {
	format := c.Param("format")
	status := strings.TrimSpace(c.Query("status"))

	body, contentType, err := h.dashboard.Export(c.Request.Context(), format, status)
	if err != nil {
		h.handleError(c, err)
		return
	}
	defer body.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", "attachment; filename=change_reports."+format)
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}

func (h *Handler) extractFrames(c *gin.Context) {
	interval := 1.0
	if raw := c.Query("interval"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("interval must be a number"))
			return
		}
		interval = parsed
	}

	status, err := h.dashboard.TriggerExtractFrames(c.Request.Context(), c.Query("video_filename"), interval)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) geoMatch(c *gin.Context) {
	buffer := 30.0
	if raw := c.Query("buffer_meters"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("buffer_meters must be a number"))
			return
		}
		buffer = parsed
	}

	status, err := h.dashboard.TriggerGeoMatch(c.Request.Context(), buffer)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) runInference(c *gin.Context) {
	status, err := h.dashboard.TriggerInference(c.Request.Context(), c.Query("model_name"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) listModels(c *gin.Context) {
	models, err := h.dashboard.ListModels(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse(models))
}

func (h *Handler) detectChanges(c *gin.Context) {
	status, err := h.dashboard.TriggerChangeDetection(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) seedDemo(c *gin.Context) {
	status, err := h.dashboard.SeedDemo(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) clearDemo(c *gin.Context) {
	status, err := h.dashboard.ClearDemo(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) recentReviews(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.journal.RecentReviews(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read review journal")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}
	c.JSON(http.StatusOK, successResponse(records))
}

func (h *Handler) reviewsForChange(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("change id must be an integer"))
		return
	}

	records, err := h.journal.ReviewsForChange(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read review journal")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
		return
	}
	c.JSON(http.StatusOK, successResponse(records))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	var apiErr *pipeline.APIError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrReviewInFlight):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.As(err, &apiErr):
		// The backend's own message goes through verbatim.
		c.JSON(http.StatusBadGateway, errorResponse(apiErr.Error()))
	case errors.Is(err, pipeline.ErrBackend):
		c.JSON(http.StatusBadGateway, errorResponse("pipeline backend unavailable"))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
