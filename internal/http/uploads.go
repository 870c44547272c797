package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cognolabs/changedetection/internal/domain/survey"
)

// uploadedFile streams the "file" multipart part into an upload call.
func (h *Handler) uploadedFile(c *gin.Context, call func(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error)) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("file is required"))
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("failed to read upload"))
		return
	}
	defer file.Close()

	status, err := call(c.Request.Context(), header.Filename, file)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) uploadProperties(c *gin.Context) {
	h.uploadedFile(c, h.dashboard.UploadProperties)
}

func (h *Handler) uploadVideo(c *gin.Context) {
	h.uploadedFile(c, h.dashboard.UploadVideo)
}

func (h *Handler) uploadGPX(c *gin.Context) {
	videoName := c.Query("video_name")
	h.uploadedFile(c, func(ctx context.Context, filename string, file io.Reader) (*survey.StatusResponse, error) {
		return h.dashboard.UploadGPX(ctx, videoName, filename, file)
	})
}

func (h *Handler) uploadModel(c *gin.Context) {
	h.uploadedFile(c, h.dashboard.UploadModel)
}
