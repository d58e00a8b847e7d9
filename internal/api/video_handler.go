package api

import (
	"alcyxob/video-uploads/internal/domain"
	"alcyxob/video-uploads/internal/service"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// --- DTOs ---

// IssueUploadURLRequest declares the upload before any bytes are sent.
type IssueUploadURLRequest struct {
	Filename    string   `json:"filename"`
	ContentType string   `json:"contentType"`
	Size        int64    `json:"size"`
	Duration    *float64 `json:"duration,omitempty"`
	FPS         *float64 `json:"fps,omitempty"`
	Angle       *string  `json:"angle,omitempty"`
}

// ConfirmUploadRequest carries optional hints known once the upload finished.
type ConfirmUploadRequest struct {
	Duration   *float64          `json:"duration,omitempty"`
	FPS        *float64          `json:"fps,omitempty"`
	Angle      *string           `json:"angle,omitempty"`
	Resolution *string           `json:"resolution,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ConfirmUploadResponse is returned after a successful confirmation.
type ConfirmUploadResponse struct {
	VideoID          string             `json:"videoId"`
	Status           domain.VideoStatus `json:"status"`
	ReadURL          string             `json:"readUrl"`
	ReadURLExpiresAt *time.Time         `json:"readUrlExpiresAt,omitempty"`
	ConfirmedAt      *time.Time         `json:"confirmedAt,omitempty"`
}

// VideoHandler serves the video upload lifecycle endpoints.
type VideoHandler struct {
	videoService service.VideoService
}

func NewVideoHandler(videoService service.VideoService) *VideoHandler {
	return &VideoHandler{videoService: videoService}
}

// IssueUploadURL godoc
// @Summary Request a signed upload URL
// @Description Creates a video record in status "uploading" and returns a time-limited URL the client PUTs the bytes to.
// @Tags Videos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body IssueUploadURLRequest true "Upload declaration"
// @Success 201 {object} service.IssuedUpload
// @Failure 400 {object} ErrorResponse "Validation failed"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 503 {object} ErrorResponse "Blob or metadata store unavailable"
// @Router /videos/signed-url [post]
func (h *VideoHandler) IssueUploadURL(c *gin.Context) {
	ownerID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}

	var req IssueUploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}

	issued, err := h.videoService.IssueUploadURL(c.Request.Context(), ownerID, service.IssueUploadInput{
		Filename:        req.Filename,
		ContentType:     req.ContentType,
		SizeBytes:       req.Size,
		DurationSeconds: req.Duration,
		FPS:             req.FPS,
		Angle:           req.Angle,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, issued)
}

// ConfirmUpload godoc
// @Summary Confirm a finished upload
// @Description Verifies the blob exists, marks the video "ready" and returns a signed read URL. Repeating the call is safe.
// @Tags Videos
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param videoId path string true "Video ID"
// @Param request body ConfirmUploadRequest false "Optional hints"
// @Success 200 {object} ConfirmUploadResponse
// @Failure 400 {object} ErrorResponse "Validation failed or upload incomplete"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Failure 404 {object} ErrorResponse "Video not found"
// @Failure 409 {object} ErrorResponse "Video already failed"
// @Router /videos/{videoId}/confirm [post]
func (h *VideoHandler) ConfirmUpload(c *gin.Context) {
	requesterID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}

	var req ConfirmUploadRequest
	// An empty body means no hints.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}

	video, err := h.videoService.ConfirmUpload(c.Request.Context(), c.Param("videoId"), requesterID, service.ConfirmInput{
		DurationSeconds: req.Duration,
		FPS:             req.FPS,
		Angle:           req.Angle,
		Resolution:      req.Resolution,
		Metadata:        req.Metadata,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ConfirmUploadResponse{
		VideoID:          video.ID,
		Status:           video.Status,
		ReadURL:          video.ReadURL,
		ReadURLExpiresAt: video.ReadURLExpiresAt,
		ConfirmedAt:      video.ConfirmedAt,
	})
}

// GetVideo godoc
// @Summary Get a video
// @Description Returns the video record; readable videos include a fresh signed read URL.
// @Tags Videos
// @Produce json
// @Security BearerAuth
// @Param videoId path string true "Video ID"
// @Success 200 {object} domain.Video
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Failure 404 {object} ErrorResponse "Video not found"
// @Router /videos/{videoId} [get]
func (h *VideoHandler) GetVideo(c *gin.Context) {
	requesterID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}

	video, err := h.videoService.GetVideo(c.Request.Context(), c.Param("videoId"), requesterID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

// ListVideos godoc
// @Summary List my videos
// @Description Returns the caller's videos, newest first.
// @Tags Videos
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Number of videos to skip"
// @Param status query string false "Filter by status"
// @Success 200 {object} service.VideoList
// @Failure 400 {object} ErrorResponse "Invalid query"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Router /videos [get]
func (h *VideoHandler) ListVideos(c *gin.Context) {
	requesterID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}

	var violations []service.Violation
	limit, ok := queryInt(c, "limit")
	if !ok {
		violations = append(violations, service.Violation{Field: "limit", Code: service.CodeOutOfRange, Message: "limit must be an integer"})
	}
	offset, ok := queryInt(c, "offset")
	if !ok {
		violations = append(violations, service.Violation{Field: "offset", Code: service.CodeOutOfRange, Message: "offset must be an integer"})
	}
	if len(violations) > 0 {
		abortWithDetails(c, http.StatusBadRequest, CodeValidationFailed, "Request validation failed", violations)
		return
	}

	list, err := h.videoService.ListVideos(c.Request.Context(), requesterID, service.ListInput{
		Limit:  limit,
		Offset: offset,
		Status: c.Query("status"),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// DeleteVideo godoc
// @Summary Delete a video
// @Description Removes the blob and the metadata record.
// @Tags Videos
// @Security BearerAuth
// @Param videoId path string true "Video ID"
// @Success 204 "No Content"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not the owner"
// @Failure 404 {object} ErrorResponse "Video not found"
// @Router /videos/{videoId} [delete]
func (h *VideoHandler) DeleteVideo(c *gin.Context) {
	requesterID, err := getUserIDFromContext(c)
	if err != nil {
		abortWithError(c, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}

	if err := h.videoService.DeleteVideo(c.Request.Context(), c.Param("videoId"), requesterID); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// queryInt parses an optional integer query parameter; absent means 0.
func queryInt(c *gin.Context, name string) (int, bool) {
	raw, present := c.GetQuery(name)
	if !present || raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
