package api

import (
	"alcyxob/video-uploads/internal/auth"
	"alcyxob/video-uploads/internal/metrics"
	"alcyxob/video-uploads/internal/service"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds a gin engine with the shared middleware chain.
func NewRouter(logger logrus.FieldLogger, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		RequestIDMiddleware(),
		LoggerMiddleware(logger),
		MetricsMiddleware(m),
	)
	return router
}

// SetupRoutes registers the HTTP surface. blobHandler is mounted under
// /blobs/ when the in-memory blob store is in use and may be nil.
func SetupRoutes(
	router *gin.Engine,
	verifier auth.Verifier,
	videoService service.VideoService,
	m *metrics.Metrics,
	blobHandler http.Handler,
) {
	videoHandler := NewVideoHandler(videoService)
	authMiddleware := AuthMiddleware(verifier)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}
	if blobHandler != nil {
		// signature in the query string is the only credential
		router.Any("/blobs/*key", gin.WrapH(blobHandler))
	}

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userID, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, CodeInternal, "Failed to get user ID from token")
				return
			}
			c.JSON(http.StatusOK, gin.H{"userId": userID, "role": getUserRoleFromContext(c)})
		})

		// --- Video Routes ---
		videoGroup := protected.Group("/videos")
		{
			// POST /api/v1/videos/signed-url
			videoGroup.POST("/signed-url", videoHandler.IssueUploadURL)
			// GET /api/v1/videos
			videoGroup.GET("", videoHandler.ListVideos)
			// POST /api/v1/videos/{videoId}/confirm
			videoGroup.POST("/:videoId/confirm", videoHandler.ConfirmUpload)
			// GET /api/v1/videos/{videoId}
			videoGroup.GET("/:videoId", videoHandler.GetVideo)
			// DELETE /api/v1/videos/{videoId}
			videoGroup.DELETE("/:videoId", videoHandler.DeleteVideo)
		}
	}
}
