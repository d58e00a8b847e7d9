package uploader

import (
	"alcyxob/video-uploads/internal/api"
	"alcyxob/video-uploads/internal/auth"
	"alcyxob/video-uploads/internal/domain"
	"alcyxob/video-uploads/internal/repository/memory"
	"alcyxob/video-uploads/internal/service"
	"alcyxob/video-uploads/internal/storage"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) (*httptest.Server, *auth.Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	blobs, err := storage.NewMemoryStorage(srv.URL, []byte("k"))
	require.NoError(t, err)
	svc, err := service.NewVideoService(service.Dependencies{
		Videos: memory.NewVideoRepository(),
		Blobs:  blobs,
		Logger: logger,
	}, service.Options{})
	require.NoError(t, err)
	verifier, err := auth.NewJWTVerifier("secret", "")
	require.NoError(t, err)
	issuer, err := auth.NewIssuer("secret", "", time.Hour)
	require.NoError(t, err)

	router := api.NewRouter(logger, nil)
	api.SetupRoutes(router, verifier, svc, nil, blobs)
	handler = router
	return srv, issuer
}

func TestFlow_UploadsAndConfirmsAgainstAPI(t *testing.T) {
	srv, issuer := newAPIServer(t)
	token, _, err := issuer.Issue(domain.Identity{UserID: "alice", Role: domain.RoleUser})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "swing.mp4")
	payload := bytes.Repeat([]byte{7}, 32<<10)
	require.NoError(t, os.WriteFile(path, payload, 0o600))

	logger, _ := test.NewNullLogger()
	client := NewAPIClient(srv.URL, token, nil)
	flow := &Flow{
		Client:    client,
		Transport: NewHTTPTransport(nil),
		Config:    testConfig((&sleepRecorder{}).Sleep),
		Logger:    logger,
	}

	fps := 120.0
	var last float64
	confirmation, err := flow.Upload(context.Background(), FileUpload{Path: path, FPS: &fps}, func(p Progress) {
		assert.GreaterOrEqual(t, p.Fraction, last)
		last = p.Fraction
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, confirmation.Status)
	assert.NotEmpty(t, confirmation.ReadURL)
	assert.Equal(t, 1.0, last)

	video, err := client.GetVideo(context.Background(), confirmation.VideoID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReady, video.Status)
	assert.EqualValues(t, len(payload), video.ActualSizeBytes)
	require.NotNil(t, video.ConfirmedAt)
	assert.False(t, video.ConfirmedAt.Before(video.UploadedAt))

	resp, err := http.Get(video.ReadURL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	page, err := client.ListVideos(context.Background(), 1000, 0, "")
	require.NoError(t, err)
	assert.Equal(t, service.MaxListLimit, page.Limit)
	assert.Len(t, page.Videos, 1)

	require.NoError(t, client.DeleteVideo(context.Background(), confirmation.VideoID))
	_, err = client.GetVideo(context.Background(), confirmation.VideoID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.RequestID)
}

func TestAPIClient_SurfacesValidationErrors(t *testing.T) {
	srv, issuer := newAPIServer(t)
	token, _, err := issuer.Issue(domain.Identity{UserID: "alice"})
	require.NoError(t, err)

	_, err = NewAPIClient(srv.URL, token, nil).RequestUpload(context.Background(), UploadRequest{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Size:        10,
	})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "validation_failed", apiErr.Code)
	assert.Contains(t, string(apiErr.Details), "contentType")
}

func TestFlow_ConfirmGivesUpWhenBlobNeverArrives(t *testing.T) {
	srv, issuer := newAPIServer(t)
	token, _, err := issuer.Issue(domain.Identity{UserID: "alice"})
	require.NoError(t, err)
	client := NewAPIClient(srv.URL, token, nil)

	signed, err := client.RequestUpload(context.Background(), UploadRequest{Filename: "a.mp4", ContentType: "video/mp4", Size: 5})
	require.NoError(t, err)

	flow := &Flow{Client: client, ConfirmAttempts: 1}
	_, err = flow.confirm(context.Background(), signed.VideoID, ConfirmRequest{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, codeUploadIncomplete, apiErr.Code)
}
