package api

import (
	"alcyxob/video-uploads/internal/auth"
	"alcyxob/video-uploads/internal/domain"
	"alcyxob/video-uploads/internal/metrics"
	"alcyxob/video-uploads/internal/repository/memory"
	"alcyxob/video-uploads/internal/service"
	"alcyxob/video-uploads/internal/storage"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type testServer struct {
	router *gin.Engine
	blobs  *storage.MemoryStorage
	issuer *auth.Issuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	blobs, err := storage.NewMemoryStorage("http://blobs.test", []byte("signing-key"))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()
	m := metrics.New()

	svc, err := service.NewVideoService(service.Dependencies{
		Videos:  memory.NewVideoRepository(),
		Blobs:   blobs,
		Logger:  logger,
		Metrics: m,
	}, service.Options{})
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier(testSecret, "video-uploads")
	require.NoError(t, err)
	issuer, err := auth.NewIssuer(testSecret, "video-uploads", time.Hour)
	require.NoError(t, err)

	router := NewRouter(logger, m)
	SetupRoutes(router, verifier, svc, m, blobs)
	return &testServer{router: router, blobs: blobs, issuer: issuer}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := s.issuer.Issue(domain.Identity{UserID: userID, Role: domain.RoleUser})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var resp struct {
		Error struct {
			Code      string              `json:"code"`
			Message   string              `json:"message"`
			RequestID string              `json:"requestId"`
			Details   []service.Violation `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return ErrorBody{Code: resp.Error.Code, Message: resp.Error.Message, RequestID: resp.Error.RequestID, Details: resp.Error.Details}
}

func (s *testServer) issue(t *testing.T, userID string) service.IssuedUpload {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/videos/signed-url", userID, IssueUploadURLRequest{
		Filename:    "swing.mp4",
		ContentType: "video/mp4",
		Size:        1024,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var issued service.IssuedUpload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issued))
	return issued
}

func TestAuthMiddleware_RejectsMissingAndBadTokens(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/videos", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDMiddleware_EchoesOrGenerates(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil)
	req.Header.Set(HeaderRequestID, "req-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get(HeaderRequestID))
	assert.Equal(t, "req-123", decodeError(t, rec).RequestID)

	rec = s.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
}

func TestIssueUploadURL_ValidationListsEveryViolation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/videos/signed-url", "alice", IssueUploadURLRequest{
		Filename:    "",
		ContentType: "image/png",
		Size:        0,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, CodeValidationFailed, body.Code)

	fields := map[string]bool{}
	for _, v := range body.Details.([]service.Violation) {
		fields[v.Field] = true
	}
	assert.True(t, fields["filename"])
	assert.True(t, fields["contentType"])
	assert.True(t, fields["size"])
}

func TestIssueUploadURL_MalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/signed-url", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+s.token(t, "alice"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidRequest, decodeError(t, rec).Code)
}

func TestUploadLifecycle_OverHTTP(t *testing.T) {
	s := newTestServer(t)
	issued := s.issue(t, "alice")
	assert.NotEmpty(t, issued.VideoID)
	assert.True(t, strings.HasPrefix(issued.StorageKey, "videos/alice/"))

	rec := s.do(t, http.MethodPost, "/api/v1/videos/"+issued.VideoID+"/confirm", "alice", map[string]string{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeUploadIncomplete, decodeError(t, rec).Code)

	s.blobs.PutObject(issued.StorageKey, "video/mp4", make([]byte, 1024))

	fps := 60.0
	rec = s.do(t, http.MethodPost, "/api/v1/videos/"+issued.VideoID+"/confirm", "alice", ConfirmUploadRequest{FPS: &fps})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var confirmed ConfirmUploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmed))
	assert.Equal(t, domain.StatusReady, confirmed.Status)
	assert.NotEmpty(t, confirmed.ReadURL)
	require.NotNil(t, confirmed.ConfirmedAt)

	rec = s.do(t, http.MethodGet, "/api/v1/videos/"+issued.VideoID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var video domain.Video
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &video))
	assert.Equal(t, issued.VideoID, video.ID)
	assert.NotEmpty(t, video.ReadURL)
	require.NotNil(t, video.FPS)
	assert.Equal(t, 60.0, *video.FPS)

	// the read URL is served by the mounted blob handler
	u := strings.TrimPrefix(video.ReadURL, "http://blobs.test")
	blobRec := httptest.NewRecorder()
	s.router.ServeHTTP(blobRec, httptest.NewRequest(http.MethodGet, u, nil))
	assert.Equal(t, http.StatusOK, blobRec.Code)
	assert.Len(t, blobRec.Body.Bytes(), 1024)

	rec = s.do(t, http.MethodDelete, "/api/v1/videos/"+issued.VideoID, "alice", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/videos/"+issued.VideoID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)
}

func TestVideoEndpoints_ForbidOtherUsers(t *testing.T) {
	s := newTestServer(t)
	issued := s.issue(t, "alice")

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/videos/" + issued.VideoID},
		{http.MethodPost, "/api/v1/videos/" + issued.VideoID + "/confirm"},
		{http.MethodDelete, "/api/v1/videos/" + issued.VideoID},
	} {
		rec := s.do(t, tc.method, tc.path, "mallory", map[string]string{})
		assert.Equal(t, http.StatusForbidden, rec.Code, tc.method+" "+tc.path)
		assert.Equal(t, CodeForbidden, decodeError(t, rec).Code)
	}
}

func TestListVideos_ClampsAndValidatesQuery(t *testing.T) {
	s := newTestServer(t)
	s.issue(t, "alice")
	s.issue(t, "alice")
	s.issue(t, "bob")

	rec := s.do(t, http.MethodGet, "/api/v1/videos?limit=1000", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list service.VideoList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, service.MaxListLimit, list.Limit)
	assert.EqualValues(t, 2, list.Total)
	assert.Len(t, list.Videos, 2)

	rec = s.do(t, http.MethodGet, "/api/v1/videos?limit=abc", "alice", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeValidationFailed, decodeError(t, rec).Code)

	rec = s.do(t, http.MethodGet, "/api/v1/videos?status=bogus", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/videos?status=ready", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.NotNil(t, list.Videos)
	assert.Empty(t, list.Videos)
}

func TestMetricsEndpoint_ExposesHTTPCounters(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodGet, "/ping", "", nil)

	rec := s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `video_uploads_http_requests_total{method="GET",route="/ping",status="200"} 1`)
}
