package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
		m.UploadURLIssued()
		m.Confirmation("ready")
		m.VideoFailed("blob_missing")
		m.ReadURLCache(true)
	})
}

func TestMetrics_CountsAndExposes(t *testing.T) {
	m := New()
	m.UploadURLIssued()
	m.UploadURLIssued()
	m.Confirmation("incomplete")
	m.ObserveHTTP("POST", "/api/v1/videos/signed-url", 201, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.urlsIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.confirmations.WithLabelValues("incomplete")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `video_uploads_http_requests_total{method="POST",route="/api/v1/videos/signed-url",status="201"} 1`)
}
