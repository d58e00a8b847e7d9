package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryServer(t *testing.T) (*MemoryStorage, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store, err := NewMemoryStorage(srv.URL, []byte("test-key"))
	require.NoError(t, err)
	mux.Handle(MemoryPathPrefix, store)
	return store, srv
}

func put(t *testing.T, url, contentType string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestMemoryStorage_SignedRoundTrip(t *testing.T) {
	store, _ := newMemoryServer(t)
	ctx := context.Background()
	key := "videos/alice/1700000000000-abc.mp4"

	writeURL, expiresAt, err := store.IssueWriteURL(ctx, key, "video/mp4", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	exists, err := store.ObjectExists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	resp := put(t, writeURL, "video/mp4", []byte("frames"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	info, err := store.StatObject(ctx, key)
	require.NoError(t, err)
	assert.EqualValues(t, 6, info.Size)
	assert.Equal(t, "video/mp4", info.ContentType)

	readURL, _, err := store.IssueReadURL(ctx, key, time.Minute)
	require.NoError(t, err)
	get, err := http.Get(readURL)
	require.NoError(t, err)
	defer get.Body.Close()
	body, _ := io.ReadAll(get.Body)
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "frames", string(body))
}

func TestMemoryStorage_RejectsTamperedRequests(t *testing.T) {
	store, _ := newMemoryServer(t)
	ctx := context.Background()
	key := "videos/bob/1-x.webm"

	writeURL, _, err := store.IssueWriteURL(ctx, key, "video/webm", time.Hour)
	require.NoError(t, err)

	// content type is part of the signature
	assert.Equal(t, http.StatusForbidden, put(t, writeURL, "video/mp4", []byte("x")).StatusCode)

	// a write URL is not a read URL
	get, err := http.Get(writeURL)
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusForbidden, get.StatusCode)

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, http.StatusForbidden, put(t, writeURL, "video/webm", []byte("x")).StatusCode)
}

func TestMemoryStorage_EscapedOwnerSegmentSurvivesURL(t *testing.T) {
	store, _ := newMemoryServer(t)
	key := "videos/%2E%2E/1-x.mp4"

	writeURL, _, err := store.IssueWriteURL(context.Background(), key, "video/mp4", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, put(t, writeURL, "video/mp4", []byte("x")).StatusCode)

	_, err = store.StatObject(context.Background(), key)
	assert.NoError(t, err)
}

func TestMemoryStorage_DeleteMissingIsNoop(t *testing.T) {
	store, err := NewMemoryStorage("http://localhost", nil)
	require.NoError(t, err)
	store.PutObject("k", "video/mp4", []byte("x"))

	require.NoError(t, store.DeleteObject(context.Background(), "k"))
	require.NoError(t, store.DeleteObject(context.Background(), "k"))
	_, err = store.StatObject(context.Background(), "k")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
