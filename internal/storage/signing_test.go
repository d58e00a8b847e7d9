package storage

import (
	"alcyxob/video-uploads/internal/config"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func TestS3Storage_PresignsAgainstCustomEndpoint(t *testing.T) {
	store, err := NewS3Storage(context.Background(), config.S3Config{
		Endpoint:        "localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio-secret",
		BucketName:      "media",
	}, quietLogger())
	require.NoError(t, err)

	raw, expiresAt, err := store.IssueWriteURL(context.Background(), "videos/o/1-a.mp4", "video/mp4", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/media/videos/o/1-a.mp4", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")

	read, _, err := store.IssueReadURL(context.Background(), "videos/o/1-a.mp4", 0)
	require.NoError(t, err)
	assert.Contains(t, read, "X-Amz-Expires=604800")
}

func TestS3Storage_RequiresBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), config.S3Config{Region: "us-east-1"}, quietLogger())
	assert.Error(t, err)
}

func TestGCSStorage_SignsV4URLs(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	store, err := NewGCSStorage(context.Background(), config.GCSConfig{BucketName: "media"}, quietLogger(),
		WithClientOptions(option.WithoutAuthentication()),
		WithSigningKey("uploader@example.iam.gserviceaccount.com", pemKey),
	)
	require.NoError(t, err)

	raw, _, err := store.IssueWriteURL(context.Background(), "videos/o/1-a.mp4", "video/mp4", time.Hour)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "/media/videos/o/1-a.mp4"), u.Path)
	assert.Equal(t, "GOOG4-RSA-SHA256", u.Query().Get("X-Goog-Algorithm"))
	assert.Contains(t, u.Query().Get("X-Goog-Credential"), "uploader@example.iam.gserviceaccount.com")
	assert.Contains(t, u.Query().Get("X-Goog-SignedHeaders"), "content-type")
}
