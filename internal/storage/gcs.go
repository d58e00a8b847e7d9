package storage

import (
	"alcyxob/video-uploads/internal/config"
	"context"
	"errors"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// gcsStorage implements BlobStore on Google Cloud Storage with V4 signed URLs.
type gcsStorage struct {
	client *gcs.Client
	bucket *gcs.BucketHandle

	googleAccessID string
	privateKey     []byte
	now            func() time.Time
}

// GCSOption customises the GCS store.
type GCSOption func(*gcsOptions)

type gcsOptions struct {
	clientOptions  []option.ClientOption
	googleAccessID string
	privateKey     []byte
	now            func() time.Time
}

// WithClientOptions passes options through to storage.NewClient.
func WithClientOptions(opts ...option.ClientOption) GCSOption {
	return func(o *gcsOptions) { o.clientOptions = append(o.clientOptions, opts...) }
}

// WithSigningKey signs URLs with an explicit service account key instead of
// the one detected from the client credentials.
func WithSigningKey(accessID string, privateKeyPEM []byte) GCSOption {
	return func(o *gcsOptions) {
		o.googleAccessID = accessID
		o.privateKey = append([]byte(nil), privateKeyPEM...)
	}
}

// WithClock overrides the time source used to compute expiries.
func WithClock(clock func() time.Time) GCSOption {
	return func(o *gcsOptions) {
		if clock != nil {
			o.now = clock
		}
	}
}

// NewGCSStorage creates a GCS-backed BlobStore. Without WithSigningKey the
// client library derives the signer from the credentials file or, on GCP,
// from the IAM credentials API.
func NewGCSStorage(ctx context.Context, cfg config.GCSConfig, logger logrus.FieldLogger, opts ...GCSOption) (BlobStore, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	o := gcsOptions{googleAccessID: cfg.GoogleAccessID, now: time.Now}
	if cfg.CredentialsFile != "" {
		o.clientOptions = append(o.clientOptions, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	for _, opt := range opts {
		opt(&o)
	}

	client, err := gcs.NewClient(ctx, o.clientOptions...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create gcs client")
	}

	logger.WithField("bucket", cfg.BucketName).Info("GCS storage initialized")

	return &gcsStorage{
		client:         client,
		bucket:         client.Bucket(cfg.BucketName),
		googleAccessID: o.googleAccessID,
		privateKey:     o.privateKey,
		now:            o.now,
	}, nil
}

func (s *gcsStorage) signedURL(key, method, contentType string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := s.now().Add(ttl)
	opts := &gcs.SignedURLOptions{
		Scheme:         gcs.SigningSchemeV4,
		Method:         method,
		Expires:        expiresAt,
		ContentType:    contentType,
		GoogleAccessID: s.googleAccessID,
		PrivateKey:     s.privateKey,
	}
	url, err := s.bucket.SignedURL(key, opts)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrapf(err, "sign %s %s", method, key)
	}
	return url, expiresAt, nil
}

func (s *gcsStorage) IssueWriteURL(_ context.Context, key, contentType string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultUploadURLTTL
	}
	return s.signedURL(key, http.MethodPut, contentType, ttl)
}

func (s *gcsStorage) IssueReadURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = DefaultDownloadURLTTL
	}
	return s.signedURL(key, http.MethodGet, "", ttl)
}

func (s *gcsStorage) ObjectExists(ctx context.Context, key string) (bool, error) {
	return existsViaStat(ctx, s, key)
}

func (s *gcsStorage) StatObject(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, pkgerrors.Wrapf(err, "stat object %s", key)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		LastModified: attrs.Updated,
		ETag:         attrs.Etag,
	}, nil
}

func (s *gcsStorage) DeleteObject(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return pkgerrors.Wrapf(err, "delete object %s", key)
	}
	return nil
}

// Close releases the underlying client.
func (s *gcsStorage) Close() error {
	return s.client.Close()
}
