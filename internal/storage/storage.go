package storage

import (
	"context"
	"errors"
	"time"
)

// Default lifetimes for signed URLs.
const (
	DefaultUploadURLTTL   = time.Hour
	DefaultDownloadURLTTL = 7 * 24 * time.Hour
)

// ErrObjectNotFound is returned when the key has no stored object.
var ErrObjectNotFound = errors.New("object not found in storage")

// BlobStore defines the object storage operations the video service needs.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// IssueWriteURL creates a URL that accepts exactly one PUT of key with the
	// given content type until the returned expiry.
	IssueWriteURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, time.Time, error)

	// IssueReadURL creates a URL that allows GET of key until the returned expiry.
	IssueReadURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)

	ObjectExists(ctx context.Context, key string) (bool, error)

	// StatObject returns ErrObjectNotFound when nothing is stored under key.
	StatObject(ctx context.Context, key string) (*ObjectInfo, error)

	// DeleteObject removes key. Deleting a missing key is not an error.
	DeleteObject(ctx context.Context, key string) error
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// existsViaStat implements ObjectExists on top of StatObject.
func existsViaStat(ctx context.Context, store BlobStore, key string) (bool, error) {
	_, err := store.StatObject(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
