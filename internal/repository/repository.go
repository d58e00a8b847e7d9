package repository

import (
	"alcyxob/video-uploads/internal/domain"
	"context"
	"time"
)

// Error constants for repository layer
var (
	ErrNotFound      = RepositoryError("not found")
	ErrAlreadyExists = RepositoryError("already exists")
	ErrConflict      = RepositoryError("status changed concurrently")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// VideoUpdate is a partial update. Nil fields are left untouched;
// Metadata entries are merged into the stored map, never replacing it.
// When ExpectedStatus is set the update only applies if the stored status
// still equals it; otherwise Update returns ErrConflict.
type VideoUpdate struct {
	ExpectedStatus *domain.VideoStatus

	Status          *domain.VideoStatus
	FailureReason   *string
	ConfirmedAt     *time.Time
	ProcessedAt     *time.Time
	ActualSizeBytes *int64
	DurationSeconds *float64
	FPS             *float64
	Angle           *string
	Resolution      *string
	Metadata        map[string]string
}

// VideoQuery selects one owner's videos, newest first.
type VideoQuery struct {
	OwnerID string
	Status  domain.VideoStatus // empty means any
	Limit   int
	Offset  int
}

// VideoRepository defines the interface for interacting with video metadata.
type VideoRepository interface {
	// Put stores a new record; ErrAlreadyExists if the id or storage key is taken.
	Put(ctx context.Context, video *domain.Video) error
	// Get returns ErrNotFound if no record has this id.
	Get(ctx context.Context, id string) (*domain.Video, error)
	// Update applies a partial update and returns the stored record afterwards.
	// ErrNotFound if the id is unknown, ErrConflict if ExpectedStatus does not match.
	Update(ctx context.Context, id string, update VideoUpdate) (*domain.Video, error)
	// Query returns one page of an owner's records ordered by UploadedAt
	// descending, plus the total number of matching records.
	Query(ctx context.Context, query VideoQuery) ([]domain.Video, int64, error)
	Delete(ctx context.Context, id string) error
}
