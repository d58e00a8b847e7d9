// Package memory keeps video metadata in process memory. It backs the
// "memory" database driver for local development and the service tests.
package memory

import (
	"alcyxob/video-uploads/internal/domain"
	"alcyxob/video-uploads/internal/repository"
	"context"
	"sort"
	"sync"
	"time"
)

type videoRepository struct {
	mu     sync.RWMutex
	videos map[string]domain.Video
	keys   map[string]string // storageKey -> id
	now    func() time.Time
}

// NewVideoRepository creates an empty in-memory repository.
func NewVideoRepository() repository.VideoRepository {
	return &videoRepository{
		videos: make(map[string]domain.Video),
		keys:   make(map[string]string),
		now:    time.Now,
	}
}

func (r *videoRepository) Put(_ context.Context, video *domain.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.videos[video.ID]; ok {
		return repository.ErrAlreadyExists
	}
	if _, ok := r.keys[video.StorageKey]; ok {
		return repository.ErrAlreadyExists
	}
	stored := clone(*video)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.UploadedAt
	}
	r.videos[video.ID] = stored
	r.keys[video.StorageKey] = video.ID
	return nil
}

func (r *videoRepository) Get(_ context.Context, id string) (*domain.Video, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.videos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clone(v)
	return &out, nil
}

func (r *videoRepository) Update(_ context.Context, id string, u repository.VideoUpdate) (*domain.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if u.ExpectedStatus != nil && v.Status != *u.ExpectedStatus {
		return nil, repository.ErrConflict
	}
	if u.Status != nil {
		v.Status = *u.Status
	}
	if u.FailureReason != nil {
		v.FailureReason = *u.FailureReason
	}
	if u.ConfirmedAt != nil {
		t := *u.ConfirmedAt
		v.ConfirmedAt = &t
	}
	if u.ProcessedAt != nil {
		t := *u.ProcessedAt
		v.ProcessedAt = &t
	}
	if u.ActualSizeBytes != nil {
		v.ActualSizeBytes = *u.ActualSizeBytes
	}
	if u.DurationSeconds != nil {
		d := *u.DurationSeconds
		v.DurationSeconds = &d
	}
	if u.FPS != nil {
		f := *u.FPS
		v.FPS = &f
	}
	if u.Angle != nil {
		a := *u.Angle
		v.Angle = &a
	}
	if u.Resolution != nil {
		res := *u.Resolution
		v.Resolution = &res
	}
	if len(u.Metadata) > 0 {
		merged := make(map[string]string, len(v.Metadata)+len(u.Metadata))
		for k, val := range v.Metadata {
			merged[k] = val
		}
		for k, val := range u.Metadata {
			merged[k] = val
		}
		v.Metadata = merged
	}
	v.UpdatedAt = r.now().UTC()
	r.videos[id] = v

	out := clone(v)
	return &out, nil
}

func (r *videoRepository) Query(_ context.Context, q repository.VideoQuery) ([]domain.Video, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Video
	for _, v := range r.videos {
		if v.OwnerID != q.OwnerID {
			continue
		}
		if q.Status != "" && v.Status != q.Status {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UploadedAt.Equal(matched[j].UploadedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UploadedAt.After(matched[j].UploadedAt)
	})

	total := int64(len(matched))
	if q.Offset >= len(matched) {
		return []domain.Video{}, total, nil
	}
	end := len(matched)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	page := make([]domain.Video, 0, end-q.Offset)
	for _, v := range matched[q.Offset:end] {
		page = append(page, clone(v))
	}
	return page, total, nil
}

func (r *videoRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.videos[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.keys, v.StorageKey)
	delete(r.videos, id)
	return nil
}

// clone copies the map so callers never share state with the store.
func clone(v domain.Video) domain.Video {
	if v.Metadata != nil {
		md := make(map[string]string, len(v.Metadata))
		for k, val := range v.Metadata {
			md[k] = val
		}
		v.Metadata = md
	}
	return v
}
