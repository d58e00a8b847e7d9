package service

import (
	"alcyxob/video-uploads/internal/cache"
	"alcyxob/video-uploads/internal/domain"
	"alcyxob/video-uploads/internal/events"
	"alcyxob/video-uploads/internal/logging"
	"alcyxob/video-uploads/internal/metrics"
	"alcyxob/video-uploads/internal/repository"
	"alcyxob/video-uploads/internal/storage"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Failure reasons recorded on videos moved to the failed status.
const (
	ReasonBlobMissing = "blob_missing"
	ReasonOversize    = "exceeds_max_bytes"
)

// Reference list limits.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// IssueUploadInput is what a client declares before uploading.
type IssueUploadInput struct {
	Filename        string
	ContentType     string
	SizeBytes       int64
	DurationSeconds *float64
	FPS             *float64
	Angle           *string
}

// IssuedUpload is returned to the client; the PUT must carry ContentType.
type IssuedUpload struct {
	VideoID     string    `json:"videoId"`
	UploadURL   string    `json:"uploadUrl"`
	StorageKey  string    `json:"storageKey"`
	ContentType string    `json:"contentType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// ConfirmInput carries the optional hints attached at confirmation.
type ConfirmInput = Hints

// ListInput selects a page of the requester's videos.
type ListInput struct {
	Limit  int
	Offset int
	Status string
}

// VideoList is one page of videos. Limit and Offset are the values applied.
type VideoList struct {
	Videos []domain.Video `json:"videos"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// VideoService implements the server side of the upload lifecycle.
type VideoService interface {
	// IssueUploadURL validates the request, records the video as uploading
	// and returns a write URL for its storage key.
	IssueUploadURL(ctx context.Context, ownerID string, in IssueUploadInput) (*IssuedUpload, error)
	// ConfirmUpload checks the blob exists and moves the video to ready.
	// Confirming a ready video again is safe and returns a read URL.
	ConfirmUpload(ctx context.Context, videoID, requesterID string, in ConfirmInput) (*domain.Video, error)
	GetVideo(ctx context.Context, videoID, requesterID string) (*domain.Video, error)
	ListVideos(ctx context.Context, requesterID string, in ListInput) (*VideoList, error)
	// DeleteVideo removes the blob first, then the metadata.
	DeleteVideo(ctx context.Context, videoID, requesterID string) error
}

// Dependencies are the collaborators of the video service. URLCache,
// Publisher, Logger and Metrics are optional.
type Dependencies struct {
	Videos    repository.VideoRepository
	Blobs     storage.BlobStore
	URLCache  cache.URLCache
	Publisher events.Publisher
	Logger    logrus.FieldLogger
	Metrics   *metrics.Metrics
}

// Options tune policy and timing. Zero values take the reference defaults.
type Options struct {
	Policy           Policy
	UploadURLTTL     time.Duration
	DownloadURLTTL   time.Duration
	DefaultListLimit int
	MaxListLimit     int
	Now              func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Policy.MaxBytes <= 0 {
		o.Policy.MaxBytes = DefaultMaxBytes
	}
	if o.UploadURLTTL <= 0 {
		o.UploadURLTTL = storage.DefaultUploadURLTTL
	}
	if o.DownloadURLTTL <= 0 {
		o.DownloadURLTTL = storage.DefaultDownloadURLTTL
	}
	if o.MaxListLimit <= 0 {
		o.MaxListLimit = MaxListLimit
	}
	if o.DefaultListLimit <= 0 {
		o.DefaultListLimit = DefaultListLimit
	}
	if o.DefaultListLimit > o.MaxListLimit {
		o.DefaultListLimit = o.MaxListLimit
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type videoService struct {
	videos    repository.VideoRepository
	blobs     storage.BlobStore
	urlCache  cache.URLCache
	publisher events.Publisher
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
	opts      Options
}

// NewVideoService creates a new instance of videoService.
func NewVideoService(deps Dependencies, opts Options) (VideoService, error) {
	if deps.Videos == nil {
		return nil, errors.New("video repository is required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if deps.URLCache == nil {
		deps.URLCache = cache.NoOpCache{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.NoOpPublisher{}
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	return &videoService{
		videos:    deps.Videos,
		blobs:     deps.Blobs,
		urlCache:  deps.URLCache,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		opts:      opts.withDefaults(),
	}, nil
}

func (s *videoService) log(ctx context.Context, v *domain.Video) logrus.FieldLogger {
	l := logging.FromContext(ctx, s.logger)
	if v != nil {
		l = l.WithFields(logrus.Fields{"video_id": v.ID, "owner_id": v.OwnerID, "storage_key": v.StorageKey})
	}
	return l
}

func (s *videoService) IssueUploadURL(ctx context.Context, ownerID string, in IssueUploadInput) (*IssuedUpload, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	violations := ValidateUploadRequest(UploadRequest{
		Filename:        in.Filename,
		ContentType:     in.ContentType,
		SizeBytes:       in.SizeBytes,
		DurationSeconds: in.DurationSeconds,
		FPS:             in.FPS,
		Angle:           in.Angle,
	}, s.opts.Policy)
	if len(violations) > 0 {
		return nil, newValidationError(violations...)
	}

	now := s.opts.Now().UTC()
	contentType := domain.NormalizeContentType(in.ContentType)
	video := &domain.Video{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		OriginalFilename:  in.Filename,
		ContentType:       contentType,
		DeclaredSizeBytes: in.SizeBytes,
		Status:            domain.StatusUploading,
		UploadedAt:        now,
		UpdatedAt:         now,
		DurationSeconds:   in.DurationSeconds,
		FPS:               in.FPS,
		Angle:             in.Angle,
	}
	video.StorageKey = domain.StorageKey(ownerID, video.ID, domain.ExtensionFor(contentType, in.Filename), now)

	uploadURL, expiresAt, err := s.blobs.IssueWriteURL(ctx, video.StorageKey, contentType, s.opts.UploadURLTTL)
	if err != nil {
		s.log(ctx, video).WithError(err).Error("Failed to issue write URL")
		return nil, ErrStoreUnavailable
	}

	// The URL is only handed out once the record exists.
	if err := s.videos.Put(ctx, video); err != nil {
		s.log(ctx, video).WithError(err).
			Error("Metadata write failed after write URL was issued; URL discarded, key needs reconciliation")
		return nil, ErrStoreUnavailable
	}

	s.metrics.UploadURLIssued()
	s.log(ctx, video).Info("Upload URL issued")

	return &IssuedUpload{
		VideoID:     video.ID,
		UploadURL:   uploadURL,
		StorageKey:  video.StorageKey,
		ContentType: contentType,
		ExpiresAt:   expiresAt,
	}, nil
}

// loadOwned fetches a video and checks the requester owns it.
func (s *videoService) loadOwned(ctx context.Context, videoID, requesterID string) (*domain.Video, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}
	if videoID == "" {
		return nil, ErrNotFound
	}
	video, err := s.videos.Get(ctx, videoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		s.log(ctx, nil).WithError(err).WithField("video_id", videoID).Error("Failed to load video")
		return nil, ErrStoreUnavailable
	}
	if video.OwnerID != requesterID {
		return nil, ErrForbidden
	}
	return video, nil
}

func (s *videoService) ConfirmUpload(ctx context.Context, videoID, requesterID string, in ConfirmInput) (*domain.Video, error) {
	if violations := ValidateHints(in); len(violations) > 0 {
		return nil, newValidationError(violations...)
	}
	video, err := s.loadOwned(ctx, videoID, requesterID)
	if err != nil {
		return nil, err
	}

	// One retry covers a concurrent confirm winning the uploading -> ready race.
	for attempt := 0; ; attempt++ {
		confirmed, err := s.confirm(ctx, video, in)
		if !errors.Is(err, repository.ErrConflict) {
			return confirmed, err
		}
		if attempt > 0 {
			// status keeps moving under us, e.g. a concurrent read marked it failed
			s.log(ctx, video).Warn("Confirmation lost the status race twice")
			return nil, ErrInvalidTransition
		}
		if video, err = s.loadOwned(ctx, videoID, requesterID); err != nil {
			return nil, err
		}
	}
}

func (s *videoService) confirm(ctx context.Context, video *domain.Video, in ConfirmInput) (*domain.Video, error) {
	if video.Status == domain.StatusFailed {
		s.metrics.Confirmation("rejected")
		return nil, ErrInvalidTransition
	}

	info, err := s.blobs.StatObject(ctx, video.StorageKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		s.metrics.Confirmation("incomplete")
		if video.Status.IsReadable() {
			s.markFailed(ctx, video, ReasonBlobMissing)
		}
		return nil, ErrUploadIncomplete
	}
	if err != nil {
		s.log(ctx, video).WithError(err).Error("Failed to stat uploaded object")
		return nil, ErrStoreUnavailable
	}

	if info.Size > s.opts.Policy.MaxBytes {
		s.metrics.Confirmation("oversize")
		s.markFailed(ctx, video, ReasonOversize)
		if err := s.blobs.DeleteObject(ctx, video.StorageKey); err != nil {
			s.log(ctx, video).WithError(err).Warn("Failed to delete oversize object")
		}
		return nil, newValidationError(Violation{
			Field:   "size",
			Code:    CodeExceedsMaxBytes,
			Message: fmt.Sprintf("uploaded object is %d bytes; the limit is %d", info.Size, s.opts.Policy.MaxBytes),
		})
	}

	readURL, readExpiresAt, err := s.blobs.IssueReadURL(ctx, video.StorageKey, s.opts.DownloadURLTTL)
	if err != nil {
		s.log(ctx, video).WithError(err).Error("Failed to issue read URL")
		return nil, ErrStoreUnavailable
	}

	current := video.Status
	update := repository.VideoUpdate{
		ExpectedStatus:  &current,
		ActualSizeBytes: &info.Size,
		DurationSeconds: in.DurationSeconds,
		FPS:             in.FPS,
		Angle:           in.Angle,
		Resolution:      in.Resolution,
		Metadata:        in.Metadata,
	}
	firstConfirm := video.Status == domain.StatusUploading
	if firstConfirm {
		ready := domain.StatusReady
		confirmedAt := s.opts.Now().UTC()
		if confirmedAt.Before(video.UploadedAt) {
			confirmedAt = video.UploadedAt
		}
		update.Status = &ready
		update.ConfirmedAt = &confirmedAt
	}

	updated, err := s.videos.Update(ctx, video.ID, update)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, err
		}
		s.log(ctx, video).WithError(err).Error("Failed to record confirmation")
		return nil, ErrStoreUnavailable
	}

	s.cacheReadURL(ctx, updated, readURL, readExpiresAt)
	updated.ReadURL = readURL
	updated.ReadURLExpiresAt = &readExpiresAt

	s.metrics.Confirmation("ready")
	if firstConfirm {
		s.log(ctx, updated).WithField("size_bytes", info.Size).Info("Upload confirmed")
		if err := s.publisher.PublishVideoReady(ctx, updated); err != nil {
			// The record is already ready; downstream consumers can reconcile from the store.
			s.log(ctx, updated).WithError(err).Warn("Failed to publish video.ready event")
		}
	}
	return updated, nil
}

// markFailed persists the failed status when the lifecycle allows it. The
// in-memory video is reported as failed even if persisting does not succeed.
func (s *videoService) markFailed(ctx context.Context, video *domain.Video, reason string) {
	if !video.Status.CanTransitionTo(domain.StatusFailed) {
		return
	}
	failed := domain.StatusFailed
	current := video.Status
	updated, err := s.videos.Update(ctx, video.ID, repository.VideoUpdate{
		ExpectedStatus: &current,
		Status:         &failed,
		FailureReason:  &reason,
	})
	if err != nil {
		s.log(ctx, video).WithError(err).WithField("reason", reason).Warn("Failed to persist failed status")
		video.Status = failed
		video.FailureReason = reason
	} else {
		*video = *updated
	}
	video.ReadURL = ""
	video.ReadURLExpiresAt = nil

	if err := s.urlCache.DeleteReadURL(ctx, video.StorageKey); err != nil {
		s.log(ctx, video).WithError(err).Warn("Failed to evict cached read URL")
	}
	s.metrics.VideoFailed(reason)
	s.log(ctx, video).WithField("reason", reason).Warn("Video marked failed")
}

func (s *videoService) cacheReadURL(ctx context.Context, video *domain.Video, url string, expiresAt time.Time) {
	err := s.urlCache.SetReadURL(ctx, video.StorageKey, cache.CachedURL{URL: url, ExpiresAt: expiresAt})
	if err != nil {
		s.log(ctx, video).WithError(err).Warn("Failed to cache read URL")
	}
}

// attachReadURL fills ReadURL for readable videos. The blob is checked on
// every read so a dangling record is marked failed; the cache only saves
// re-signing the URL.
func (s *videoService) attachReadURL(ctx context.Context, video *domain.Video) error {
	if !video.Status.IsReadable() {
		return nil
	}

	exists, err := s.blobs.ObjectExists(ctx, video.StorageKey)
	if err != nil {
		s.log(ctx, video).WithError(err).Error("Failed to check object existence")
		return ErrStoreUnavailable
	}
	if !exists {
		s.markFailed(ctx, video, ReasonBlobMissing)
		return nil
	}

	entry, err := s.urlCache.GetReadURL(ctx, video.StorageKey)
	if err == nil {
		s.metrics.ReadURLCache(true)
		expiresAt := entry.ExpiresAt
		video.ReadURL = entry.URL
		video.ReadURLExpiresAt = &expiresAt
		return nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log(ctx, video).WithError(err).Warn("Read URL cache lookup failed")
	}
	s.metrics.ReadURLCache(false)

	url, expiresAt, err := s.blobs.IssueReadURL(ctx, video.StorageKey, s.opts.DownloadURLTTL)
	if err != nil {
		s.log(ctx, video).WithError(err).Error("Failed to issue read URL")
		return ErrStoreUnavailable
	}
	s.cacheReadURL(ctx, video, url, expiresAt)
	video.ReadURL = url
	video.ReadURLExpiresAt = &expiresAt
	return nil
}

func (s *videoService) GetVideo(ctx context.Context, videoID, requesterID string) (*domain.Video, error) {
	video, err := s.loadOwned(ctx, videoID, requesterID)
	if err != nil {
		return nil, err
	}
	if err := s.attachReadURL(ctx, video); err != nil {
		return nil, err
	}
	return video, nil
}

func (s *videoService) ListVideos(ctx context.Context, requesterID string, in ListInput) (*VideoList, error) {
	if requesterID == "" {
		return nil, ErrUnauthorized
	}

	status := domain.VideoStatus(in.Status)
	if status != "" && !status.IsValid() {
		return nil, newValidationError(Violation{
			Field:   "status",
			Code:    CodeInvalidStatus,
			Message: fmt.Sprintf("status %q is not one of uploading, ready, processing, processed, failed", in.Status),
		})
	}

	limit := in.Limit
	if limit <= 0 {
		limit = s.opts.DefaultListLimit
	}
	if limit > s.opts.MaxListLimit {
		limit = s.opts.MaxListLimit
	}
	offset := in.Offset
	if offset < 0 {
		offset = 0
	}

	videos, total, err := s.videos.Query(ctx, repository.VideoQuery{
		OwnerID: requesterID,
		Status:  status,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		s.log(ctx, nil).WithError(err).WithField("owner_id", requesterID).Error("Failed to list videos")
		return nil, ErrStoreUnavailable
	}

	page := make([]domain.Video, 0, len(videos))
	for i := range videos {
		if err := s.attachReadURL(ctx, &videos[i]); err != nil {
			return nil, err
		}
		// a filtered page must not carry items that just moved to failed
		if status != "" && videos[i].Status != status {
			total--
			continue
		}
		page = append(page, videos[i])
	}
	videos = page
	return &VideoList{Videos: videos, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *videoService) DeleteVideo(ctx context.Context, videoID, requesterID string) error {
	video, err := s.loadOwned(ctx, videoID, requesterID)
	if err != nil {
		return err
	}

	if err := s.blobs.DeleteObject(ctx, video.StorageKey); err != nil {
		s.log(ctx, video).WithError(err).Error("Failed to delete object")
		return ErrStoreUnavailable
	}
	if err := s.urlCache.DeleteReadURL(ctx, video.StorageKey); err != nil {
		s.log(ctx, video).WithError(err).Warn("Failed to evict cached read URL")
	}
	if err := s.videos.Delete(ctx, video.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.log(ctx, video).WithError(err).Error("Failed to delete video metadata after its object was removed")
		return ErrStoreUnavailable
	}

	s.log(ctx, video).Info("Video deleted")
	return nil
}
