package uploader

import (
	"alcyxob/video-uploads/internal/domain"
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const codeUploadIncomplete = "upload_incomplete"

// FileUpload is a local file plus the hints sent with it.
type FileUpload struct {
	Path        string
	ContentType string // guessed from the extension when empty
	Duration    *float64
	FPS         *float64
	Angle       *string
	Confirm     ConfirmRequest
}

// Flow runs signed-url, transfer and confirm for one file.
type Flow struct {
	Client    *APIClient
	Transport Transport
	Config    Config
	// ConfirmAttempts bounds confirm calls answered with upload_incomplete.
	ConfirmAttempts int
	Logger          logrus.FieldLogger
}

// Upload sends the file and confirms it. onProgress may be nil.
func (f *Flow) Upload(ctx context.Context, in FileUpload, onProgress func(Progress)) (*Confirmation, error) {
	logger := f.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	info, err := os.Stat(in.Path)
	if err != nil {
		return nil, &TerminalTransportError{Err: err}
	}
	contentType := in.ContentType
	if contentType == "" {
		contentType = domain.ContentTypeForFilename(in.Path)
	}

	signed, err := f.Client.RequestUpload(ctx, UploadRequest{
		Filename:    filepath.Base(in.Path),
		ContentType: contentType,
		Size:        info.Size(),
		Duration:    in.Duration,
		FPS:         in.FPS,
		Angle:       in.Angle,
	})
	if err != nil {
		return nil, err
	}
	log := logger.WithFields(logrus.Fields{"video_id": signed.VideoID, "storage_key": signed.StorageKey})
	log.Info("Upload URL issued")

	cfg := f.Config
	if cfg.Logger == nil {
		cfg.Logger = log
	}
	coord, err := NewCoordinator(f.Transport, FileSource{Path: in.Path}, signed.UploadURL, signed.ContentType, cfg)
	if err != nil {
		return nil, err
	}
	progress, err := coord.Start(ctx)
	if err != nil {
		return nil, err
	}
	for p := range progress {
		if onProgress != nil {
			onProgress(p)
		}
	}
	if res := coord.Wait(); res.State != StateSucceeded {
		log.WithField("state", res.State).WithError(res.Err).Error("Upload did not complete")
		return nil, res.Err
	}

	return f.confirm(ctx, signed.VideoID, in.Confirm)
}

// confirm retries while the API still reports the blob as missing, which
// happens when the store's listing lags the write.
func (f *Flow) confirm(ctx context.Context, videoID string, req ConfirmRequest) (*Confirmation, error) {
	attempts := f.ConfirmAttempts
	if attempts <= 0 {
		attempts = 3
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0

	var out *Confirmation
	op := func() error {
		c, err := f.Client.Confirm(ctx, videoID, req)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code == codeUploadIncomplete {
				return err
			}
			return backoff.Permanent(err)
		}
		out = c
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return out, nil
}
