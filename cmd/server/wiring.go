package main

import (
	"alcyxob/video-uploads/internal/cache"
	"alcyxob/video-uploads/internal/config"
	"alcyxob/video-uploads/internal/events"
	"alcyxob/video-uploads/internal/repository"
	"alcyxob/video-uploads/internal/repository/dynamo"
	"alcyxob/video-uploads/internal/repository/memory"
	"alcyxob/video-uploads/internal/repository/mongo"
	"alcyxob/video-uploads/internal/storage"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

// closerList releases resources in reverse order of acquisition.
type closerList []func() error

func (l *closerList) add(fn func() error) { *l = append(*l, fn) }

func (l closerList) Close() error {
	var result *multierror.Error
	for i := len(l) - 1; i >= 0; i-- {
		if err := l[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func newVideoRepository(ctx context.Context, cfg config.DatabaseConfig, logger logrus.FieldLogger, closers *closerList) (repository.VideoRepository, error) {
	switch cfg.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.ConnectDB(connectCtx, cfg.URI)
		if err != nil {
			return nil, err
		}
		closers.add(func() error {
			logger.Info("Disconnecting MongoDB...")
			return mongo.DisconnectDB(client)
		})
		db := client.Database(cfg.Name)

		// Index creation runs in the background; a failure only degrades queries.
		go func() {
			idxCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := mongo.EnsureVideoIndexes(idxCtx, db); err != nil {
				logger.WithError(err).Error("Failed to ensure video indexes")
				return
			}
			logger.Info("Index creation process completed.")
		}()
		logger.WithField("database", cfg.Name).Info("Database connection established.")
		return mongo.NewMongoVideoRepository(db), nil

	case "dynamodb":
		client, err := dynamo.NewClient(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		logger.WithField("table", cfg.DynamoTable).Info("Using DynamoDB metadata store")
		return dynamo.NewVideoRepository(client, cfg.DynamoTable, cfg.DynamoIndex)

	case "memory":
		logger.Warn("Using in-memory metadata store; data is lost on restart")
		return memory.NewVideoRepository(), nil
	}
	return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

type blobBackend struct {
	store   storage.BlobStore
	handler http.Handler // non-nil only for the memory driver
}

func newBlobStore(ctx context.Context, cfg config.Config, logger logrus.FieldLogger, closers *closerList) (blobBackend, error) {
	switch cfg.Storage.Driver {
	case "s3":
		s, err := storage.NewS3Storage(ctx, cfg.Storage.S3, logger)
		return blobBackend{store: s}, err

	case "gcs":
		s, err := storage.NewGCSStorage(ctx, cfg.Storage.GCS, logger)
		if err != nil {
			return blobBackend{}, err
		}
		if c, ok := s.(io.Closer); ok {
			closers.add(c.Close)
		}
		return blobBackend{store: s}, nil

	case "memory":
		s, err := storage.NewMemoryStorage(cfg.Server.PublicURL, []byte(cfg.Storage.SigningKey))
		if err != nil {
			return blobBackend{}, err
		}
		logger.WithField("public_url", cfg.Server.PublicURL).Warn("Using in-memory blob store; blobs are lost on restart")
		return blobBackend{store: s, handler: s}, nil
	}
	return blobBackend{}, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// newURLCache falls back to no caching when Redis is unset or unreachable.
func newURLCache(ctx context.Context, cfg config.CacheConfig, logger logrus.FieldLogger, closers *closerList) cache.URLCache {
	if cfg.RedisAddress == "" {
		return cache.NoOpCache{}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	c, err := cache.NewRedisCache(pingCtx, cache.RedisOptions{
		Address:  cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.TTL,
	})
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, read URL cache disabled")
		return cache.NoOpCache{}
	}
	closers.add(c.Close)
	logger.WithField("address", cfg.RedisAddress).Info("Read URL cache enabled")
	return c
}

func newPublisher(ctx context.Context, cfg config.EventsConfig, logger logrus.FieldLogger) (events.Publisher, error) {
	if cfg.SQSQueueURL == "" {
		return events.NoOpPublisher{}, nil
	}
	client, err := events.NewSQSClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	logger.WithField("queue_url", cfg.SQSQueueURL).Info("Publishing video events to SQS")
	return events.NewSQSPublisher(client, cfg.SQSQueueURL)
}
