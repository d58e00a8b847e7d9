package main

import (
	"alcyxob/video-uploads/internal/cache"
	"alcyxob/video-uploads/internal/config"
	"alcyxob/video-uploads/internal/events"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloserList_ClosesInReverseAndAggregates(t *testing.T) {
	var order []int
	var l closerList
	l.add(func() error { order = append(order, 1); return errors.New("first") })
	l.add(func() error { order = append(order, 2); return nil })
	l.add(func() error { order = append(order, 3); return errors.New("third") })

	err := l.Close()
	require.Error(t, err)
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Contains(t, err.Error(), "first")
	assert.Contains(t, err.Error(), "third")

	assert.NoError(t, closerList(nil).Close())
}

func TestWiring_MemoryDrivers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var closers closerList
	ctx := context.Background()

	repo, err := newVideoRepository(ctx, config.DatabaseConfig{Driver: "memory"}, logger, &closers)
	require.NoError(t, err)
	assert.NotNil(t, repo)

	cfg := config.Config{
		Server:  config.ServerConfig{PublicURL: "http://localhost:8080"},
		Storage: config.StorageConfig{Driver: "memory", SigningKey: "k"},
	}
	blobs, err := newBlobStore(ctx, cfg, logger, &closers)
	require.NoError(t, err)
	assert.NotNil(t, blobs.store)
	assert.NotNil(t, blobs.handler)
	assert.Empty(t, closers)
}

func TestWiring_RejectsUnknownDrivers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var closers closerList

	_, err := newVideoRepository(context.Background(), config.DatabaseConfig{Driver: "sqlite"}, logger, &closers)
	assert.Error(t, err)
	_, err = newBlobStore(context.Background(), config.Config{Storage: config.StorageConfig{Driver: "ftp"}}, logger, &closers)
	assert.Error(t, err)
}

func TestWiring_OptionalBackendsFallBackToNoOp(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var closers closerList

	c := newURLCache(context.Background(), config.CacheConfig{}, logger, &closers)
	assert.IsType(t, cache.NoOpCache{}, c)

	p, err := newPublisher(context.Background(), config.EventsConfig{}, logger)
	require.NoError(t, err)
	assert.IsType(t, events.NoOpPublisher{}, p)
}
