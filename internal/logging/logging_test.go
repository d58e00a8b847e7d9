package logging

import (
	"alcyxob/video-uploads/internal/config"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger, err := New(config.LogConfig{Level: "debug", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	_, err = New(config.LogConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
	_, err = New(config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestFromContext_AddsRequestID(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ctx := ContextWithRequestID(context.Background(), "req-1")

	FromContext(ctx, logger).Info("hello")
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, "req-1", hook.LastEntry().Data["request_id"])

	FromContext(context.Background(), logger).Info("bare")
	_, ok := hook.LastEntry().Data["request_id"]
	assert.False(t, ok)
}
