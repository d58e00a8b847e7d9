package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresIn time.Duration
		maxTTL    time.Duration
		want      time.Duration
	}{
		{"capped by configured ttl", 7 * 24 * time.Hour, time.Hour, time.Hour},
		{"keeps a tenth of the lifetime", 10 * time.Hour, 0, 9 * time.Hour},
		{"margin is at least a minute", 5 * time.Minute, 0, 4 * time.Minute},
		{"nearly expired is not cached", 30 * time.Second, time.Hour, 0},
		{"already expired", -time.Minute, time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, entryTTL(now.Add(tt.expiresIn), now, tt.maxTTL))
		})
	}
}

func TestNoOpCache_AlwaysMisses(t *testing.T) {
	var c URLCache = NoOpCache{}
	ctx := context.Background()
	assert.NoError(t, c.SetReadURL(ctx, "k", CachedURL{URL: "u", ExpiresAt: time.Now().Add(time.Hour)}))
	_, err := c.GetReadURL(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
