// Package cache remembers issued read URLs so repeated reads of the same
// video inside the URL lifetime return one stable URL.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when no usable entry exists.
var ErrCacheMiss = errors.New("read url not found in cache")

// minRemaining is the shortest lifetime worth caching.
const minRemaining = time.Minute

// CachedURL is a read URL and the instant it stops working.
type CachedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// URLCache stores read URLs keyed by storage key.
type URLCache interface {
	GetReadURL(ctx context.Context, storageKey string) (*CachedURL, error)
	SetReadURL(ctx context.Context, storageKey string, entry CachedURL) error
	DeleteReadURL(ctx context.Context, storageKey string) error
}

// NoOpCache never stores anything.
type NoOpCache struct{}

func (NoOpCache) GetReadURL(context.Context, string) (*CachedURL, error) { return nil, ErrCacheMiss }
func (NoOpCache) SetReadURL(context.Context, string, CachedURL) error    { return nil }
func (NoOpCache) DeleteReadURL(context.Context, string) error            { return nil }

// entryTTL caps maxTTL so the entry disappears while the URL still has a
// tenth of its remaining life (at least a minute) left. Zero means do not cache.
func entryTTL(expiresAt, now time.Time, maxTTL time.Duration) time.Duration {
	remaining := expiresAt.Sub(now)
	margin := remaining / 10
	if margin < minRemaining {
		margin = minRemaining
	}
	ttl := remaining - margin
	if maxTTL > 0 && ttl > maxTTL {
		ttl = maxTTL
	}
	if ttl <= 0 {
		return 0
	}
	return ttl
}
