// Package modcache caches the community's moderator roster. The roster is
// fetched once, kept until a moderation action changes permissions, and
// invalidated explicitly rather than expiring on a timer.
package modcache

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/redlytics/redlytics/internal/platform"
	"go.uber.org/zap"
)

const cacheKey = "cachedModList"

// Cache is an injected moderator-list cache backed by the shared store.
type Cache struct {
	client rueidis.Client
	mods   platform.Moderation
	logger *zap.Logger
}

// New creates a moderator cache over the given client and roster source.
func New(client rueidis.Client, mods platform.Moderation, logger *zap.Logger) *Cache {
	return &Cache{
		client: client,
		mods:   mods,
		logger: logger.Named("modcache"),
	}
}

// GetOrPopulate returns the cached moderator list, fetching and caching the
// roster on a miss.
func (c *Cache) GetOrPopulate(ctx context.Context) ([]string, error) {
	cached, err := c.client.Do(ctx, c.client.B().Get().Key(cacheKey).Build()).ToString()
	if err == nil {
		var moderators []string
		if err := sonic.UnmarshalString(cached, &moderators); err == nil {
			return moderators, nil
		}

		// Unreadable cache entry, fall through to a fresh fetch.
		c.logger.Warn("Discarding unreadable cached mod list")
	} else if !rueidis.IsRedisNil(err) {
		return nil, err
	}

	moderators, err := c.mods.GetModerators(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := sonic.MarshalString(moderators)
	if err != nil {
		return nil, err
	}

	if err := c.client.Do(ctx,
		c.client.B().Set().Key(cacheKey).Value(payload).Build(),
	).Error(); err != nil {
		return nil, err
	}

	return moderators, nil
}

// IsModerator reports whether the username is on the cached roster.
func (c *Cache) IsModerator(ctx context.Context, username string) (bool, error) {
	moderators, err := c.GetOrPopulate(ctx)
	if err != nil {
		return false, err
	}

	for _, mod := range moderators {
		if strings.EqualFold(mod, username) {
			return true, nil
		}
	}

	return false, nil
}

// Invalidate drops the cached roster. Called whenever a moderation action
// that changes moderator permissions is observed.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Del().Key(cacheKey).Build()).Error()
}
