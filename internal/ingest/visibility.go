package ingest

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	visibilityPrefix = "userVisible~"
	visibilityTTL    = 7 * 24 * time.Hour
)

// authorVisible reports whether the author's profile is publicly reachable.
// Shadowbanned and suspended accounts fail the lookup and are treated as
// invisible. Results are cached for a week since visibility flips rarely.
func (h *Handler) authorVisible(ctx context.Context, username string) (bool, error) {
	key := visibilityPrefix + username

	if raw, ok, err := h.cache.GetValue(ctx, key); err != nil {
		return false, err
	} else if ok {
		visible, err := strconv.ParseBool(raw)
		if err == nil {
			return visible, nil
		}
		// Unreadable cache entry, fall through to a fresh lookup.
	}

	visible := true
	if _, err := h.users.GetUserByUsername(ctx, username); err != nil {
		visible = false
	}

	if err := h.cache.SetValue(ctx, key, strconv.FormatBool(visible), visibilityTTL); err != nil {
		h.logger.Warn("Failed to cache user visibility",
			zap.String("username", username),
			zap.Error(err))
	}

	return visible, nil
}
