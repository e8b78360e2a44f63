package report

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redlytics/redlytics/internal/platform"
	"go.uber.org/zap"
)

const (
	postCachePrefix = "cachedPost~"
	postCacheTTL    = 5 * time.Minute
)

// postDetails retrieves a post snapshot with a short-lived cache in front.
// Report builders look the same posts up from several sections within one
// run; the cache keeps that to one platform call per post.
func (p *Publisher) postDetails(ctx context.Context, postID string) (*platform.PostSnapshot, error) {
	key := postCachePrefix + postID

	if raw, ok, err := p.cache.GetValue(ctx, key); err != nil {
		return nil, err
	} else if ok {
		var details platform.PostSnapshot
		if err := sonic.Unmarshal([]byte(raw), &details); err == nil {
			return &details, nil
		}
	}

	details, err := p.posts.GetPostByID(ctx, postID)
	if err != nil {
		return nil, err
	}

	payload, err := sonic.Marshal(details)
	if err != nil {
		return nil, err
	}

	if err := p.cache.SetValue(ctx, key, string(payload), postCacheTTL); err != nil {
		p.logger.Warn("Failed to cache post details",
			zap.String("postID", postID),
			zap.Error(err))
	}

	return details, nil
}

// listed reports whether a post should appear in a top-posts list. Removed
// posts keep their vote entries but are hidden from reports.
func listed(post *platform.PostSnapshot) bool {
	return !post.Removed && post.RemovedBy == "" && post.RemovedByCategory == ""
}
