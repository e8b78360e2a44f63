package votes

import (
	"context"
	"time"

	"github.com/redlytics/redlytics/internal/stats"
	"go.uber.org/zap"
)

// SeedCurrentMonth stores scores for the current month's top posts so the
// first report carries meaningful vote data instead of waiting a full day
// for the overnight reconciliation.
func (j *Job) SeedCurrentMonth(ctx context.Context) error {
	now := time.Now().UTC()

	top, err := j.posts.GetTopPosts(ctx, bulkTimeframe(RunModeToday, now), j.snapshotLimit)
	if err != nil {
		return err
	}

	month := stats.MonthStart(now)

	var entries []stats.Entry

	for _, post := range top {
		if post.CreatedAt.Before(month) {
			continue
		}

		entries = append(entries, stats.Entry{Member: post.ID, Score: post.Score})
	}

	if len(entries) == 0 {
		return nil
	}

	if err := j.store.Set(ctx, stats.BucketKey(stats.MetricPostVotes, month), entries...); err != nil {
		return err
	}

	j.logger.Info("Stored scores for current month's posts on install",
		zap.Int("posts", len(entries)))

	return nil
}
