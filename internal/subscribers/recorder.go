package subscribers

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/stats"
	"go.uber.org/zap"
)

// HistoryKey is the sorted set holding one subscriber sample per day,
// member = date, score = count.
const HistoryKey = "subscriberCount"

// Recorder samples the community's subscriber count once a day.
type Recorder struct {
	store     *stats.Store
	community platform.Community
	logger    *zap.Logger
}

func NewRecorder(store *stats.Store, community platform.Community, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:     store,
		community: community,
		logger:    logger.Named("subscribers"),
	}
}

// Record is the scheduled job entrypoint. Re-running on the same day
// overwrites that day's sample.
func (r *Recorder) Record(ctx context.Context, _ []byte) error {
	sub, err := r.community.GetSubreddit(ctx)
	if err != nil {
		return err
	}

	today := time.Now().UTC().Format(stats.DateFormat)

	if err := r.store.Set(ctx, HistoryKey, stats.Entry{
		Member: today,
		Score:  sub.Subscribers,
	}); err != nil {
		return err
	}

	r.logger.Info("Subscriber count stored",
		zap.String("date", today),
		zap.Int64("subscribers", sub.Subscribers))

	return nil
}

// Counts returns the full recorded history in date order.
func (r *Recorder) Counts(ctx context.Context) ([]stats.Entry, error) {
	counts, err := r.store.Members(ctx, HistoryKey)
	if err != nil {
		return nil, err
	}

	// Members come back score-ordered; dates sort lexicographically.
	slices.SortFunc(counts, func(a, b stats.Entry) int {
		return strings.Compare(a.Member, b.Member)
	})

	return counts, nil
}
