// Package filtered tracks content provisionally removed by spam filters
// until a human moderation outcome is known. Items are held with a due time;
// the sweep reclassifies everything due against a moderation queue snapshot.
package filtered

import (
	"context"
	"time"

	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/stats"
	"go.uber.org/zap"
)

const trackingKey = "filteredItems"

// ReviewDelay is how long an item stays tracked before the sweep considers
// it, giving moderators time to act on the queue entry.
const ReviewDelay = 48 * time.Hour

// Reconciler tracks filtered items and resolves them against the live
// moderation queue.
type Reconciler struct {
	store         *stats.Store
	moderation    platform.Moderation
	snapshotLimit int
	logger        *zap.Logger
}

// New creates a reconciler. snapshotLimit bounds the moderation queue
// snapshot fetched per sweep.
func New(store *stats.Store, moderation platform.Moderation, snapshotLimit int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:         store,
		moderation:    moderation,
		snapshotLimit: snapshotLimit,
		logger:        logger.Named("filtered"),
	}
}

// MarkFiltered starts tracking an item, due for reclassification after the
// review delay. Re-marking overwrites the due time.
func (r *Reconciler) MarkFiltered(ctx context.Context, thingID string) error {
	due := time.Now().Add(ReviewDelay).UnixMilli()

	return r.store.Set(ctx, trackingKey, stats.Entry{Member: thingID, Score: due})
}

// WasFiltered reports whether an item is currently tracked.
func (r *Reconciler) WasFiltered(ctx context.Context, thingID string) (bool, error) {
	_, ok, err := r.store.Get(ctx, trackingKey, thingID)

	return ok, err
}

// Remove stops tracking an item. Called when an approval event recounts it.
func (r *Reconciler) Remove(ctx context.Context, thingID string) error {
	_, err := r.store.RemoveMembers(ctx, trackingKey, thingID)

	return err
}

// Sweep drops every due item that is no longer present in the moderation
// queue: those were either genuinely removed or approved and recounted via
// the approval event path. Items still queued stay tracked.
func (r *Reconciler) Sweep(ctx context.Context) error {
	due, err := r.store.MembersDueBy(ctx, trackingKey, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	if len(due) == 0 {
		return nil
	}

	snapshot, err := r.moderation.GetModerationQueue(ctx, r.snapshotLimit)
	if err != nil {
		return err
	}

	queued := make(map[string]struct{}, len(snapshot))
	for _, item := range snapshot {
		queued[item.ID] = struct{}{}
	}

	var resolved []string

	for _, entry := range due {
		if _, ok := queued[entry.Member]; !ok {
			resolved = append(resolved, entry.Member)
		}
	}

	if len(resolved) == 0 {
		return nil
	}

	removed, err := r.store.RemoveMembers(ctx, trackingKey, resolved...)
	if err != nil {
		return err
	}

	r.logger.Info("Resolved filtered items",
		zap.Int64("removed", removed),
		zap.Int("due", len(due)))

	return nil
}
