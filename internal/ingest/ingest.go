// Package ingest translates content and moderation events into counter
// mutations, with spam routing, ignore-list and shadowban filtering, and
// duplicate suppression through per-item processed markers.
package ingest

import (
	"context"
	"time"

	"github.com/redlytics/redlytics/internal/events"
	"github.com/redlytics/redlytics/internal/filtered"
	"github.com/redlytics/redlytics/internal/liveness"
	"github.com/redlytics/redlytics/internal/modcache"
	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/settings"
	"github.com/redlytics/redlytics/internal/stats"
	"go.uber.org/zap"
)

// Handler applies the per-item counting state machine:
// unseen → counted → (deleted | reconciled as filtered).
type Handler struct {
	stats     *stats.Store
	cache     *stats.Store
	users     platform.Users
	provider  platform.Settings
	mods      *modcache.Cache
	filtered  *filtered.Reconciler
	tracker   *liveness.Tracker
	subreddit string
	logger    *zap.Logger
}

var _ events.Handler = (*Handler)(nil)

// New wires the ingestion handler. The stats store and cache store are
// expected to target separate database indexes.
func New(
	statsStore, cacheStore *stats.Store,
	users platform.Users,
	provider platform.Settings,
	mods *modcache.Cache,
	reconciler *filtered.Reconciler,
	tracker *liveness.Tracker,
	subreddit string,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		stats:     statsStore,
		cache:     cacheStore,
		users:     users,
		provider:  provider,
		mods:      mods,
		filtered:  reconciler,
		tracker:   tracker,
		subreddit: subreddit,
		logger:    logger.Named("ingest"),
	}
}

// HandlePostCreate counts a newly submitted post.
func (h *Handler) HandlePostCreate(ctx context.Context, ev events.PostCreate) error {
	return h.handleCreate(ctx, ev.ID, ev.Author, ev.CreatedAt, ev.Spam, true)
}

// HandleCommentCreate counts a newly submitted comment.
func (h *Handler) HandleCommentCreate(ctx context.Context, ev events.CommentCreate) error {
	return h.handleCreate(ctx, ev.ID, ev.Author, ev.CreatedAt, ev.Spam, false)
}

// HandlePostDelete reverses a post's counts if it was counted.
func (h *Handler) HandlePostDelete(ctx context.Context, ev events.PostDelete) error {
	return h.handleDelete(ctx, ev.ID, ev.Source, true)
}

// HandleCommentDelete reverses a comment's counts if it was counted.
func (h *Handler) HandleCommentDelete(ctx context.Context, ev events.CommentDelete) error {
	return h.handleDelete(ctx, ev.ID, ev.Source, false)
}

// HandleModAction reacts to the moderation log. Approvals of tracked
// filtered items are recounted with their original attribution; moderator
// roster changes refresh the cached moderator list.
func (h *Handler) HandleModAction(ctx context.Context, ev events.ModAction) error {
	switch ev.Action {
	case events.ActionApproveLink, events.ActionApproveComment:
		return h.handleApproval(ctx, ev)
	case events.ActionAcceptModInvite, events.ActionAddModerator,
		events.ActionRemoveModerator, events.ActionInviteModerator,
		events.ActionSetPermissions, events.ActionReorderModerator:
		if err := h.mods.Invalidate(ctx); err != nil {
			return err
		}

		_, err := h.mods.GetOrPopulate(ctx)

		return err
	default:
		return nil
	}
}

func (h *Handler) handleCreate(
	ctx context.Context, thingID, author string, createdAt time.Time, spam, isPost bool,
) error {
	if spam {
		h.logger.Debug("Item caught by spam filter, tracking for review",
			zap.String("thingID", thingID))

		return h.filtered.MarkFiltered(ctx, thingID)
	}

	if counted, err := h.hasMarker(ctx, thingID); err != nil {
		return err
	} else if counted {
		h.logger.Debug("Duplicate creation event", zap.String("thingID", thingID))
		return nil
	}

	snap, err := settings.Load(ctx, h.provider)
	if err != nil {
		return err
	}

	skip, err := h.shouldIgnore(ctx, snap, author)
	if err != nil {
		return err
	}

	if skip {
		return nil
	}

	visible, err := h.authorVisible(ctx, author)
	if err != nil {
		return err
	}

	if !visible {
		h.logger.Debug("Author not visible, skipping",
			zap.String("username", author))

		return nil
	}

	month := stats.MonthStart(createdAt)

	dayMetric, userMetric := stats.MetricCommentCount, stats.MetricUserCommentCount
	if isPost {
		dayMetric, userMetric = stats.MetricPostCount, stats.MetricUserPostCount
	}

	if _, err := h.stats.Increment(
		ctx, stats.BucketKey(dayMetric, month), stats.DayMember(createdAt), 1,
	); err != nil {
		return err
	}

	if _, err := h.stats.Increment(
		ctx, stats.BucketKey(userMetric, month), author, 1,
	); err != nil {
		return err
	}

	if isPost {
		err := h.stats.Set(ctx, stats.BucketKey(stats.MetricPostVotes, month),
			stats.Entry{Member: thingID, Score: 0})
		if err != nil {
			return err
		}
	}

	if err := h.writeMarker(ctx, thingID, marker{
		Author:      author,
		CreatedDate: createdAt,
	}); err != nil {
		return err
	}

	return h.tracker.ScheduleChecks(ctx, []string{author})
}

func (h *Handler) handleDelete(
	ctx context.Context, thingID string, source events.DeleteSource, isPost bool,
) error {
	m, ok, err := h.readMarker(ctx, thingID)
	if err != nil {
		return err
	}

	if !ok {
		// Duplicate or stale delete, or the item was never counted.
		h.logger.Debug("Delete for untracked item", zap.String("thingID", thingID))
		return nil
	}

	month := stats.MonthStart(m.CreatedDate)

	dayMetric, userMetric := stats.MetricCommentCount, stats.MetricUserCommentCount
	if isPost {
		dayMetric, userMetric = stats.MetricPostCount, stats.MetricUserPostCount
	}

	if err := h.decrement(
		ctx, stats.BucketKey(dayMetric, month), stats.DayMember(m.CreatedDate),
	); err != nil {
		return err
	}

	if err := h.decrement(ctx, stats.BucketKey(userMetric, month), m.Author); err != nil {
		return err
	}

	if isPost {
		_, err := h.stats.RemoveMembers(
			ctx, stats.BucketKey(stats.MetricPostVotes, month), thingID,
		)
		if err != nil {
			return err
		}
	}

	if err := h.deleteMarker(ctx, thingID); err != nil {
		return err
	}

	if source.NonAuthor() {
		// Removed by a moderator or admin; it may resurface in the
		// moderation queue and be approved later.
		return h.filtered.MarkFiltered(ctx, thingID)
	}

	return nil
}

// handleApproval recounts a previously filtered item using its original
// author and creation time. Approvals of items never tracked as filtered
// are no-ops; they were either counted already or never seen.
func (h *Handler) handleApproval(ctx context.Context, ev events.ModAction) error {
	tracked, err := h.filtered.WasFiltered(ctx, ev.TargetID)
	if err != nil {
		return err
	}

	if !tracked {
		return nil
	}

	if err := h.filtered.Remove(ctx, ev.TargetID); err != nil {
		return err
	}

	h.logger.Info("Filtered item approved, counting",
		zap.String("thingID", ev.TargetID),
		zap.String("action", ev.Action))

	return h.handleCreate(ctx, ev.TargetID, ev.TargetAuthor, ev.TargetCreatedAt, false, ev.TargetIsPost)
}

// shouldIgnore applies the static ignore rules and, when enabled, the
// all-moderators rule against the cached moderator list.
func (h *Handler) shouldIgnore(ctx context.Context, snap settings.Snapshot, author string) (bool, error) {
	if snap.OnIgnoreList(author, h.subreddit) {
		return true, nil
	}

	if !snap.IgnoreAllModerators {
		return false, nil
	}

	isMod, err := h.mods.IsModerator(ctx, author)
	if err != nil {
		return false, err
	}

	return isMod, nil
}

// decrement lowers a counter by one and drops the member when it reaches
// zero so absent and zero are indistinguishable.
func (h *Handler) decrement(ctx context.Context, key, member string) error {
	score, err := h.stats.Increment(ctx, key, member, -1)
	if err != nil {
		return err
	}

	if score <= 0 {
		if _, err := h.stats.RemoveMembers(ctx, key, member); err != nil {
			return err
		}
	}

	return nil
}
