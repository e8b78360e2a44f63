// Package votes reconciles stored post scores against the platform's
// eventually consistent vote counts, recomputing post-type and domain
// tallies for a month across one or more resumable job invocations.
package votes

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redlytics/redlytics/internal/jobs"
	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/scheduler"
	"github.com/redlytics/redlytics/internal/stats"
	"go.uber.org/zap"
)

// Run modes select which month's scores a logical run reconciles.
const (
	RunModeToday     = "today"
	RunModeYesterday = "yesterday"
	RunModeLastMonth = "lastmonth"
)

const (
	rescheduleDelay = 30 * time.Second
	runMarkerTTL    = 15 * time.Minute
)

// OwnDomains lists the platform's own media hosts. Links to them describe
// the post itself rather than an outbound destination, so they stay out of
// the domain tally.
var OwnDomains = []string{"i.redd.it", "v.redd.it"}

// Payload carries the run mode and, on continuations, the unresolved
// remainder of the post ID work list.
type Payload struct {
	RunMode string   `json:"runMode,omitempty"`
	PostIDs []string `json:"postIds,omitempty"`
}

// Job recalculates post scores for a month. The first invocation of a
// logical run clears the month's type and domain tallies and resolves as
// many posts as possible from one bulk top-posts call; every invocation
// then resolves a bounded batch individually and reschedules itself until
// the work list drains.
type Job struct {
	store         *stats.Store
	posts         platform.Posts
	scheduler     scheduler.Scheduler
	batchSize     int
	snapshotLimit int
	ownDomains    []string
	logger        *zap.Logger
}

// NewJob wires the vote reconciliation job. ownDomains lists hostnames
// excluded from the domain tally, typically the platform's media hosts.
func NewJob(
	store *stats.Store,
	posts platform.Posts,
	sched scheduler.Scheduler,
	batchSize, snapshotLimit int,
	ownDomains []string,
	logger *zap.Logger,
) *Job {
	return &Job{
		store:         store,
		posts:         posts,
		scheduler:     sched,
		batchSize:     batchSize,
		snapshotLimit: snapshotLimit,
		ownDomains:    ownDomains,
		logger:        logger.Named("votes"),
	}
}

// Run is the scheduled job entrypoint.
func (j *Job) Run(ctx context.Context, data []byte) error {
	var payload Payload
	if len(data) > 0 {
		if err := sonic.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}

	if payload.RunMode == "" {
		payload.RunMode = RunModeYesterday
	}

	now := time.Now().UTC()
	month := targetMonth(payload.RunMode, now)
	tally := newTally()

	remaining := payload.PostIDs

	if len(remaining) == 0 {
		acquired, err := j.store.SetValueIfAbsent(
			ctx, runMarkerKey(month), now.Format(time.RFC3339), runMarkerTTL,
		)
		if err != nil {
			return err
		}

		if !acquired {
			j.logger.Warn("Another reconciliation run is in flight, skipping",
				zap.String("month", month.Format(stats.MonthFormat)))

			return nil
		}

		remaining, err = j.startRun(ctx, month, payload.RunMode, now, tally)
		if err != nil {
			return err
		}
	}

	// Resolve a bounded batch individually.
	batch := remaining
	if len(batch) > j.batchSize {
		batch = batch[:j.batchSize]
	}

	for _, postID := range batch {
		post, err := j.posts.GetPostByID(ctx, postID)
		if err != nil {
			j.logger.Warn("Failed to fetch post, skipping",
				zap.String("postID", postID),
				zap.Error(err))

			continue
		}

		j.tallyPost(post, tally)
	}

	remaining = remaining[len(batch):]

	if err := j.flush(ctx, month, tally); err != nil {
		return err
	}

	if len(remaining) == 0 {
		return j.store.DeleteValue(ctx, runMarkerKey(month))
	}

	j.logger.Info("Scores still needed, queuing further check",
		zap.Int("remaining", len(remaining)))

	followUp, err := sonic.Marshal(Payload{
		RunMode: payload.RunMode,
		PostIDs: remaining,
	})
	if err != nil {
		return err
	}

	_, err = j.scheduler.RunJob(ctx, scheduler.Job{
		Name:  jobs.CalculatePostVotes,
		RunAt: time.Now().Add(rescheduleDelay),
		Data:  followUp,
	})

	return err
}

// startRun is the no-continuation branch: clear the month's tallies, list
// the tracked posts, and resolve what the bulk top-posts snapshot covers.
// It returns the IDs the snapshot could not resolve.
func (j *Job) startRun(
	ctx context.Context, month time.Time, runMode string, now time.Time, tally *monthTally,
) ([]string, error) {
	if err := j.store.DeleteBucket(ctx, stats.BucketKey(stats.MetricPostTypeCount, month)); err != nil {
		return nil, err
	}

	if err := j.store.DeleteBucket(ctx, stats.BucketKey(stats.MetricDomainCount, month)); err != nil {
		return nil, err
	}

	tracked, err := j.store.Members(ctx, stats.BucketKey(stats.MetricPostVotes, month))
	if err != nil {
		return nil, err
	}

	if len(tracked) == 0 {
		return nil, nil
	}

	top, err := j.posts.GetTopPosts(ctx, bulkTimeframe(runMode, now), j.snapshotLimit)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*platform.PostSnapshot, len(top))
	for _, post := range top {
		byID[post.ID] = post
	}

	var remaining []string

	for _, entry := range tracked {
		post, ok := byID[entry.Member]
		if !ok {
			remaining = append(remaining, entry.Member)
			continue
		}

		j.tallyPost(post, tally)
	}

	j.logger.Info("Grabbed scores from top posts list",
		zap.Int("resolved", len(tracked)-len(remaining)),
		zap.Int("remaining", len(remaining)))

	return remaining, nil
}

// flush merges the pass's tallies additively into the month's buckets and
// upserts the resolved scores.
func (j *Job) flush(ctx context.Context, month time.Time, tally *monthTally) error {
	if len(tally.scores) > 0 {
		votesKey := stats.BucketKey(stats.MetricPostVotes, month)
		if err := j.store.Set(ctx, votesKey, tally.scores...); err != nil {
			return err
		}
	}

	typeKey := stats.BucketKey(stats.MetricPostTypeCount, month)
	for _, tag := range []string{"nsfw", "spoiler", "self", "total"} {
		if _, err := j.store.Increment(ctx, typeKey, tag, tally.types[tag]); err != nil {
			return err
		}
	}

	domainKey := stats.BucketKey(stats.MetricDomainCount, month)
	for domain, count := range tally.domains {
		if _, err := j.store.Increment(ctx, domainKey, domain, count); err != nil {
			return err
		}
	}

	return nil
}

func (j *Job) tallyPost(post *platform.PostSnapshot, tally *monthTally) {
	tally.scores = append(tally.scores, stats.Entry{
		Member: post.ID,
		Score:  post.Score,
	})

	tally.types["total"]++

	if post.NSFW {
		tally.types["nsfw"]++
	}

	if post.Spoiler {
		tally.types["spoiler"]++
	}

	if isSelfPost(post) {
		tally.types["self"]++
		return
	}

	if post.URL == "" {
		return
	}

	domain, err := domainFromURL(post.URL)
	if err != nil {
		j.logger.Warn("Failed to parse domain from post URL",
			zap.String("postID", post.ID),
			zap.String("url", post.URL),
			zap.Error(err))

		return
	}

	if slices.Contains(j.ownDomains, domain) {
		return
	}

	tally.domains[domain]++
}

type monthTally struct {
	scores  []stats.Entry
	types   map[string]int64
	domains map[string]int64
}

func newTally() *monthTally {
	return &monthTally{
		types:   make(map[string]int64),
		domains: make(map[string]int64),
	}
}

func runMarkerKey(month time.Time) string {
	return "votesRun~" + month.Format(stats.MonthFormat)
}

func targetMonth(runMode string, now time.Time) time.Time {
	switch runMode {
	case RunModeToday:
		return stats.MonthStart(now)
	case RunModeLastMonth:
		return stats.MonthStart(now).AddDate(0, -1, 0)
	default:
		return stats.MonthStart(now.AddDate(0, 0, -1))
	}
}

// bulkTimeframe narrows the top-posts window early in a month, when a
// weekly listing already covers every day reconciled so far.
func bulkTimeframe(runMode string, now time.Time) platform.Timeframe {
	if runMode == RunModeLastMonth {
		return platform.TimeframeMonth
	}

	if now.Day() < 7 {
		return platform.TimeframeWeek
	}

	return platform.TimeframeMonth
}

// isSelfPost mirrors the platform's convention of self posts pointing at
// their own permalink.
func isSelfPost(post *platform.PostSnapshot) bool {
	return post.Permalink != "" && strings.Contains(post.URL, post.Permalink)
}
