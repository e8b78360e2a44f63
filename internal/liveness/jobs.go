package liveness

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redlytics/redlytics/internal/jobs"
	"github.com/redlytics/redlytics/internal/scheduler"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// adhocLead is the slack applied around ad-hoc wake-up decisions: a
// follow-up run is placed shortly after the next due entry, and skipped
// entirely when the fixed nightly run is already close enough.
const adhocLead = 5 * time.Minute

// leaderboardScan is how deep each month's rankings are read when deciding
// which accounts may appear on a leaderboard.
const leaderboardScan = 100

// Jobs drives the tracker from the scheduler.
type Jobs struct {
	tracker   *Tracker
	store     *stats.Store
	scheduler scheduler.Scheduler
	batchSize int
	topN      int
	logger    *zap.Logger
}

// NewJobs wires the cleanup jobs. batchSize bounds account lookups per run;
// topN is the leaderboard depth the secondary sweep re-validates.
func NewJobs(tracker *Tracker, store *stats.Store, sched scheduler.Scheduler, batchSize, topN int, logger *zap.Logger) *Jobs {
	return &Jobs{
		tracker:   tracker,
		store:     store,
		scheduler: sched,
		batchSize: batchSize,
		topN:      topN,
		logger:    logger.Named("liveness"),
	}
}

type runPayload struct {
	RunDate string `json:"runDate,omitempty"`
}

// CleanupDeletedAccounts is the scheduled sweep over due pending checks.
// More due entries than one batch triggers an immediate follow-up run;
// otherwise the next wake-up is placed ad hoc if it beats the fixed cron.
func (j *Jobs) CleanupDeletedAccounts(ctx context.Context, data []byte) error {
	if len(data) > 0 {
		var payload runPayload
		if err := sonic.Unmarshal(data, &payload); err == nil && payload.RunDate != "" {
			j.logger.Info("Starting cleanup job", zap.String("scheduledFor", payload.RunDate))
		}
	} else {
		j.logger.Info("Starting cleanup job")
	}

	due, total, err := j.tracker.DueChecks(ctx, j.batchSize)
	if err != nil {
		return err
	}

	if len(due) == 0 {
		return j.ScheduleAdhocCleanup(ctx)
	}

	if err := j.tracker.CheckAccounts(ctx, due); err != nil {
		return err
	}

	if total > j.batchSize {
		_, err := j.scheduler.RunJob(ctx, scheduler.Job{
			Name:  jobs.CleanupDeletedAccounts,
			RunAt: time.Now(),
		})

		return err
	}

	return j.ScheduleAdhocCleanup(ctx)
}

// ScheduleAdhocCleanup places a one-shot cleanup run shortly after the next
// pending check falls due, unless the fixed nightly schedule fires soon
// enough anyway.
func (j *Jobs) ScheduleAdhocCleanup(ctx context.Context) error {
	nextDue, ok, err := j.tracker.NextDue(ctx)
	if err != nil || !ok {
		return err
	}

	adhocAt := nextDue.Add(adhocLead)

	nextScheduled, err := scheduler.NextCron(jobs.CleanupCron, time.Now())
	if err != nil {
		return err
	}

	if !adhocAt.Before(nextScheduled.Add(-adhocLead)) {
		j.logger.Info("Next cleanup covered by fixed schedule",
			zap.Time("nextDue", nextDue),
			zap.Time("nextScheduled", nextScheduled))

		return nil
	}

	payload, err := sonic.Marshal(runPayload{RunDate: adhocAt.UTC().Format(time.RFC1123)})
	if err != nil {
		return err
	}

	j.logger.Info("Scheduling ad-hoc cleanup", zap.Time("runAt", adhocAt))

	_, err = j.scheduler.RunJob(ctx, scheduler.Job{
		Name:  jobs.CleanupDeletedAccounts,
		RunAt: adhocAt,
		Data:  payload,
	})

	return err
}

// CleanupTopAccounts re-validates every account that may appear on a
// leaderboard, regardless of due time. Publicly visible rankings get
// priority over the 28-day cadence.
func (j *Jobs) CleanupTopAccounts(ctx context.Context, _ []byte) error {
	now := time.Now()

	firstMonth := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	if installDate, ok, err := j.store.InstallDate(ctx); err != nil {
		return err
	} else if ok {
		if installMonth := stats.MonthStart(installDate); installMonth.After(firstMonth) {
			firstMonth = installMonth
		}
	}

	months := stats.MonthsBetween(firstMonth, now)

	posters, err := j.monthlyRankings(ctx, stats.MetricUserPostCount, months)
	if err != nil {
		return err
	}

	commenters, err := j.monthlyRankings(ctx, stats.MetricUserCommentCount, months)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{})

	var toCheck []string

	add := func(member string) {
		if _, ok := seen[member]; !ok {
			seen[member] = struct{}{}
			toCheck = append(toCheck, member)
		}
	}

	// Top accounts for the year to date.
	for _, entry := range stats.Aggregate(flatten(posters), j.topN) {
		add(entry.Member)
	}

	for _, entry := range stats.Aggregate(flatten(commenters), j.topN) {
		add(entry.Member)
	}

	// Top accounts within each month.
	for _, batch := range [][][]stats.Entry{posters, commenters} {
		for _, month := range batch {
			for i, entry := range month {
				if i == j.topN {
					break
				}

				add(entry.Member)
			}
		}
	}

	j.logger.Info("Checking accounts that may appear on leaderboards",
		zap.Int("accounts", len(toCheck)))

	return j.tracker.CheckAccounts(ctx, toCheck)
}

// monthlyRankings reads one metric's rankings for every month in parallel.
func (j *Jobs) monthlyRankings(ctx context.Context, metric stats.Metric, months []time.Time) ([][]stats.Entry, error) {
	results := make([][]stats.Entry, len(months))

	p := pool.New().WithErrors().WithMaxGoroutines(resolveWorkers)

	for i, month := range months {
		p.Go(func() error {
			entries, err := j.store.TopN(ctx, stats.BucketKey(metric, month), leaderboardScan, true)
			if err != nil {
				return err
			}

			results[i] = entries

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func flatten(batches [][]stats.Entry) []stats.Entry {
	var all []stats.Entry
	for _, batch := range batches {
		all = append(all, batch...)
	}

	return all
}
