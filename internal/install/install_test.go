package install_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/redlytics/redlytics/internal/events"
	"github.com/redlytics/redlytics/internal/install"
	"github.com/redlytics/redlytics/internal/jobs"
	"github.com/redlytics/redlytics/internal/liveness"
	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/platform/platformtest"
	"github.com/redlytics/redlytics/internal/scheduler/schedulertest"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/redlytics/redlytics/internal/subscribers"
	"github.com/redlytics/redlytics/internal/votes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	lifecycle *install.Lifecycle
	store     *stats.Store
	fake      *platformtest.Fake
	sched     *schedulertest.Fake
}

func setupTest(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	logger := zap.NewNop()
	store := stats.NewStore(client, logger)
	fake := &platformtest.Fake{
		Sub: platform.Subreddit{Name: "golang", Subscribers: 500},
	}
	sched := &schedulertest.Fake{}

	tracker := liveness.NewTracker(store, fake, 28, logger)
	livenessJobs := liveness.NewJobs(tracker, store, sched, 50, 8, logger)
	recorder := subscribers.NewRecorder(store, fake, logger)
	voteJob := votes.NewJob(store, fake, sched, 50, 1000, nil, logger)

	lifecycle := install.New(store, sched, livenessJobs, recorder, voteJob,
		fake, fake, logger)

	return &fixture{lifecycle: lifecycle, store: store, fake: fake, sched: sched}
}

func TestHandleInstall(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	installedAt := time.Now().UTC()
	require.NoError(t, f.lifecycle.HandleInstall(ctx, events.AppInstall{At: installedAt}))

	// Install date is recorded.
	date, ok, err := f.store.InstallDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, installedAt.Format(stats.DateFormat), date.Format(stats.DateFormat))

	// Bootstrap tasks queued and a full recurring schedule laid out.
	assert.Len(t, f.sched.Scheduled(jobs.InitialInstallTasks), 1)
	assert.Len(t, f.sched.Scheduled(jobs.CleanupFilteredStore), 1)
	assert.Len(t, f.sched.Scheduled(jobs.CleanupDeletedAccounts), 1)
	assert.Len(t, f.sched.Scheduled(jobs.CleanupTopAccounts), 1)
	assert.Len(t, f.sched.Scheduled(jobs.RecordSubscriberCount), 1)
	assert.Len(t, f.sched.Scheduled(jobs.CalculatePostVotes), 3)
	assert.Len(t, f.sched.Scheduled(jobs.UpdateReportEndOfYear), 1)
	assert.Len(t, f.sched.Scheduled(jobs.UpdatePagePermissions), 1)

	// End-of-day report: one recurring cron plus an immediate refresh.
	endOfDay := f.sched.Scheduled(jobs.UpdateReportEndOfDay)
	require.Len(t, endOfDay, 2)
}

func TestInstallDateSetOnlyOnce(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	first := time.Now().UTC().AddDate(0, 0, -10)
	require.NoError(t, f.store.RecordInstallDate(ctx, first))

	require.NoError(t, f.lifecycle.HandleInstall(ctx, events.AppInstall{At: time.Now().UTC()}))

	date, ok, err := f.store.InstallDate(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Format(stats.DateFormat), date.Format(stats.DateFormat))
}

func TestUpgradeCancelsAndReschedules(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	require.NoError(t, f.lifecycle.HandleUpgrade(ctx, events.AppUpgrade{At: time.Now()}))
	initial := len(f.sched.Entries)

	require.NoError(t, f.lifecycle.HandleUpgrade(ctx, events.AppUpgrade{At: time.Now()}))

	// The second upgrade cancels the first schedule before recreating it.
	assert.Equal(t, initial, len(f.sched.Entries))
}

func TestRunInitialTasks(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	post := &platform.PostSnapshot{
		ID:        "t3_seed",
		Score:     42,
		CreatedAt: time.Now().UTC(),
		Permalink: "/r/golang/comments/t3_seed",
		URL:       "https://example.com/x",
	}
	f.fake.TopPosts = []*platform.PostSnapshot{post}

	require.NoError(t, f.lifecycle.RunInitialTasks(ctx, nil))

	// First subscriber sample taken.
	today := time.Now().UTC().Format(stats.DateFormat)
	count, ok, err := f.store.Get(ctx, subscribers.HistoryKey, today)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(500), count)

	// Current month's post scores seeded.
	month := stats.MonthStart(time.Now().UTC())
	score, ok, err := f.store.Get(ctx,
		stats.BucketKey(stats.MetricPostVotes, month), "t3_seed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), score)

	// Welcome modmail sent.
	require.Len(t, f.fake.Modmail, 1)
	assert.Contains(t, f.fake.Modmail[0], "Welcome")
}
