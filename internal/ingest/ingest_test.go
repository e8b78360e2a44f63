package ingest_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/redlytics/redlytics/internal/events"
	"github.com/redlytics/redlytics/internal/filtered"
	"github.com/redlytics/redlytics/internal/ingest"
	"github.com/redlytics/redlytics/internal/liveness"
	"github.com/redlytics/redlytics/internal/modcache"
	"github.com/redlytics/redlytics/internal/platform/platformtest"
	"github.com/redlytics/redlytics/internal/settings"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	handler  *ingest.Handler
	store    *stats.Store
	filtered *filtered.Reconciler
	fake     *platformtest.Fake
	mr       *miniredis.Miniredis
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
	fake := &platformtest.Fake{}
	reconciler := filtered.New(store, fake, 1000, logger)
	tracker := liveness.NewTracker(store, fake, 28, logger)
	mods := modcache.New(client, fake, logger)

	handler := ingest.New(store, store, fake, fake, mods, reconciler, tracker,
		"golang", logger)

	return &fixture{
		handler:  handler,
		store:    store,
		filtered: reconciler,
		fake:     fake,
		mr:       mr,
	}
}

func TestPostCreateCounts(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	createdAt := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_abc",
		Author:    "alice",
		CreatedAt: createdAt,
	}))

	month := stats.MonthStart(createdAt)

	day, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month), "15")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), day)

	byUser, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricUserPostCount, month), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), byUser)

	votes, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostVotes, month), "t3_abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), votes)

	// A liveness check was queued for the author.
	members, err := f.store.Members(ctx, "cleanupLog")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].Member)
}

func TestCommentCreateCounts(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("bob")
	createdAt := time.Now().UTC()

	require.NoError(t, f.handler.HandleCommentCreate(ctx, events.CommentCreate{
		ID:        "t1_xyz",
		Author:    "bob",
		CreatedAt: createdAt,
	}))

	month := stats.MonthStart(createdAt)

	count, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricCommentCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), count)

	// Comments carry no vote entry.
	_, ok, err = f.store.Get(ctx, stats.BucketKey(stats.MetricPostVotes, month), "t1_xyz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSpamPostTrackedNotCounted(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	createdAt := time.Now().UTC()

	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_spam",
		Author:    "alice",
		CreatedAt: createdAt,
		Spam:      true,
	}))

	tracked, err := f.filtered.WasFiltered(ctx, "t3_spam")
	require.NoError(t, err)
	assert.True(t, tracked)

	month := stats.MonthStart(createdAt)
	_, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIgnoredAuthorsNotCounted(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("AutoModerator")
	f.fake.AddUser("golang-ModTeam")
	f.fake.AddUser("blocklisted")
	f.fake.SettingsMap = map[string]any{
		settings.KeyUserIgnoreList: "blocklisted",
	}

	createdAt := time.Now().UTC()
	month := stats.MonthStart(createdAt)

	for _, author := range []string{"AutoModerator", "golang-ModTeam", "blocklisted"} {
		require.NoError(t, f.handler.HandleCommentCreate(ctx, events.CommentCreate{
			ID:        "t1_" + author,
			Author:    author,
			CreatedAt: createdAt,
		}))
	}

	_, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricCommentCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllModeratorsIgnored(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("modperson")
	f.fake.Moderators = []string{"modperson"}
	f.fake.SettingsMap = map[string]any{
		settings.KeyIgnoreAllModerators: true,
	}

	createdAt := time.Now().UTC()

	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_mod",
		Author:    "modperson",
		CreatedAt: createdAt,
	}))

	month := stats.MonthStart(createdAt)
	_, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricUserPostCount, month), "modperson")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShadowbannedAuthorNotCounted(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	// "ghost" is never added to the fake, so the profile lookup fails.
	createdAt := time.Now().UTC()

	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_ghost",
		Author:    "ghost",
		CreatedAt: createdAt,
	}))

	month := stats.MonthStart(createdAt)
	_, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	assert.False(t, ok)

	// The negative result is cached; a second event does not re-query.
	lookups := f.fake.UserLookups
	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_ghost2",
		Author:    "ghost",
		CreatedAt: createdAt,
	}))
	assert.Equal(t, lookups, f.fake.UserLookups)
}

func TestDuplicateCreateCountedOnce(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	createdAt := time.Now().UTC()
	ev := events.PostCreate{ID: "t3_dup", Author: "alice", CreatedAt: createdAt}

	require.NoError(t, f.handler.HandlePostCreate(ctx, ev))
	require.NoError(t, f.handler.HandlePostCreate(ctx, ev))

	month := stats.MonthStart(createdAt)
	count, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), count)
}

func TestDeleteReversesCounts(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	createdAt := time.Now().UTC()

	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_del",
		Author:    "alice",
		CreatedAt: createdAt,
	}))

	require.NoError(t, f.handler.HandlePostDelete(ctx, events.PostDelete{
		ID:     "t3_del",
		Source: events.SourceUser,
	}))

	month := stats.MonthStart(createdAt)

	// Drained counters are removed entirely, not left at zero.
	_, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.store.Get(ctx, stats.BucketKey(stats.MetricUserPostCount, month), "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = f.store.Get(ctx, stats.BucketKey(stats.MetricPostVotes, month), "t3_del")
	require.NoError(t, err)
	assert.False(t, ok)

	// Author deletions are not filtered-item candidates.
	tracked, err := f.filtered.WasFiltered(ctx, "t3_del")
	require.NoError(t, err)
	assert.False(t, tracked)
}

func TestDeleteTwiceIsNoop(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	f.fake.AddUser("bob")
	createdAt := time.Now().UTC()

	for _, id := range []string{"t3_keep1", "t3_keep2"} {
		require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
			ID:        id,
			Author:    "bob",
			CreatedAt: createdAt,
		}))
	}

	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_gone",
		Author:    "alice",
		CreatedAt: createdAt,
	}))

	del := events.PostDelete{ID: "t3_gone", Source: events.SourceUser}
	require.NoError(t, f.handler.HandlePostDelete(ctx, del))
	require.NoError(t, f.handler.HandlePostDelete(ctx, del))

	// The replayed deletion must not eat into other posts' day count.
	month := stats.MonthStart(createdAt)
	count, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), count)
}

func TestModeratorRemovalTracksFiltered(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	createdAt := time.Now().UTC()

	require.NoError(t, f.handler.HandleCommentCreate(ctx, events.CommentCreate{
		ID:        "t1_rm",
		Author:    "alice",
		CreatedAt: createdAt,
	}))

	require.NoError(t, f.handler.HandleCommentDelete(ctx, events.CommentDelete{
		ID:     "t1_rm",
		Source: events.SourceModerator,
	}))

	tracked, err := f.filtered.WasFiltered(ctx, "t1_rm")
	require.NoError(t, err)
	assert.True(t, tracked)
}

func TestApprovalRecountsFilteredItem(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	createdAt := time.Date(2026, time.February, 3, 8, 0, 0, 0, time.UTC)

	require.NoError(t, f.handler.HandlePostCreate(ctx, events.PostCreate{
		ID:        "t3_appr",
		Author:    "alice",
		CreatedAt: createdAt,
		Spam:      true,
	}))

	require.NoError(t, f.handler.HandleModAction(ctx, events.ModAction{
		Action:          events.ActionApproveLink,
		TargetID:        "t3_appr",
		TargetAuthor:    "alice",
		TargetCreatedAt: createdAt,
		TargetIsPost:    true,
	}))

	// Counted under the original creation month and day.
	month := stats.MonthStart(createdAt)
	count, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month), "03")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), count)

	// No longer tracked, so a replayed approval is a no-op.
	require.NoError(t, f.handler.HandleModAction(ctx, events.ModAction{
		Action:          events.ActionApproveLink,
		TargetID:        "t3_appr",
		TargetAuthor:    "alice",
		TargetCreatedAt: createdAt,
		TargetIsPost:    true,
	}))

	count, _, err = f.store.Get(ctx, stats.BucketKey(stats.MetricPostCount, month), "03")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUntrackedApprovalIsNoop(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.AddUser("alice")
	createdAt := time.Now().UTC()

	require.NoError(t, f.handler.HandleModAction(ctx, events.ModAction{
		Action:          events.ActionApproveComment,
		TargetID:        "t1_never",
		TargetAuthor:    "alice",
		TargetCreatedAt: createdAt,
	}))

	month := stats.MonthStart(createdAt)
	_, ok, err := f.store.Get(ctx, stats.BucketKey(stats.MetricCommentCount, month),
		stats.DayMember(createdAt))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestModeratorChangeRefreshesCache(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	f.fake.Moderators = []string{"oldmod"}
	f.mr.Set("cachedModList", `["oldmod"]`)

	require.NoError(t, f.handler.HandleModAction(ctx, events.ModAction{
		Action:    events.ActionAddModerator,
		Moderator: "newmod",
	}))

	cached, err := f.mr.Get("cachedModList")
	require.NoError(t, err)
	assert.Contains(t, cached, "oldmod")
}
