package votes_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/redlytics/redlytics/internal/jobs"
	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/platform/platformtest"
	"github.com/redlytics/redlytics/internal/scheduler/schedulertest"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/redlytics/redlytics/internal/votes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	job   *votes.Job
	store *stats.Store
	fake  *platformtest.Fake
	sched *schedulertest.Fake
	mr    *miniredis.Miniredis
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

	store := stats.NewStore(client, zap.NewNop())
	fake := &platformtest.Fake{}
	sched := &schedulertest.Fake{}
	job := votes.NewJob(store, fake, sched, 50, 1000,
		[]string{"i.redd.it", "v.redd.it"}, zap.NewNop())

	return &fixture{job: job, store: store, fake: fake, sched: sched, mr: mr}
}

func postID(i int) string {
	return fmt.Sprintf("t3_%04d", i)
}

func addPost(f *fixture, id string, score int64, url string) *platform.PostSnapshot {
	post := &platform.PostSnapshot{
		ID:        id,
		Permalink: "/r/golang/comments/" + id,
		Score:     score,
		URL:       url,
		CreatedAt: time.Now().UTC(),
	}
	if url == "" {
		post.URL = "https://www.reddit.com" + post.Permalink
	}

	if f.fake.PostsByID == nil {
		f.fake.PostsByID = make(map[string]*platform.PostSnapshot)
	}
	f.fake.PostsByID[id] = post

	return post
}

// 120 tracked posts with 80 resolvable in bulk finish in a single run: the
// 40 left over fit inside the 50-post individual batch cap.
func TestRunFinishesWhenRemainderFitsBatch(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	month := stats.MonthStart(time.Now().UTC())
	votesKey := stats.BucketKey(stats.MetricPostVotes, month)

	for i := 0; i < 120; i++ {
		post := addPost(f, postID(i), int64(i+1), "https://example.com/"+postID(i))
		require.NoError(t, f.store.Set(ctx, votesKey, stats.Entry{Member: post.ID}))

		if i < 80 {
			f.fake.TopPosts = append(f.fake.TopPosts, post)
		}
	}

	payload, err := sonic.Marshal(votes.Payload{RunMode: votes.RunModeToday})
	require.NoError(t, err)
	require.NoError(t, f.job.Run(ctx, payload))

	// No follow-up invocation needed.
	assert.Empty(t, f.sched.Scheduled(jobs.CalculatePostVotes))

	// All 120 scores were upserted.
	score, ok, err := f.store.Get(ctx, votesKey, postID(119))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(120), score)

	total, ok, err := f.store.Get(ctx,
		stats.BucketKey(stats.MetricPostTypeCount, month), "total")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(120), total)

	domain, ok, err := f.store.Get(ctx,
		stats.BucketKey(stats.MetricDomainCount, month), "example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(120), domain)
}

// 200 posts unresolvable in bulk take four invocations at 50 per batch,
// each follow-up rescheduled 30 seconds out.
func TestRunReschedulesUntilDrained(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	month := stats.MonthStart(time.Now().UTC())
	votesKey := stats.BucketKey(stats.MetricPostVotes, month)

	for i := 0; i < 200; i++ {
		addPost(f, postID(i), 10, "https://example.com/"+postID(i))
		require.NoError(t, f.store.Set(ctx, votesKey, stats.Entry{Member: postID(i)}))
	}

	payload, err := sonic.Marshal(votes.Payload{RunMode: votes.RunModeToday})
	require.NoError(t, err)

	invocations := 0
	for len(payload) > 0 {
		invocations++
		require.LessOrEqual(t, invocations, 4, "job should drain in four invocations")

		before := len(f.sched.Scheduled(jobs.CalculatePostVotes))
		require.NoError(t, f.job.Run(ctx, payload))

		followUps := f.sched.Scheduled(jobs.CalculatePostVotes)
		if len(followUps) == before {
			payload = nil
			continue
		}

		next := followUps[len(followUps)-1]
		assert.WithinDuration(t, time.Now().Add(30*time.Second), next.RunAt, 5*time.Second)
		payload = next.Data
	}

	assert.Equal(t, 4, invocations)

	total, ok, err := f.store.Get(ctx,
		stats.BucketKey(stats.MetricPostTypeCount, month), "total")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), total)
}

func TestFirstPassClearsPriorTallies(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	month := stats.MonthStart(time.Now().UTC())
	typeKey := stats.BucketKey(stats.MetricPostTypeCount, month)

	// Stale tallies from a previous day.
	_, err := f.store.Increment(ctx, typeKey, "total", 99)
	require.NoError(t, err)

	post := addPost(f, "t3_only", 5, "https://example.com/a")
	f.fake.TopPosts = []*platform.PostSnapshot{post}
	require.NoError(t, f.store.Set(ctx,
		stats.BucketKey(stats.MetricPostVotes, month), stats.Entry{Member: "t3_only"}))

	payload, err := sonic.Marshal(votes.Payload{RunMode: votes.RunModeToday})
	require.NoError(t, err)
	require.NoError(t, f.job.Run(ctx, payload))

	total, ok, err := f.store.Get(ctx, typeKey, "total")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), total)
}

func TestConcurrentFirstPassSkipped(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	month := stats.MonthStart(time.Now().UTC())
	f.mr.Set("votesRun~"+month.Format(stats.MonthFormat), time.Now().Format(time.RFC3339))

	typeKey := stats.BucketKey(stats.MetricPostTypeCount, month)
	_, err := f.store.Increment(ctx, typeKey, "total", 7)
	require.NoError(t, err)

	payload, err := sonic.Marshal(votes.Payload{RunMode: votes.RunModeToday})
	require.NoError(t, err)
	require.NoError(t, f.job.Run(ctx, payload))

	// In-flight marker present: tallies were left alone.
	total, ok, err := f.store.Get(ctx, typeKey, "total")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), total)
}

func TestTallyClassification(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	month := stats.MonthStart(time.Now().UTC())
	votesKey := stats.BucketKey(stats.MetricPostVotes, month)

	self := addPost(f, "t3_self", 3, "")
	nsfw := addPost(f, "t3_nsfw", 4, "https://www.example.org/x")
	nsfw.NSFW = true
	media := addPost(f, "t3_media", 5, "https://i.redd.it/abc.jpg")
	relative := addPost(f, "t3_rel", 6, "/r/golang/comments/other")
	broken := addPost(f, "t3_bad", 7, "://not-a-url")

	f.fake.TopPosts = []*platform.PostSnapshot{self, nsfw, media, relative, broken}

	for _, id := range []string{"t3_self", "t3_nsfw", "t3_media", "t3_rel", "t3_bad"} {
		require.NoError(t, f.store.Set(ctx, votesKey, stats.Entry{Member: id}))
	}

	payload, err := sonic.Marshal(votes.Payload{RunMode: votes.RunModeToday})
	require.NoError(t, err)
	require.NoError(t, f.job.Run(ctx, payload))

	typeKey := stats.BucketKey(stats.MetricPostTypeCount, month)

	total, _, err := f.store.Get(ctx, typeKey, "total")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	selfCount, _, err := f.store.Get(ctx, typeKey, "self")
	require.NoError(t, err)
	assert.Equal(t, int64(1), selfCount)

	nsfwCount, _, err := f.store.Get(ctx, typeKey, "nsfw")
	require.NoError(t, err)
	assert.Equal(t, int64(1), nsfwCount)

	domainKey := stats.BucketKey(stats.MetricDomainCount, month)

	// www. stripped, media domain excluded, relative URL attributed to the
	// platform, broken URL skipped.
	exampleOrg, _, err := f.store.Get(ctx, domainKey, "example.org")
	require.NoError(t, err)
	assert.Equal(t, int64(1), exampleOrg)

	redditCom, _, err := f.store.Get(ctx, domainKey, "reddit.com")
	require.NoError(t, err)
	assert.Equal(t, int64(1), redditCom)

	_, ok, err := f.store.Get(ctx, domainKey, "i.redd.it")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeedCurrentMonth(t *testing.T) {
	t.Parallel()

	f := setupTest(t)
	ctx := t.Context()

	fresh := addPost(f, "t3_new", 12, "https://example.com/new")
	old := addPost(f, "t3_old", 40, "https://example.com/old")
	old.CreatedAt = time.Now().UTC().AddDate(0, -2, 0)

	f.fake.TopPosts = []*platform.PostSnapshot{fresh, old}

	require.NoError(t, f.job.SeedCurrentMonth(ctx))

	month := stats.MonthStart(time.Now().UTC())
	votesKey := stats.BucketKey(stats.MetricPostVotes, month)

	score, ok, err := f.store.Get(ctx, votesKey, "t3_new")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(12), score)

	_, ok, err = f.store.Get(ctx, votesKey, "t3_old")
	require.NoError(t, err)
	assert.False(t, ok)
}
