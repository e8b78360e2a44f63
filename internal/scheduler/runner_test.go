package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/redlytics/redlytics/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRunner(t *testing.T) *scheduler.Runner {
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

	return scheduler.NewRunner(client, zap.NewNop())
}

func TestRunJobValidation(t *testing.T) {
	t.Parallel()

	runner := setupRunner(t)
	runner.Register("known", func(context.Context, []byte) error { return nil })

	ctx := t.Context()

	_, err := runner.RunJob(ctx, scheduler.Job{Name: "known"})
	require.ErrorIs(t, err, scheduler.ErrInvalidJobRequest)

	_, err = runner.RunJob(ctx, scheduler.Job{Name: "unknown", RunAt: time.Now()})
	require.ErrorIs(t, err, scheduler.ErrNoHandler)

	_, err = runner.RunJob(ctx, scheduler.Job{Name: "known", Cron: "not a cron"})
	require.Error(t, err)
}

func TestListAndCancel(t *testing.T) {
	t.Parallel()

	runner := setupRunner(t)
	runner.Register("daily", func(context.Context, []byte) error { return nil })

	ctx := t.Context()

	id, err := runner.RunJob(ctx, scheduler.Job{Name: "daily", Cron: "0 23 * * *"})
	require.NoError(t, err)

	jobs, err := runner.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "daily", jobs[0].Name)
	assert.True(t, jobs[0].Recurring())

	require.NoError(t, runner.CancelJob(ctx, id))
	require.ErrorIs(t, runner.CancelJob(ctx, id), scheduler.ErrJobNotFound)

	jobs, err = runner.ListJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestOneShotDispatch(t *testing.T) {
	t.Parallel()

	runner := setupRunner(t)

	var ran atomic.Int32

	done := make(chan struct{})
	runner.Register("once", func(_ context.Context, data []byte) error {
		assert.Equal(t, `{"tag":1}`, string(data))
		if ran.Add(1) == 1 {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	go func() { _ = runner.Start(ctx) }()

	_, err := runner.RunJob(ctx, scheduler.Job{
		Name:  "once",
		RunAt: time.Now().Add(20 * time.Millisecond),
		Data:  []byte(`{"tag":1}`),
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}

	// One-shot jobs are removed after firing.
	require.Eventually(t, func() bool {
		jobs, err := runner.ListJobs(ctx)
		return err == nil && len(jobs) == 0
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), ran.Load())
}

func TestNextCron(t *testing.T) {
	t.Parallel()

	after := time.Date(2024, time.March, 10, 22, 0, 0, 0, time.UTC)

	next, err := scheduler.NextCron("0 23 * * *", after)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 10, 23, 0, 0, 0, time.UTC), next)

	_, err = scheduler.NextCron("bogus", after)
	require.Error(t, err)
}
