package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redlytics/redlytics/internal/filtered"
	"github.com/redlytics/redlytics/internal/ingest"
	"github.com/redlytics/redlytics/internal/install"
	"github.com/redlytics/redlytics/internal/jobs"
	"github.com/redlytics/redlytics/internal/liveness"
	"github.com/redlytics/redlytics/internal/modcache"
	"github.com/redlytics/redlytics/internal/redis"
	"github.com/redlytics/redlytics/internal/report"
	"github.com/redlytics/redlytics/internal/scheduler"
	"github.com/redlytics/redlytics/internal/setup"
	"github.com/redlytics/redlytics/internal/subscribers"
	"github.com/redlytics/redlytics/internal/votes"
	"github.com/redlytics/redlytics/internal/webhook"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cmd := &cli.Command{
		Name:  "worker",
		Usage: "Start the redlytics aggregation worker",
		Action: func(ctx context.Context, _ *cli.Command) error {
			return start(ctx)
		},
	}

	return cmd.Run(context.Background(), os.Args)
}

// start wires every component and runs the job scheduler next to the event
// ingress until interrupted.
func start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp()
	if err != nil {
		return err
	}
	defer app.Cleanup()

	cfg := app.Config
	logger := app.Logger
	client := app.Reddit

	cacheClient, err := app.RedisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		return err
	}

	mods := modcache.New(cacheClient, client, logger)
	reconciler := filtered.New(app.Stats, client, cfg.Aggregate.ModQueueSnapshot, logger)
	tracker := liveness.NewTracker(app.Stats, client, cfg.Aggregate.LivenessIntervalDays, logger)
	livenessJobs := liveness.NewJobs(tracker, app.Stats, app.Runner,
		cfg.Aggregate.LivenessBatchSize, cfg.Aggregate.LeaderboardDepth, logger)
	recorder := subscribers.NewRecorder(app.Stats, client, logger)
	votesJob := votes.NewJob(app.Stats, client, app.Runner,
		cfg.Aggregate.VoteBatchSize, cfg.Aggregate.VoteSnapshot, votes.OwnDomains, logger)
	publisher := report.NewPublisher(app.Stats, app.Cache, client, client, client, client, recorder, logger)
	lifecycle := install.New(app.Stats, app.Runner, livenessJobs, recorder, votesJob, client, client, logger)
	handler := ingest.New(app.Stats, app.Cache, client, client, mods, reconciler, tracker,
		cfg.Reddit.Subreddit, logger)

	registerJobs(app.Runner, livenessJobs, reconciler, recorder, votesJob, publisher, lifecycle)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           webhook.NewServer(handler, lifecycle, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(func(ctx context.Context) error {
		return app.Runner.Start(ctx)
	})

	p.Go(func(_ context.Context) error {
		logger.Info("Event ingress listening", zap.String("addr", server.Addr))

		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	p.Go(func(ctx context.Context) error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	err = p.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func registerJobs(
	runner *scheduler.Runner,
	livenessJobs *liveness.Jobs,
	reconciler *filtered.Reconciler,
	recorder *subscribers.Recorder,
	votesJob *votes.Job,
	publisher *report.Publisher,
	lifecycle *install.Lifecycle,
) {
	runner.Register(jobs.CleanupDeletedAccounts, livenessJobs.CleanupDeletedAccounts)
	runner.Register(jobs.CleanupTopAccounts, livenessJobs.CleanupTopAccounts)
	runner.Register(jobs.CleanupFilteredStore, func(ctx context.Context, _ []byte) error {
		return reconciler.Sweep(ctx)
	})
	runner.Register(jobs.RecordSubscriberCount, recorder.Record)
	runner.Register(jobs.CalculatePostVotes, votesJob.Run)
	runner.Register(jobs.UpdateReportEndOfDay, publisher.UpdateEndOfDay)
	runner.Register(jobs.UpdateReportEndOfYear, publisher.UpdateEndOfYear)
	runner.Register(jobs.UpdatePagePermissions, publisher.UpdatePagePermissions)
	runner.Register(jobs.InitialInstallTasks, lifecycle.RunInitialTasks)
}
