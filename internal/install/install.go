// Package install handles the application lifecycle: recording the install
// date, laying out the recurring job schedule, and running the one-off
// bootstrap tasks a fresh install needs.
package install

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redlytics/redlytics/internal/events"
	"github.com/redlytics/redlytics/internal/jobs"
	"github.com/redlytics/redlytics/internal/liveness"
	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/report"
	"github.com/redlytics/redlytics/internal/scheduler"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/redlytics/redlytics/internal/subscribers"
	"github.com/redlytics/redlytics/internal/votes"
	"go.uber.org/zap"
)

// Seeder runs the vote store's install-time bootstrap.
type Seeder interface {
	SeedCurrentMonth(ctx context.Context) error
}

// Lifecycle responds to install and upgrade events.
type Lifecycle struct {
	store     *stats.Store
	scheduler scheduler.Scheduler
	liveness  *liveness.Jobs
	recorder  *subscribers.Recorder
	seeder    Seeder
	modmail   platform.Modmail
	community platform.Community
	logger    *zap.Logger
}

var _ events.Lifecycle = (*Lifecycle)(nil)

func New(
	store *stats.Store,
	sched scheduler.Scheduler,
	livenessJobs *liveness.Jobs,
	recorder *subscribers.Recorder,
	seeder Seeder,
	modmail platform.Modmail,
	community platform.Community,
	logger *zap.Logger,
) *Lifecycle {
	return &Lifecycle{
		store:     store,
		scheduler: sched,
		liveness:  livenessJobs,
		recorder:  recorder,
		seeder:    seeder,
		modmail:   modmail,
		community: community,
		logger:    logger.Named("install"),
	}
}

// HandleInstall runs on first install: record the install date once and
// queue the bootstrap tasks, then lay out the job schedule.
func (l *Lifecycle) HandleInstall(ctx context.Context, ev events.AppInstall) error {
	l.logger.Info("Initial install, recording install date")

	if err := l.store.RecordInstallDate(ctx, ev.At); err != nil {
		return err
	}

	if err := l.rescheduleJobs(ctx); err != nil {
		return err
	}

	// Queued after the reschedule so the full-cancel sweep cannot eat it.
	_, err := l.scheduler.RunJob(ctx, scheduler.Job{
		Name:  jobs.InitialInstallTasks,
		RunAt: time.Now(),
	})

	return err
}

// HandleUpgrade reschedules everything so schedule changes between
// versions take effect.
func (l *Lifecycle) HandleUpgrade(ctx context.Context, _ events.AppUpgrade) error {
	l.logger.Info("Upgrade detected, rescheduling jobs")

	return l.rescheduleJobs(ctx)
}

// rescheduleJobs cancels every scheduled job and recreates the full
// schedule from scratch.
func (l *Lifecycle) rescheduleJobs(ctx context.Context) error {
	current, err := l.scheduler.ListJobs(ctx)
	if err != nil {
		return err
	}

	for _, job := range current {
		if err := l.scheduler.CancelJob(ctx, job.ID); err != nil {
			return fmt.Errorf("cancel job %s: %w", job.ID, err)
		}
	}

	// A per-install random minute spreads hourly sweeps across many
	// installations sharing a backend.
	randomMinute := rand.Intn(60)
	l.logger.Info("Filtered item cleanup scheduled",
		zap.Int("minutePastHour", randomMinute))

	schedule := []scheduler.Job{
		{Name: jobs.CleanupFilteredStore, Cron: fmt.Sprintf("%d * * * *", randomMinute)},
		{Name: jobs.CleanupDeletedAccounts, Cron: jobs.CleanupCron},
		{Name: jobs.CleanupTopAccounts, Cron: jobs.TopAccountsCron},
		{Name: jobs.RecordSubscriberCount, Cron: jobs.SubscriberCountCron},
		{Name: jobs.UpdateReportEndOfDay, Cron: jobs.ReportEndOfDayCron},
		{Name: jobs.UpdateReportEndOfYear, Cron: jobs.ReportEndOfYearCron},
		{Name: jobs.UpdatePagePermissions, Cron: jobs.PagePermissionsCron},
	}

	votesSchedule := []struct {
		runMode string
		cron    string
	}{
		{votes.RunModeYesterday, jobs.PostVotesCron},
		{votes.RunModeToday, jobs.PostVotesMonthStartCron},
		{votes.RunModeLastMonth, jobs.PostVotesLastMonthCron},
	}

	for _, entry := range votesSchedule {
		payload, err := sonic.Marshal(votes.Payload{RunMode: entry.runMode})
		if err != nil {
			return err
		}

		schedule = append(schedule, scheduler.Job{
			Name: jobs.CalculatePostVotes,
			Cron: entry.cron,
			Data: payload,
		})
	}

	for _, job := range schedule {
		if _, err := l.scheduler.RunJob(ctx, job); err != nil {
			return fmt.Errorf("schedule %s: %w", job.Name, err)
		}
	}

	if err := l.liveness.ScheduleAdhocCleanup(ctx); err != nil {
		return err
	}

	// Refresh the report immediately so upgrades are visible without
	// waiting for the overnight run.
	_, err = l.scheduler.RunJob(ctx, scheduler.Job{
		Name:  jobs.UpdateReportEndOfDay,
		RunAt: time.Now(),
	})

	return err
}

// RunInitialTasks is the bootstrap job: take the first subscriber sample,
// seed this month's post scores, and send the welcome modmail.
func (l *Lifecycle) RunInitialTasks(ctx context.Context, _ []byte) error {
	if err := l.recorder.Record(ctx, nil); err != nil {
		return err
	}

	if err := l.seeder.SeedCurrentMonth(ctx); err != nil {
		return err
	}

	return l.sendWelcomeModmail(ctx)
}

func (l *Lifecycle) sendWelcomeModmail(ctx context.Context) error {
	sub, err := l.community.GetSubreddit(ctx)
	if err != nil {
		return err
	}

	base := "https://www.reddit.com/r/" + sub.Name + "/wiki/" + report.BasePage
	year := time.Now().UTC().Format("2006")

	var body strings.Builder
	body.WriteString("Thank you for installing Subreddit Statistics!\n\n")
	body.WriteString("This app will start collecting statistics for your subreddit immediately, and update statistics wiki pages at 01:00 UTC every day.\n\n")
	body.WriteString("You can find links to the statistics pages here:\n\n")
	body.WriteString("- Subreddit summary page: " + base + "\n")
	body.WriteString("- Current year's statistics: " + base + "/" + year + "\n\n")
	body.WriteString("Current year's statistics will not be able to report on anything other than 'top posts' until the first overnight run at 01:00 UTC, and the summary page will start to populate with useful information after two full days.\n")

	if err := l.modmail.SendModmail(ctx,
		"Welcome to Subreddit Statistics", body.String()); err != nil {
		return err
	}

	l.logger.Info("Welcome message sent")

	return nil
}
