package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobsKey = "scheduledJobs"

// pollFloor bounds how long the runner sleeps with no due job, so that
// externally added specs are picked up reasonably soon after a restart.
const pollFloor = time.Minute

// Runner is an in-process Scheduler. Job specs are persisted in the store;
// dispatch happens from a single loop, with invocations of the same job name
// serialized and different names free to run concurrently.
type Runner struct {
	client   rueidis.Client
	logger   *zap.Logger
	handlers map[string]Handler

	mu       sync.Mutex
	jobs     map[string]*Job
	nextFire map[string]time.Time
	nameLock map[string]*sync.Mutex
	wake     chan struct{}
}

// NewRunner creates a Runner over the given client. Handlers must be
// registered before Start.
func NewRunner(client rueidis.Client, logger *zap.Logger) *Runner {
	return &Runner{
		client:   client,
		logger:   logger.Named("scheduler"),
		handlers: make(map[string]Handler),
		jobs:     make(map[string]*Job),
		nextFire: make(map[string]time.Time),
		nameLock: make(map[string]*sync.Mutex),
		wake:     make(chan struct{}, 1),
	}
}

// Register binds a handler to a job name.
func (r *Runner) Register(name string, handler Handler) {
	r.handlers[name] = handler
}

// ListJobs returns every scheduled job.
func (r *Runner) ListJobs(_ context.Context) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, *job)
	}

	return jobs, nil
}

// CancelJob removes a job by ID.
func (r *Runner) CancelJob(ctx context.Context, id string) error {
	r.mu.Lock()
	_, exists := r.jobs[id]
	delete(r.jobs, id)
	delete(r.nextFire, id)
	r.mu.Unlock()

	if !exists {
		return ErrJobNotFound
	}

	if err := r.client.Do(ctx, r.client.B().Hdel().Key(jobsKey).Field(id).Build()).Error(); err != nil {
		return fmt.Errorf("failed to remove job spec: %w", err)
	}

	r.notify()

	return nil
}

// RunJob schedules a job and returns its ID.
func (r *Runner) RunJob(ctx context.Context, job Job) (string, error) {
	if job.Cron == "" && job.RunAt.IsZero() {
		return "", ErrInvalidJobRequest
	}

	if job.Cron != "" {
		if _, err := cron.ParseStandard(job.Cron); err != nil {
			return "", fmt.Errorf("invalid cron expression %q: %w", job.Cron, err)
		}
	}

	if _, ok := r.handlers[job.Name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNoHandler, job.Name)
	}

	job.ID = uuid.NewString()

	if err := r.persist(ctx, &job); err != nil {
		return "", err
	}

	r.mu.Lock()
	r.jobs[job.ID] = &job
	r.nextFire[job.ID] = firstFire(&job, time.Now())
	r.mu.Unlock()

	r.notify()

	return job.ID, nil
}

// Start restores persisted job specs and runs the dispatch loop until the
// context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if err := r.restore(ctx); err != nil {
		return err
	}

	r.logger.Info("Scheduler started", zap.Int("jobs", len(r.jobs)))

	for {
		_, nextAt, found := r.soonest()

		sleep := pollFloor
		if found {
			sleep = time.Until(nextAt)
			if sleep < 0 {
				sleep = 0
			}
		}

		timer := time.NewTimer(sleep)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-r.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		r.dispatchDue(ctx)
	}
}

// soonest returns the ID and fire time of the next job to run.
func (r *Runner) soonest() (string, time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		soonestID string
		soonest   time.Time
	)

	for id, fire := range r.nextFire {
		if soonestID == "" || fire.Before(soonest) {
			soonestID = id
			soonest = fire
		}
	}

	return soonestID, soonest, soonestID != ""
}

// dispatchDue runs every job whose fire time has passed. One-shot jobs are
// removed before dispatch so a crash cannot double-run them on restore.
func (r *Runner) dispatchDue(ctx context.Context) {
	now := time.Now()

	r.mu.Lock()

	var due []*Job

	for id, fire := range r.nextFire {
		if fire.After(now) {
			continue
		}

		job := r.jobs[id]
		due = append(due, job)

		if job.Recurring() {
			schedule, _ := cron.ParseStandard(job.Cron)
			r.nextFire[id] = schedule.Next(now)

			continue
		}

		delete(r.jobs, id)
		delete(r.nextFire, id)
	}

	r.mu.Unlock()

	for _, job := range due {
		if !job.Recurring() {
			if err := r.client.Do(ctx, r.client.B().Hdel().Key(jobsKey).Field(job.ID).Build()).Error(); err != nil {
				r.logger.Error("Failed to remove fired job spec", zap.String("job", job.Name), zap.Error(err))
			}
		}

		go r.invoke(ctx, job)
	}
}

// invoke runs one job invocation, serializing against other invocations of
// the same job name.
func (r *Runner) invoke(ctx context.Context, job *Job) {
	handler, ok := r.handlers[job.Name]
	if !ok {
		r.logger.Error("No handler for scheduled job", zap.String("job", job.Name))
		return
	}

	lock := r.lockFor(job.Name)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()

	if err := handler(ctx, job.Data); err != nil {
		r.logger.Error("Job failed",
			zap.String("job", job.Name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))

		return
	}

	r.logger.Debug("Job completed",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(start)))
}

func (r *Runner) lockFor(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.nameLock[name]
	if !ok {
		lock = &sync.Mutex{}
		r.nameLock[name] = lock
	}

	return lock
}

func (r *Runner) notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Runner) persist(ctx context.Context, job *Job) error {
	payload, err := sonic.MarshalString(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job spec: %w", err)
	}

	if err := r.client.Do(ctx,
		r.client.B().Hset().Key(jobsKey).FieldValue().FieldValue(job.ID, payload).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to persist job spec: %w", err)
	}

	return nil
}

func (r *Runner) restore(ctx context.Context) error {
	specs, err := r.client.Do(ctx, r.client.B().Hgetall().Key(jobsKey).Build()).AsStrMap()
	if err != nil {
		return fmt.Errorf("failed to restore job specs: %w", err)
	}

	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, payload := range specs {
		var job Job
		if err := sonic.UnmarshalString(payload, &job); err != nil {
			r.logger.Warn("Dropping unreadable job spec", zap.String("id", id), zap.Error(err))
			continue
		}

		r.jobs[id] = &job
		r.nextFire[id] = firstFire(&job, now)
	}

	return nil
}

// firstFire computes a job's initial fire time: the stored run time for
// one-shot jobs (overdue one-shots fire immediately), or the next cron
// occurrence for recurring ones.
func firstFire(job *Job, now time.Time) time.Time {
	if !job.Recurring() {
		return job.RunAt
	}

	schedule, _ := cron.ParseStandard(job.Cron)

	return schedule.Next(now)
}
