// Package scheduler provides the job scheduling primitive the aggregation
// jobs run on: named jobs with either a one-shot run time or a cron
// expression, carrying an optional JSON payload. Job specs are persisted so
// continuation payloads survive a restart.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrJobNotFound       = errors.New("scheduler: job not found")
	ErrNoHandler         = errors.New("scheduler: no handler registered for job")
	ErrInvalidJobRequest = errors.New("scheduler: job needs either a run time or a cron expression")
)

// Handler executes one invocation of a named job. The data slice is the
// JSON payload the job was scheduled with, or nil.
type Handler func(ctx context.Context, data []byte) error

// Job is a scheduled job spec.
type Job struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// RunAt is set for one-shot jobs.
	RunAt time.Time `json:"runAt"`
	// Cron is set for recurring jobs.
	Cron string `json:"cron,omitempty"`
	// Data is the JSON payload passed to the handler.
	Data []byte `json:"data,omitempty"`
}

// Recurring reports whether the job fires on a cron schedule.
func (j *Job) Recurring() bool {
	return j.Cron != ""
}

// Scheduler is the narrow scheduling interface the jobs depend on.
type Scheduler interface {
	// ListJobs returns every scheduled job.
	ListJobs(ctx context.Context) ([]Job, error)

	// CancelJob removes a job by ID.
	CancelJob(ctx context.Context, id string) error

	// RunJob schedules a job and returns its ID. Exactly one of RunAt and
	// Cron must be set on the request.
	RunJob(ctx context.Context, job Job) (string, error)
}

// NextCron returns the first fire time of a standard 5-field cron
// expression strictly after the given instant.
func NextCron(expr string, after time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}

	return schedule.Next(after), nil
}
