// Package schedulertest provides a recording Scheduler for tests.
package schedulertest

import (
	"context"
	"strconv"
	"sync"

	"github.com/redlytics/redlytics/internal/scheduler"
)

// Fake records scheduled jobs without running them.
type Fake struct {
	mu      sync.Mutex
	nextID  int
	Entries []scheduler.Job
}

func (f *Fake) ListJobs(context.Context) ([]scheduler.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]scheduler.Job(nil), f.Entries...), nil
}

func (f *Fake) CancelJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, job := range f.Entries {
		if job.ID == id {
			f.Entries = append(f.Entries[:i], f.Entries[i+1:]...)
			return nil
		}
	}

	return scheduler.ErrJobNotFound
}

func (f *Fake) RunJob(_ context.Context, job scheduler.Job) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	job.ID = strconv.Itoa(f.nextID)
	f.Entries = append(f.Entries, job)

	return job.ID, nil
}

// Scheduled returns the recorded jobs with the given name.
func (f *Fake) Scheduled(name string) []scheduler.Job {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []scheduler.Job

	for _, job := range f.Entries {
		if job.Name == name {
			matched = append(matched, job)
		}
	}

	return matched
}

var _ scheduler.Scheduler = (*Fake)(nil)
