// Package liveness maintains the periodic re-check schedule for every author
// the service has seen, decides whether accounts still exist, and evicts all
// aggregate entries for accounts confirmed gone.
//
// Resolution is a heuristic: a failed user lookup can mean deleted,
// suspended, shadowbanned or a transient platform failure. The moderator
// notes probe distinguishes shadowbanned/suspended (notes retrievable) from
// deleted (notes gone), but a transient double failure still reads as Gone.
package liveness

import (
	"context"
	"sync"
	"time"

	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const cleanupKey = "cleanupLog"

// resolveWorkers bounds concurrent account lookups per batch.
const resolveWorkers = 8

// Status is the outcome of resolving one account.
type Status int

const (
	// StatusActive means the account exists (possibly shadowbanned).
	StatusActive Status = iota
	// StatusGone means the account appears deleted.
	StatusGone
)

// Tracker owns the pending-check schedule and the purge path.
type Tracker struct {
	store         *stats.Store
	users         platform.Users
	checkInterval time.Duration
	logger        *zap.Logger
}

// NewTracker creates a tracker. checkIntervalDays is how long a reconfirmed
// account waits until its next check.
func NewTracker(store *stats.Store, users platform.Users, checkIntervalDays int, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:         store,
		users:         users,
		checkInterval: time.Duration(checkIntervalDays) * 24 * time.Hour,
		logger:        logger.Named("liveness"),
	}
}

// ScheduleChecks upserts a pending check for each username, due one full
// interval from now. Re-adding overwrites, keeping one entry per username.
func (t *Tracker) ScheduleChecks(ctx context.Context, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}

	due := time.Now().Add(t.checkInterval).UnixMilli()

	entries := make([]stats.Entry, len(usernames))
	for i, username := range usernames {
		entries[i] = stats.Entry{Member: username, Score: due}
	}

	return t.store.Set(ctx, cleanupKey, entries...)
}

// DueChecks returns usernames whose check is due, oldest first, capped to
// limit, along with the total number currently due.
func (t *Tracker) DueChecks(ctx context.Context, limit int) ([]string, int, error) {
	entries, err := t.store.MembersDueBy(ctx, cleanupKey, time.Now().UnixMilli())
	if err != nil {
		return nil, 0, err
	}

	total := len(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}

	usernames := make([]string, len(entries))
	for i, entry := range entries {
		usernames[i] = entry.Member
	}

	return usernames, total, nil
}

// NextDue returns the due time of the earliest pending check.
func (t *Tracker) NextDue(ctx context.Context) (time.Time, bool, error) {
	entries, err := t.store.TopN(ctx, cleanupKey, 1, false)
	if err != nil || len(entries) == 0 {
		return time.Time{}, false, err
	}

	return time.UnixMilli(entries[0].Score), true, nil
}

// Resolve determines whether an account still exists. A successful lookup is
// Active. A failed lookup falls back to the moderator-notes probe: notes
// retrievable means shadowbanned or suspended rather than deleted.
func (t *Tracker) Resolve(ctx context.Context, username string) Status {
	if _, err := t.users.GetUserByUsername(ctx, username); err == nil {
		return StatusActive
	}

	if err := t.users.GetModeratorNotes(ctx, username); err == nil {
		return StatusActive
	}

	t.logger.Info("Account appears deleted", zap.String("username", username))

	return StatusGone
}

// CheckAccounts resolves a batch of accounts and applies the outcomes:
// active accounts are rescheduled a full interval out, gone accounts are
// purged from every aggregate.
func (t *Tracker) CheckAccounts(ctx context.Context, usernames []string) error {
	if len(usernames) == 0 {
		return nil
	}

	var (
		mu     sync.Mutex
		active []string
		gone   []string
	)

	p := pool.New().WithMaxGoroutines(resolveWorkers)

	for _, username := range usernames {
		p.Go(func() {
			status := t.Resolve(ctx, username)

			mu.Lock()
			defer mu.Unlock()

			if status == StatusActive {
				active = append(active, username)
			} else {
				gone = append(gone, username)
			}
		})
	}

	p.Wait()

	if len(active) > 0 {
		t.logger.Info("Accounts still active, resetting check time",
			zap.Int("active", len(active)),
			zap.Int("checked", len(usernames)))

		if err := t.ScheduleChecks(ctx, active); err != nil {
			return err
		}
	}

	if len(gone) > 0 {
		t.logger.Info("Accounts deleted or suspended, removing records",
			zap.Int("gone", len(gone)),
			zap.Int("checked", len(usernames)))

		if err := t.PurgeAllRecordsForUsers(ctx, gone); err != nil {
			return err
		}
	}

	return nil
}

// PurgeAllRecordsForUsers removes the users from every monthly post and
// comment count bucket since install, and drops their pending checks.
func (t *Tracker) PurgeAllRecordsForUsers(ctx context.Context, usernames []string) error {
	installDate, ok, err := t.store.InstallDate(ctx)
	if err != nil {
		return err
	}

	if !ok {
		// Set exactly once at install time; nothing sane to purge without it.
		t.logger.Error("Install date missing, skipping purge")
		return nil
	}

	var removed int64

	for _, month := range stats.MonthsBetween(installDate, time.Now()) {
		for _, metric := range []stats.Metric{stats.MetricUserPostCount, stats.MetricUserCommentCount} {
			n, err := t.store.RemoveMembers(ctx, stats.BucketKey(metric, month), usernames...)
			if err != nil {
				return err
			}

			removed += n
		}
	}

	n, err := t.store.RemoveMembers(ctx, cleanupKey, usernames...)
	if err != nil {
		return err
	}

	removed += n

	t.logger.Info("Purged records for deleted accounts",
		zap.Int("users", len(usernames)),
		zap.Int64("entries", removed))

	return nil
}
