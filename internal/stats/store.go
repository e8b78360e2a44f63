// Package stats implements the time-bucketed counter store: one ranked set
// per (metric, month), member→score. Single increments are atomic at the
// store layer; multi-step updates are deduplicated by callers through
// processed-item markers.
package stats

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// Entry is one member→score pair from a bucket.
type Entry struct {
	Member string
	Score  int64
}

// Store wraps the ranked key-value store the aggregates live in.
type Store struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewStore creates a counter store over the given client.
func NewStore(client rueidis.Client, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.Named("stats"),
	}
}

// Increment applies delta to a member's score and returns the new score.
// A retried increment double-applies; dedupe happens at the caller.
func (s *Store) Increment(ctx context.Context, key, member string, delta int64) (int64, error) {
	score, err := s.client.Do(ctx,
		s.client.B().Zincrby().Key(key).Increment(float64(delta)).Member(member).Build(),
	).AsFloat64()
	if err != nil {
		return 0, err
	}

	return int64(score), nil
}

// Get returns a member's score, or ok=false if the member is absent.
func (s *Store) Get(ctx context.Context, key, member string) (int64, bool, error) {
	score, err := s.client.Do(ctx,
		s.client.B().Zscore().Key(key).Member(member).Build(),
	).AsFloat64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}

		return 0, false, err
	}

	return int64(score), true, nil
}

// Set upserts a member with an absolute score.
func (s *Store) Set(ctx context.Context, key string, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	cmd := s.client.B().Zadd().Key(key).ScoreMember()
	for _, e := range entries {
		cmd = cmd.ScoreMember(float64(e.Score), e.Member)
	}

	return s.client.Do(ctx, cmd.Build()).Error()
}

// TopN returns up to n entries ordered by score, highest first when
// descending is set.
func (s *Store) TopN(ctx context.Context, key string, n int, descending bool) ([]Entry, error) {
	builder := s.client.B().Zrange().Key(key).Min("0").Max(strconv.Itoa(n - 1))

	var cmd rueidis.Completed
	if descending {
		cmd = builder.Rev().Withscores().Build()
	} else {
		cmd = builder.Withscores().Build()
	}

	scores, err := s.client.Do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, err
	}

	return toEntries(scores), nil
}

// Members returns every entry in a bucket in ascending score order.
func (s *Store) Members(ctx context.Context, key string) ([]Entry, error) {
	scores, err := s.client.Do(ctx,
		s.client.B().Zrange().Key(key).Min("0").Max("-1").Withscores().Build(),
	).AsZScores()
	if err != nil {
		return nil, err
	}

	return toEntries(scores), nil
}

// MembersDueBy returns entries with score at or below the cutoff, lowest
// first. Used by the due-time ordered sets (liveness, filtered items).
func (s *Store) MembersDueBy(ctx context.Context, key string, cutoff int64) ([]Entry, error) {
	scores, err := s.client.Do(ctx,
		s.client.B().Zrangebyscore().Key(key).Min("-inf").Max(strconv.FormatInt(cutoff, 10)).Withscores().Build(),
	).AsZScores()
	if err != nil {
		return nil, err
	}

	return toEntries(scores), nil
}

// RemoveZeroOrBelow purges members whose score has dropped to zero or less.
func (s *Store) RemoveZeroOrBelow(ctx context.Context, key string) (int64, error) {
	return s.client.Do(ctx,
		s.client.B().Zremrangebyscore().Key(key).Min("-inf").Max("0").Build(),
	).AsInt64()
}

// RemoveMembers deletes the given members from a bucket and returns how many
// were actually present.
func (s *Store) RemoveMembers(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}

	return s.client.Do(ctx,
		s.client.B().Zrem().Key(key).Member(members...).Build(),
	).AsInt64()
}

// DeleteBucket removes a bucket entirely.
func (s *Store) DeleteBucket(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error()
}

// Count returns the number of members in a bucket.
func (s *Store) Count(ctx context.Context, key string) (int64, error) {
	return s.client.Do(ctx, s.client.B().Zcard().Key(key).Build()).AsInt64()
}

// SumAcrossMonths reads one metric's bucket for each month and aggregates
// scores by member.
func (s *Store) SumAcrossMonths(ctx context.Context, metric Metric, months []time.Time) ([]Entry, error) {
	var all []Entry

	for _, month := range months {
		entries, err := s.Members(ctx, BucketKey(metric, month))
		if err != nil {
			return nil, err
		}

		all = append(all, entries...)
	}

	return Aggregate(all, 0), nil
}

// Aggregate sums scores by member. When topN is positive the result is
// sorted by score descending and truncated to topN entries; otherwise the
// first-seen member order is preserved.
func Aggregate(entries []Entry, topN int) []Entry {
	index := make(map[string]int, len(entries))
	results := make([]Entry, 0, len(entries))

	for _, e := range entries {
		if i, ok := index[e.Member]; ok {
			results[i].Score += e.Score
			continue
		}

		index[e.Member] = len(results)
		results = append(results, e)
	}

	if topN > 0 {
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Score > results[j].Score
		})

		if len(results) > topN {
			results = results[:topN]
		}
	}

	return results
}

func toEntries(scores []rueidis.ZScore) []Entry {
	entries := make([]Entry, len(scores))
	for i, z := range scores {
		entries[i] = Entry{Member: z.Member, Score: int64(z.Score)}
	}

	return entries
}
