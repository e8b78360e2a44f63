// Package subscribers records daily subscriber counts and derives
// milestone and growth-trend narratives from the recorded history.
package subscribers

import (
	"math"
	"time"

	"github.com/redlytics/redlytics/internal/stats"
)

// NextMilestone returns the first milestone value strictly above n.
// Below 100 the only milestone is 100 itself; up to 1000 milestones fall on
// every hundred; beyond that they follow a half-step geometric schedule
// (1000, 1500, 2000, ... 10000, 15000, 20000, ...).
func NextMilestone(n int64) int64 {
	if n < 100 {
		return 100
	}

	if n < 1000 {
		return 100*(n/100) + 100
	}

	magnitude := int64(math.Pow(10, math.Floor(math.Log10(float64(n)))))

	return (magnitude + magnitude*(2*n/magnitude)) / 2
}

// MilestoneCrossed returns the highest milestone passed when the count
// moves from a to b, or false when no milestone lies between them.
func MilestoneCrossed(a, b int64) (int64, bool) {
	milestone := NextMilestone(a)
	for b > milestone {
		next := NextMilestone(milestone)
		if next > b {
			return milestone, true
		}

		milestone = next
	}

	return 0, false
}

// Milestone is one crossing in the community's growth history. The first
// entry carries only the community's creation date.
type Milestone struct {
	Date             string
	MilestoneCrossed int64
	SubscriberCount  int64
}

// History walks the recorded counts oldest to newest and emits every new
// milestone crossing. The returned list starts with the community creation
// date and has strictly increasing, duplicate-free milestone values.
func History(createdAt time.Time, counts []stats.Entry) []Milestone {
	milestones := []Milestone{{Date: createdAt.Format(stats.DateFormat)}}

	if len(counts) == 0 {
		return milestones
	}

	baseline := counts[0].Score
	seen := make(map[int64]struct{})

	for _, count := range counts[1:] {
		crossed, ok := MilestoneCrossed(baseline, count.Score)
		if !ok {
			continue
		}

		if _, dup := seen[crossed]; dup {
			continue
		}

		seen[crossed] = struct{}{}
		milestones = append(milestones, Milestone{
			Date:             count.Member,
			MilestoneCrossed: crossed,
			SubscriberCount:  count.Score,
		})
		baseline = crossed
	}

	return milestones
}
