package stats

import (
	"fmt"
	"time"
)

// Metric identifies one family of monthly counter buckets.
type Metric string

const (
	// MetricPostCount counts posts per day-of-month member.
	MetricPostCount Metric = "postCount"
	// MetricCommentCount counts comments per day-of-month member.
	MetricCommentCount Metric = "commentCount"
	// MetricUserPostCount counts posts per author member.
	MetricUserPostCount Metric = "userPostCount"
	// MetricUserCommentCount counts comments per author member.
	MetricUserCommentCount Metric = "userCommentCount"
	// MetricPostVotes stores the latest known score per post ID member.
	MetricPostVotes Metric = "postVotes"
	// MetricDomainCount counts link posts per domain member.
	MetricDomainCount Metric = "domainCount"
	// MetricPostTypeCount counts posts per type tag member (nsfw, spoiler, self, total).
	MetricPostTypeCount Metric = "postTypeCount"
)

// MonthFormat is the layout for the month portion of bucket keys.
const MonthFormat = "2006-01"

// BucketKey builds the store key for a metric's bucket in the given month.
// Months are addressed in UTC; callers must be consistent about that.
func BucketKey(metric Metric, month time.Time) string {
	return fmt.Sprintf("%s~%s", metric, month.UTC().Format(MonthFormat))
}

// DayMember is the bucket member for a day-of-month counter.
func DayMember(t time.Time) string {
	return t.UTC().Format("02")
}

// MonthStart truncates t to the first instant of its UTC month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween returns the first instant of every UTC month from 'from'
// through 'to' inclusive, oldest first. Returns nil if from is after to.
func MonthsBetween(from, to time.Time) []time.Time {
	start := MonthStart(from)
	end := MonthStart(to)

	var months []time.Time
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}

	return months
}
