package subscribers

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/redlytics/redlytics/internal/stats"
)

// Granularity of a thinned subscriber history.
const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
)

// CountsByDate thins a daily history so long-running reports stay bounded:
// between 28 and 160 samples keep Mondays only, 160 or more keep the first
// of each month, anything shorter stays daily.
func CountsByDate(counts []stats.Entry) ([]stats.Entry, string) {
	switch {
	case len(counts) > 28 && len(counts) < 160:
		return filterDates(counts, func(d time.Time) bool {
			return d.Weekday() == time.Monday
		}), GranularityWeek
	case len(counts) >= 160:
		return filterDates(counts, func(d time.Time) bool {
			return d.Day() == 1
		}), GranularityMonth
	default:
		return counts, GranularityDay
	}
}

func filterDates(counts []stats.Entry, keep func(time.Time) bool) []stats.Entry {
	filtered := make([]stats.Entry, 0, len(counts))

	for _, count := range counts {
		date, err := time.Parse(stats.DateFormat, count.Member)
		if err != nil {
			continue
		}

		if keep(date) {
			filtered = append(filtered, count)
		}
	}

	return filtered
}

// EstimatedNextMilestone extrapolates growth over roughly the last two
// weeks and returns a human-readable time to the next milestone. It
// returns false when growth is flat or negative, or with no history.
func EstimatedNextMilestone(current int64, counts []stats.Entry, now time.Time) (string, bool) {
	if len(counts) == 0 {
		return "", false
	}

	// Baseline from 14 days ago, or the oldest sample when the history is
	// shorter than that.
	baseline := counts[0]
	twoWeeksAgo := now.AddDate(0, 0, -14).Format(stats.DateFormat)

	for _, count := range counts {
		if count.Member == twoWeeksAgo {
			baseline = count
			break
		}
	}

	gained := current - baseline.Score
	if gained <= 0 {
		return "", false
	}

	baselineDate, err := time.Parse(stats.DateFormat, baseline.Member)
	if err != nil {
		return "", false
	}

	elapsedDays := now.Sub(baselineDate).Hours() / 24
	if elapsedDays <= 0 {
		return "", false
	}

	perDay := float64(gained) / elapsedDays
	daysToGo := float64(NextMilestone(current)-current) / perDay

	if daysToGo < 1 {
		return "less than a day", true
	}

	eta := now.Add(time.Duration(daysToGo * 24 * float64(time.Hour)))

	return strings.TrimSpace(humanize.RelTime(now, eta, "", "")), true
}
