package report

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/settings"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/redlytics/redlytics/internal/subscribers"
	"go.uber.org/zap"
)

// monthSection renders one month's statistics into the year page document.
func (p *Publisher) monthSection(
	ctx context.Context, d *doc, month time.Time, sub *platform.Subreddit,
	snap settings.Snapshot, now time.Time,
) error {
	p.logger.Debug("Building month section",
		zap.String("month", month.Format(stats.MonthFormat)))

	d.H3(month.Format(stats.MonthFormat))

	installDate, haveInstall, err := p.store.InstallDate(ctx)
	if err != nil {
		return err
	}

	currentMonth := sameMonth(month, now)

	if haveInstall && sameMonth(installDate, month) {
		d.P("Data collection started on " + installDate.Format(stats.DateFormat) +
			", so this month contains incomplete data.")
	}

	if currentMonth {
		d.P("These stats will continue to update through the end of this month.")
	}

	if err := p.subscriberLine(ctx, d, month, sub, currentMonth, now); err != nil {
		return err
	}

	d.H4("Activity")

	daysCovered := p.daysCovered(month, now, installDate, haveInstall)

	if err := p.activityBlock(ctx, d, stats.MetricPostCount, month, currentMonth,
		now, daysCovered, "post", "posts"); err != nil {
		return err
	}

	if err := p.activityBlock(ctx, d, stats.MetricCommentCount, month, currentMonth,
		now, daysCovered, "comment", "comments"); err != nil {
		return err
	}

	if err := p.topUsersBlock(ctx, d, stats.MetricUserPostCount, month, snap,
		"Top Posters", "post", "posts"); err != nil {
		return err
	}

	if err := p.topUsersBlock(ctx, d, stats.MetricUserCommentCount, month, snap,
		"Top Commenters", "comment", "comments"); err != nil {
		return err
	}

	if err := p.topPostsBlock(ctx, d, []time.Time{month}, 5, snap,
		"There were no posts made in this month."); err != nil {
		return err
	}

	if err := p.domainsBlock(ctx, d, month); err != nil {
		return err
	}

	return p.postTypesBlock(ctx, d, month)
}

func (p *Publisher) subscriberLine(
	ctx context.Context, d *doc, month time.Time, sub *platform.Subreddit,
	currentMonth bool, now time.Time,
) error {
	d.H4("Subscribers")

	firstDay := stats.MonthStart(month)
	lastDay := firstDay.AddDate(0, 1, -1)

	atStart, haveStart, err := p.store.Get(ctx, subscribers.HistoryKey,
		firstDay.Format(stats.DateFormat))
	if err != nil {
		return err
	}

	if currentMonth {
		current := sub.Subscribers

		if haveStart && !sameDay(firstDay, now) {
			switch {
			case atStart == current:
				d.P("Subscribers have remained at " + grouped(current) +
					" throughout the month")
			case current >= atStart:
				d.P("Subscribers have increased from " + grouped(atStart) +
					" at the start of the month to " + grouped(current))
			default:
				d.P("Subscribers have decreased from " + grouped(atStart) +
					" at the start of the month to " + grouped(current))
			}
		} else {
			d.P("Subscribers are now " + grouped(current))
		}

		return nil
	}

	atEnd, haveEnd, err := p.store.Get(ctx, subscribers.HistoryKey,
		lastDay.Format(stats.DateFormat))
	if err != nil {
		return err
	}

	switch {
	case haveStart && haveEnd && atStart == atEnd:
		d.P("Subscribers remained at " + grouped(atStart) + " throughout the month")
	case haveStart && haveEnd && atEnd >= atStart:
		d.P("Subscribers increased from " + grouped(atStart) + " to " +
			grouped(atEnd) + " by the end of the month.")
	case haveStart && haveEnd:
		d.P("Subscribers decreased from " + grouped(atStart) + " to " +
			grouped(atEnd) + " by the end of the month.")
	case haveEnd:
		d.P("Subscribers were " + grouped(atEnd) + " at month end.")
	}

	return nil
}

// daysCovered is the denominator for per-day averages, shortened for the
// in-progress month and the partial install month.
func (p *Publisher) daysCovered(
	month, now, installDate time.Time, haveInstall bool,
) int64 {
	switch {
	case sameMonth(month, now):
		firstDay := 1
		if haveInstall && sameMonth(installDate, month) {
			firstDay = installDate.Day()
		}

		return int64(now.Day() - firstDay)
	case haveInstall && sameMonth(month, installDate):
		return int64(1 + daysInMonth(month) - installDate.Day())
	default:
		return int64(daysInMonth(month))
	}
}

func (p *Publisher) activityBlock(
	ctx context.Context, d *doc, metric stats.Metric, month time.Time,
	currentMonth bool, now time.Time, daysCovered int64,
	singular, pluralForm string,
) error {
	key := stats.BucketKey(metric, month)

	// Deletion reversals can leave zero-score days behind.
	if _, err := p.store.RemoveZeroOrBelow(ctx, key); err != nil {
		return err
	}

	byDay, err := p.store.Members(ctx, key)
	if err != nil {
		return err
	}

	// Today's partial count would misrepresent the busiest-day ranking.
	if currentMonth {
		today := stats.DayMember(now)
		byDay = slices.DeleteFunc(byDay, func(e stats.Entry) bool {
			return e.Member == today
		})
	}

	if len(byDay) == 0 {
		return nil
	}

	slices.SortStableFunc(byDay, func(a, b stats.Entry) int {
		switch {
		case b.Score > a.Score:
			return 1
		case b.Score < a.Score:
			return -1
		default:
			return 0
		}
	})

	title := "**Posts Activity**"
	if metric == stats.MetricCommentCount {
		title = "**Comments Activity**"
	}

	d.P(title)
	d.P("*Most Active Days:*")

	items := make([]string, 0, 5)

	var total int64

	for i, day := range byDay {
		total += day.Score

		if i < 5 {
			items = append(items, "**"+grouped(day.Score)+" "+
				plural(day.Score, singular, pluralForm)+"** on "+
				month.Format(stats.MonthFormat)+"-"+day.Member)
		}
	}

	d.UL(items)

	if daysCovered > 0 {
		average := int64(math.Round(float64(total) / float64(daysCovered)))
		d.P("*Average " + pluralForm + " per day*: " + grouped(average) + " " +
			plural(average, singular, pluralForm))
	}

	return nil
}

func (p *Publisher) topUsersBlock(
	ctx context.Context, d *doc, metric stats.Metric, month time.Time,
	snap settings.Snapshot, title, singular, pluralForm string,
) error {
	d.P("**" + title + "**")

	key := stats.BucketKey(metric, month)

	top, err := p.store.TopN(ctx, key, 5, true)
	if err != nil {
		return err
	}

	if len(top) == 0 {
		d.P("There were no " + pluralForm + " made in this month.")
		return nil
	}

	items := make([]string, 0, len(top))
	for _, user := range top {
		items = append(items, "**"+grouped(user.Score)+" "+
			plural(user.Score, singular, pluralForm)+"** from "+
			formatUsername(user.Member, snap.AddUserTags))
	}

	d.UL(items)

	if _, err := p.store.RemoveZeroOrBelow(ctx, key); err != nil {
		return err
	}

	userCount, itemCount, err := p.distinctUserCount(ctx, []string{key})
	if err != nil {
		return err
	}

	verb := plural(itemCount, "was", "were")
	d.P(grouped(itemCount) + " " + plural(itemCount, singular, pluralForm) + " " +
		verb + " made by " + grouped(userCount) + " unique " +
		plural(userCount, "user", "users") + ".")

	return nil
}

// topPostsBlock renders the highest-scored listed posts across the given
// months. More candidates than needed are fetched since removed posts are
// skipped.
func (p *Publisher) topPostsBlock(
	ctx context.Context, d *doc, months []time.Time, limit int,
	snap settings.Snapshot, emptyText string,
) error {
	var candidates []stats.Entry

	for _, month := range months {
		top, err := p.store.TopN(ctx,
			stats.BucketKey(stats.MetricPostVotes, month), 51, true)
		if err != nil {
			return err
		}

		candidates = append(candidates, top...)
	}

	if len(months) > 1 {
		candidates = stats.Aggregate(candidates, 100)
	}

	d.P("**Top Posts**")

	items := make([]string, 0, limit)

	for _, candidate := range candidates {
		if len(items) >= limit {
			break
		}

		details, err := p.postDetails(ctx, candidate.Member)
		if err != nil {
			p.logger.Warn("Failed to fetch post details for report",
				zap.String("postID", candidate.Member),
				zap.Error(err))

			continue
		}

		if !listed(details) {
			continue
		}

		items = append(items, "+"+grouped(details.Score)+" ["+
			escapeMarkdown(details.Title)+"]("+details.Permalink+"), posted by "+
			formatUsername(details.AuthorName, snap.AddUserTags)+" on "+
			details.CreatedAt.Format(stats.DateFormat))
	}

	if len(items) == 0 {
		d.P(emptyText)
		return nil
	}

	d.UL(items)

	return nil
}

func (p *Publisher) domainsBlock(ctx context.Context, d *doc, month time.Time) error {
	domains, err := p.store.TopN(ctx,
		stats.BucketKey(stats.MetricDomainCount, month), 5, true)
	if err != nil {
		return err
	}

	if len(domains) == 0 {
		return nil
	}

	d.P("**Top Domains**")

	items := make([]string, 0, len(domains))
	for _, domain := range domains {
		items = append(items, "**"+grouped(domain.Score)+" "+
			plural(domain.Score, "post", "posts")+"** from "+domain.Member)
	}

	d.UL(items)

	return nil
}

func (p *Publisher) postTypesBlock(ctx context.Context, d *doc, month time.Time) error {
	types, err := p.store.Members(ctx,
		stats.BucketKey(stats.MetricPostTypeCount, month))
	if err != nil {
		return err
	}

	var total int64

	for _, entry := range types {
		if entry.Member == "total" {
			total = entry.Score
		}
	}

	if total == 0 || len(types) < 2 {
		return nil
	}

	d.P("**Post Types**")

	items := make([]string, 0, len(types)-1)

	for _, entry := range types {
		if entry.Member == "total" {
			continue
		}

		items = append(items, "**"+entry.Member+"**: "+grouped(entry.Score)+" "+
			plural(entry.Score, "post", "posts"))
	}

	d.UL(items)

	return nil
}

func (p *Publisher) distinctUserCount(ctx context.Context, keys []string) (int64, int64, error) {
	seen := make(map[string]struct{})

	var itemCount int64

	for _, key := range keys {
		entries, err := p.store.Members(ctx, key)
		if err != nil {
			return 0, 0, err
		}

		for _, entry := range entries {
			seen[entry.Member] = struct{}{}
			itemCount += entry.Score
		}
	}

	return int64(len(seen)), itemCount, nil
}

func formatUsername(username string, addUserTag bool) string {
	if addUserTag {
		return "/u/" + username
	}

	return escapeMarkdown(username)
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func daysInMonth(month time.Time) int {
	return time.Date(month.Year(), month.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
