package report

import (
	"context"
	"slices"
	"time"

	"github.com/redlytics/redlytics/internal/settings"
	"github.com/redlytics/redlytics/internal/stats"
	"go.uber.org/zap"
)

// publishYearPage renders the page for the year containing date, with one
// section per month newest-first and a year-to-date rollup on top.
func (p *Publisher) publishYearPage(ctx context.Context, date time.Time) error {
	pageName := yearPageName(date)

	p.logger.Info("Updating statistics", zap.Int("year", date.Year()))

	now := time.Now().UTC()
	yearStart := time.Date(date.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)

	firstMonth := yearStart
	if installDate, ok, err := p.store.InstallDate(ctx); err != nil {
		return err
	} else if ok {
		installMonth := stats.MonthStart(installDate)
		if installMonth.After(firstMonth) {
			firstMonth = installMonth
		}
	}

	sub, err := p.community.GetSubreddit(ctx)
	if err != nil {
		return err
	}

	snap, err := settings.Load(ctx, p.provider)
	if err != nil {
		return err
	}

	months := stats.MonthsBetween(firstMonth, date)
	slices.Reverse(months)

	d := &doc{}
	d.H2(date.Format("2006"))

	if len(months) > 1 {
		if err := p.yearSummarySection(ctx, d, months, sub.Name, snap, now); err != nil {
			return err
		}
	}

	for _, month := range months {
		if err := p.monthSection(ctx, d, month, sub, snap, now); err != nil {
			return err
		}
	}

	return p.publishPage(ctx, pageName, d.String(), snap)
}

// yearSummarySection is the rollup across every month in the page:
// aggregated top posters, commenters, and posts.
func (p *Publisher) yearSummarySection(
	ctx context.Context, d *doc, months []time.Time, subredditName string,
	snap settings.Snapshot, now time.Time,
) error {
	newest := months[0]

	if stats.MonthStart(newest).Before(stats.MonthStart(now)) {
		yearEnd := time.Date(newest.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
		d.P("Year ending " + yearEnd.Format(stats.DateFormat))
	} else {
		d.P("Year to date")
	}

	if installDate, ok, err := p.store.InstallDate(ctx); err != nil {
		return err
	} else if ok && installDate.Year() == newest.Year() {
		d.P("Stats have been collected since " + installDate.Format(stats.DateFormat))
	}

	d.P("[Back to index page](https://www.reddit.com/r/" + subredditName +
		"/wiki/" + BasePage + ")")

	if err := p.yearTopUsers(ctx, d, stats.MetricUserPostCount, months, snap,
		"Top Posters", "post", "posts"); err != nil {
		return err
	}

	if err := p.yearTopUsers(ctx, d, stats.MetricUserCommentCount, months, snap,
		"Top Commenters", "comment", "comments"); err != nil {
		return err
	}

	return p.topPostsBlock(ctx, d, months, 10, snap,
		"There were no posts made in this year.")
}

func (p *Publisher) yearTopUsers(
	ctx context.Context, d *doc, metric stats.Metric, months []time.Time,
	snap settings.Snapshot, title, singular, pluralForm string,
) error {
	var entries []stats.Entry

	keys := make([]string, 0, len(months))

	for _, month := range months {
		key := stats.BucketKey(metric, month)
		keys = append(keys, key)

		top, err := p.store.TopN(ctx, key, 100, true)
		if err != nil {
			return err
		}

		entries = append(entries, top...)
	}

	top10 := stats.Aggregate(entries, 10)

	d.P("**" + title + "**")

	if len(top10) == 0 {
		d.P("There were no " + pluralForm + " made in this year.")
		return nil
	}

	items := make([]string, 0, len(top10))
	for _, user := range top10 {
		items = append(items, "**"+grouped(user.Score)+" "+
			plural(user.Score, singular, pluralForm)+"** from "+
			formatUsername(user.Member, snap.AddUserTags))
	}

	d.UL(items)

	userCount, itemCount, err := p.distinctUserCount(ctx, keys)
	if err != nil {
		return err
	}

	verb := plural(itemCount, "was", "were")
	d.P(grouped(itemCount) + " " + plural(itemCount, singular, pluralForm) + " " +
		verb + " made by " + grouped(userCount) + " distinct " +
		plural(userCount, "user", "users"))

	return nil
}
