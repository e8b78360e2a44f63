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
)

// publishSummaryPage renders the index page: links to the year pages,
// subscriber milestones, and the subscriber count history table.
func (p *Publisher) publishSummaryPage(ctx context.Context) error {
	sub, err := p.community.GetSubreddit(ctx)
	if err != nil {
		return err
	}

	snap, err := settings.Load(ctx, p.provider)
	if err != nil {
		return err
	}

	installDate, haveInstall, err := p.store.InstallDate(ctx)
	if err != nil {
		return err
	}

	d := &doc{}

	intro := "Subreddit statistics for /r/" + sub.Name + "."
	if haveInstall {
		intro += " Statistics have been gathered since " +
			installDate.Format(stats.DateFormat)
	}

	d.P(intro)

	if err := p.yearIndexSection(ctx, d, sub.Name); err != nil {
		return err
	}

	counts, err := p.recorder.Counts(ctx)
	if err != nil {
		return err
	}

	p.milestoneSection(d, sub, counts, installDate, haveInstall)
	p.subscriberHistorySection(d, counts)

	return p.publishPage(ctx, BasePage, d.String(), snap)
}

func (p *Publisher) yearIndexSection(ctx context.Context, d *doc, subredditName string) error {
	d.H2("Detailed statistics by year")

	pages, err := p.store.Members(ctx, pagesKey)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(pages))

	for _, page := range pages {
		if page.Member == BasePage {
			continue
		}

		names = append(names, page.Member)
	}

	slices.Sort(names)
	slices.Reverse(names)

	items := make([]string, 0, len(names))

	for _, name := range names {
		if len(name) < 4 {
			continue
		}

		year := name[len(name)-4:]
		items = append(items, "["+year+"](https://www.reddit.com/r/"+
			subredditName+"/wiki/"+BasePage+"/"+year+")")
	}

	if len(items) > 0 {
		d.UL(items)
	}

	return nil
}

func (p *Publisher) milestoneSection(
	d *doc, sub *platform.Subreddit, counts []stats.Entry,
	installDate time.Time, haveInstall bool,
) {
	d.H2("Subscriber Milestones")

	milestones := subscribers.History(sub.CreatedAt, counts)

	if len(milestones) > 1 {
		rows := make([][]string, 0, len(milestones))

		var previous *subscribers.Milestone

		for i := range milestones {
			milestone := milestones[i]

			value := "Created"
			if milestone.MilestoneCrossed > 0 {
				value = grouped(milestone.MilestoneCrossed)
			}

			row := []string{milestone.Date, value}

			if previous != nil && previous.SubscriberCount > 0 && milestone.SubscriberCount > 0 {
				days := daysBetween(previous.Date, milestone.Date)
				if days > 0 {
					change := int64(math.Round(
						float64(milestone.SubscriberCount-previous.SubscriberCount) /
							float64(days)))
					row = append(row, withSign(change), grouped(days))
				} else {
					row = append(row, "---", "---")
				}
			} else {
				row = append(row, "---", "---")
			}

			previous = &milestones[i]

			// Newest milestones render first.
			rows = append([][]string{row}, rows...)
		}

		d.Table([]string{
			"Date Reached", "Subscriber Milestone",
			"Average Daily Change", "Days From Previous Milestone",
		}, rows)
	} else if haveInstall && installDate.Before(time.Now().AddDate(0, 0, -7)) {
		d.P("There have been no milestones crossed since the app was installed.")
	}

	line := "Next milestone: " + grouped(subscribers.NextMilestone(sub.Subscribers)) + "."

	if estimate, ok := subscribers.EstimatedNextMilestone(
		sub.Subscribers, counts, time.Now().UTC()); ok {
		line += " This will be reached in " + estimate + " based on recent growth rates."
	}

	d.P(line)
}

func (p *Publisher) subscriberHistorySection(d *doc, counts []stats.Entry) {
	d.H2("Subscriber Counts")

	thinned, granularity := subscribers.CountsByDate(counts)

	if len(thinned) <= 2 {
		d.P("Subscriber count history will be shown here once the app has been installed for two full days.")
		return
	}

	headers := []string{"Date", "Subscribers", "Change"}
	if granularity != subscribers.GranularityDay {
		headers = append(headers, "Average daily change")
	}

	rows := make([][]string, 0, len(thinned))

	var previous *stats.Entry

	for i := range thinned {
		count := thinned[i]
		row := []string{count.Member, grouped(count.Score)}

		if previous != nil {
			change := count.Score - previous.Score
			row = append(row, withSign(change))

			if granularity != subscribers.GranularityDay {
				days := daysBetween(previous.Member, count.Member)
				if days > 0 {
					row = append(row, withSign(int64(math.Round(
						float64(change)/float64(days)))))
				} else {
					row = append(row, "---")
				}
			}
		} else {
			row = append(row, "---")
			if granularity != subscribers.GranularityDay {
				row = append(row, "---")
			}
		}

		previous = &thinned[i]

		// Newest samples render first.
		rows = append([][]string{row}, rows...)
	}

	d.Table(headers, rows)
}

func daysBetween(olderDate, newerDate string) int64 {
	older, err := time.Parse(stats.DateFormat, olderDate)
	if err != nil {
		return 0
	}

	newer, err := time.Parse(stats.DateFormat, newerDate)
	if err != nil {
		return 0
	}

	return int64(newer.Sub(older).Hours() / 24)
}
