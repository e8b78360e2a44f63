// Package report renders the accumulated statistics into wiki pages: one
// page per year with monthly sections, plus a summary index page with
// subscriber milestones and growth history.
package report

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redlytics/redlytics/internal/platform"
	"github.com/redlytics/redlytics/internal/settings"
	"github.com/redlytics/redlytics/internal/stats"
	"github.com/redlytics/redlytics/internal/subscribers"
	"go.uber.org/zap"
)

const (
	// BasePage is the wiki page the summary lives on; year pages nest
	// under it.
	BasePage = "redlytics"

	// pagesKey indexes every wiki page this service has published.
	pagesKey = "wikiPages"

	// permissionMemoKey remembers the last applied page permission setting
	// so permission sweeps only touch the platform on changes.
	permissionMemoKey = "wikiPermissionLevel"
)

// Publisher assembles and publishes the report pages.
type Publisher struct {
	store     *stats.Store
	cache     *stats.Store
	posts     platform.Posts
	community platform.Community
	pages     platform.Pages
	provider  platform.Settings
	recorder  *subscribers.Recorder
	logger    *zap.Logger
}

func NewPublisher(
	store, cache *stats.Store,
	posts platform.Posts,
	community platform.Community,
	pages platform.Pages,
	provider platform.Settings,
	recorder *subscribers.Recorder,
	logger *zap.Logger,
) *Publisher {
	return &Publisher{
		store:     store,
		cache:     cache,
		posts:     posts,
		community: community,
		pages:     pages,
		provider:  provider,
		recorder:  recorder,
		logger:    logger.Named("report"),
	}
}

// UpdateEndOfDay is the nightly refresh: the current year's page and the
// summary page.
func (p *Publisher) UpdateEndOfDay(ctx context.Context, _ []byte) error {
	if err := p.publishYearPage(ctx, time.Now().UTC()); err != nil {
		return err
	}

	return p.publishSummaryPage(ctx)
}

// UpdateEndOfYear finalizes the previous year's page. It runs in early
// January so late vote reconciliation still lands on the closed year.
func (p *Publisher) UpdateEndOfYear(ctx context.Context, _ []byte) error {
	lastYear := time.Now().UTC().AddDate(-1, 0, 0)
	endOfYear := time.Date(lastYear.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)

	return p.publishYearPage(ctx, endOfYear)
}

// UpdatePagePermissions re-applies the visibility setting to every
// published page when the setting has changed since the last sweep.
func (p *Publisher) UpdatePagePermissions(ctx context.Context, _ []byte) error {
	snap, err := settings.Load(ctx, p.provider)
	if err != nil {
		return err
	}

	desired := strconv.FormatBool(snap.RestrictToMods)

	current, ok, err := p.store.GetValue(ctx, permissionMemoKey)
	if err != nil {
		return err
	}

	if ok && current == desired {
		return nil
	}

	pages, err := p.store.Members(ctx, pagesKey)
	if err != nil {
		return err
	}

	for _, page := range pages {
		if err := p.pages.SetPagePermissions(ctx, page.Member, permissionLevel(snap)); err != nil {
			return err
		}
	}

	return p.store.SetValue(ctx, permissionMemoKey, desired, 0)
}

// publishPage creates or updates a wiki page, writing only when the
// content changed, then applies permissions and records the page in the
// published index. Writes are retried briefly since page saves hit rate
// limits far more often than reads.
func (p *Publisher) publishPage(ctx context.Context, name, content string, snap settings.Snapshot) error {
	existing, err := p.pages.GetPage(ctx, name)

	switch {
	case errors.Is(err, platform.ErrNotFound):
		err = p.retryWrite(ctx, func() error {
			return p.pages.CreatePage(ctx, name, content)
		})
		if err != nil {
			return err
		}
	case err != nil:
		return err
	case existing != content:
		err = p.retryWrite(ctx, func() error {
			return p.pages.UpdatePage(ctx, name, content)
		})
		if err != nil {
			return err
		}
	default:
		p.logger.Debug("Page content unchanged", zap.String("page", name))
	}

	if err := p.pages.SetPagePermissions(ctx, name, permissionLevel(snap)); err != nil {
		return err
	}

	return p.store.Set(ctx, pagesKey, stats.Entry{Member: name})
}

func (p *Publisher) retryWrite(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(), 3), ctx)

	return backoff.Retry(op, policy)
}

func permissionLevel(snap settings.Snapshot) platform.PagePermission {
	if snap.RestrictToMods {
		return platform.PageModsOnly
	}

	return platform.PageInheritPermissions
}

func yearPageName(date time.Time) string {
	return BasePage + "/" + date.Format("2006")
}
