// Package platform defines the narrow interfaces through which the service
// observes the hosting platform. Everything behind these interfaces is an
// external collaborator: event delivery, moderation lookups, page publishing
// and dynamic settings. The aggregation core never mutates platform state
// other than its own wiki pages.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups for entities that do not exist or are
// not visible to the service. Callers treat it as a normal branch.
var ErrNotFound = errors.New("platform: not found")

// Timeframe selects the window for bulk top-post lookups.
type Timeframe string

const (
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// PagePermission controls who can view a published report page.
type PagePermission int

const (
	// PageInheritPermissions leaves visibility to the community's own rules.
	PageInheritPermissions PagePermission = iota
	// PageModsOnly restricts the page to moderators.
	PageModsOnly
)

// User is the visible profile of an account. A lookup that fails with
// ErrNotFound may mean deleted, suspended or shadowbanned; the liveness
// tracker disambiguates with a moderator-notes probe.
type User struct {
	Username  string
	CreatedAt time.Time
}

// Subreddit describes the community being aggregated.
type Subreddit struct {
	Name        string
	Subscribers int64
	CreatedAt   time.Time
}

// PostSnapshot is the platform's view of a post at lookup time. Scores are
// eventually consistent; the vote reconciliation job refreshes them.
type PostSnapshot struct {
	ID                string
	Title             string
	Permalink         string
	AuthorName        string
	CreatedAt         time.Time
	Score             int64
	NSFW              bool
	Spoiler           bool
	URL               string
	Removed           bool
	RemovedBy         string
	RemovedByCategory string
}

// QueueItem identifies an entry in the moderation queue.
type QueueItem struct {
	ID string
}

// Users resolves account state.
type Users interface {
	// GetUserByUsername returns the user, or ErrNotFound if the account is
	// deleted, suspended or shadowbanned.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetModeratorNotes probes whether moderator notes are retrievable for
	// the user. Notes remain retrievable for shadowbanned and suspended
	// accounts but not for deleted ones.
	GetModeratorNotes(ctx context.Context, username string) error
}

// Moderation exposes the moderation queue and the moderator roster.
type Moderation interface {
	// GetModerationQueue returns up to limit of the most recent queued items.
	GetModerationQueue(ctx context.Context, limit int) ([]QueueItem, error)

	// GetModerators returns the usernames of the community's moderators.
	GetModerators(ctx context.Context) ([]string, error)
}

// Posts resolves post snapshots.
type Posts interface {
	// GetTopPosts returns up to limit top posts for the timeframe.
	GetTopPosts(ctx context.Context, timeframe Timeframe, limit int) ([]*PostSnapshot, error)

	// GetPostByID returns a single post snapshot, or ErrNotFound.
	GetPostByID(ctx context.Context, id string) (*PostSnapshot, error)
}

// Community resolves the subreddit itself.
type Community interface {
	GetSubreddit(ctx context.Context) (*Subreddit, error)
}

// Pages publishes report pages.
type Pages interface {
	// GetPage returns the current page content, or ErrNotFound if the page
	// has never been created.
	GetPage(ctx context.Context, name string) (string, error)

	CreatePage(ctx context.Context, name, content string) error
	UpdatePage(ctx context.Context, name, content string) error
	SetPagePermissions(ctx context.Context, name string, level PagePermission) error
}

// Settings reads the dynamic, operator-editable options bag.
type Settings interface {
	// GetSettings returns the raw settings mapping. Recognized keys are
	// enumerated in the settings package.
	GetSettings(ctx context.Context) (map[string]any, error)
}

// Modmail delivers messages to the moderator inbox.
type Modmail interface {
	SendModmail(ctx context.Context, subject, bodyMarkdown string) error
}

// Client bundles every platform capability the service consumes.
type Client interface {
	Users
	Moderation
	Posts
	Community
	Pages
	Settings
	Modmail
}
