// Package platformtest provides an in-memory platform.Client for tests.
package platformtest

import (
	"context"
	"sync"
	"time"

	"github.com/redlytics/redlytics/internal/platform"
)

// Fake is a configurable in-memory platform.Client. Zero value is usable:
// every lookup misses and every write succeeds.
type Fake struct {
	mu sync.Mutex

	// Users visible via GetUserByUsername.
	Users map[string]*platform.User
	// NotesKnown holds usernames whose moderator notes are retrievable.
	NotesKnown map[string]struct{}
	// Queue is the moderation queue snapshot.
	Queue []platform.QueueItem
	// Moderators is the roster returned by GetModerators.
	Moderators []string
	// TopPosts returned by GetTopPosts.
	TopPosts []*platform.PostSnapshot
	// PostsByID returned by GetPostById.
	PostsByID map[string]*platform.PostSnapshot
	// Sub is the community snapshot.
	Sub platform.Subreddit
	// SettingsMap is the raw settings bag.
	SettingsMap map[string]any
	// Pages holds published page content by name.
	Pages map[string]string
	// PagePerms holds the last permission level set per page.
	PagePerms map[string]platform.PagePermission
	// Modmail records sent modmail subjects.
	Modmail []string

	// Call counters for assertions.
	UserLookups    int
	PostLookups    int
	TopPostCalls   int
	PageWrites     int
	ModeratorCalls int
}

func (f *Fake) GetUserByUsername(_ context.Context, username string) (*platform.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.UserLookups++

	if user, ok := f.Users[username]; ok {
		return user, nil
	}

	return nil, platform.ErrNotFound
}

func (f *Fake) GetModeratorNotes(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.NotesKnown[username]; ok {
		return nil
	}

	return platform.ErrNotFound
}

func (f *Fake) GetModerationQueue(_ context.Context, limit int) ([]platform.QueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Queue) > limit {
		return f.Queue[:limit], nil
	}

	return f.Queue, nil
}

func (f *Fake) GetModerators(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ModeratorCalls++

	return f.Moderators, nil
}

func (f *Fake) GetTopPosts(_ context.Context, _ platform.Timeframe, limit int) ([]*platform.PostSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.TopPostCalls++

	if len(f.TopPosts) > limit {
		return f.TopPosts[:limit], nil
	}

	return f.TopPosts, nil
}

func (f *Fake) GetPostByID(_ context.Context, id string) (*platform.PostSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.PostLookups++

	if post, ok := f.PostsByID[id]; ok {
		return post, nil
	}

	return nil, platform.ErrNotFound
}

func (f *Fake) GetSubreddit(context.Context) (*platform.Subreddit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := f.Sub

	return &sub, nil
}

func (f *Fake) GetPage(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if content, ok := f.Pages[name]; ok {
		return content, nil
	}

	return "", platform.ErrNotFound
}

func (f *Fake) CreatePage(_ context.Context, name, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Pages == nil {
		f.Pages = make(map[string]string)
	}

	f.PageWrites++
	f.Pages[name] = content

	return nil
}

func (f *Fake) UpdatePage(ctx context.Context, name, content string) error {
	return f.CreatePage(ctx, name, content)
}

func (f *Fake) SetPagePermissions(_ context.Context, name string, level platform.PagePermission) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PagePerms == nil {
		f.PagePerms = make(map[string]platform.PagePermission)
	}

	f.PagePerms[name] = level

	return nil
}

func (f *Fake) GetSettings(context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SettingsMap == nil {
		return map[string]any{}, nil
	}

	return f.SettingsMap, nil
}

func (f *Fake) SendModmail(_ context.Context, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Modmail = append(f.Modmail, subject)

	return nil
}

// AddUser marks a username as visible.
func (f *Fake) AddUser(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Users == nil {
		f.Users = make(map[string]*platform.User)
	}

	f.Users[username] = &platform.User{Username: username, CreatedAt: time.Now()}
}

// RemoveUser makes a username invisible again.
func (f *Fake) RemoveUser(username string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.Users, username)
}

var _ platform.Client = (*Fake)(nil)
