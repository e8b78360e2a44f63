package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/redlytics/redlytics/internal/platform"
)

// wiki permission levels as the API encodes them.
const (
	permLevelInherit  = 0
	permLevelModsOnly = 2
)

// GetPage returns the page's current markdown, or platform.ErrNotFound if
// the page has never been created.
func (c *Client) GetPage(ctx context.Context, name string) (string, error) {
	var page thing[wikiPageData]
	if err := c.get(ctx, fmt.Sprintf("/r/%s/wiki/%s.json", c.subreddit, url.PathEscape(name)), nil, &page); err != nil {
		return "", err
	}

	return page.Data.ContentMD, nil
}

// CreatePage writes a page for the first time.
func (c *Client) CreatePage(ctx context.Context, name, content string) error {
	return c.editPage(ctx, name, content, "create")
}

// UpdatePage replaces an existing page's content.
func (c *Client) UpdatePage(ctx context.Context, name, content string) error {
	return c.editPage(ctx, name, content, "refresh")
}

func (c *Client) editPage(ctx context.Context, name, content, reason string) error {
	payload := map[string]any{
		"page":    name,
		"content": content,
		"reason":  reason,
	}

	return c.post(ctx, fmt.Sprintf("/r/%s/api/wiki/edit.json", c.subreddit), payload, nil)
}

// SetPagePermissions adjusts who can view the page. Pages stay listed in
// the wiki index either way.
func (c *Client) SetPagePermissions(ctx context.Context, name string, level platform.PagePermission) error {
	permLevel := permLevelInherit
	if level == platform.PageModsOnly {
		permLevel = permLevelModsOnly
	}

	payload := map[string]any{
		"permlevel": permLevel,
		"listed":    true,
	}

	return c.post(ctx, fmt.Sprintf("/r/%s/wiki/settings/%s.json", c.subreddit, url.PathEscape(name)), payload, nil)
}

// GetSettings reads the operator-editable options from the config wiki
// page. A missing or empty page yields an empty mapping, which the settings
// package fills with defaults.
func (c *Client) GetSettings(ctx context.Context) (map[string]any, error) {
	raw, err := c.GetPage(ctx, settingsPage)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return map[string]any{}, nil
		}

		return nil, err
	}

	if raw == "" {
		return map[string]any{}, nil
	}

	settings := make(map[string]any)
	if err := sonic.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("config page %s is not valid JSON: %w", settingsPage, err)
	}

	return settings, nil
}
