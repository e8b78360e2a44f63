package reddit

import (
	"context"
	"fmt"
	"net/url"

	"github.com/redlytics/redlytics/internal/platform"
)

// GetUserByUsername returns the user's visible profile. Deleted accounts 404
// and suspended accounts carry is_suspended, both of which map to
// platform.ErrNotFound so the caller treats them uniformly as not visible.
func (c *Client) GetUserByUsername(ctx context.Context, username string) (*platform.User, error) {
	var about thing[userData]
	if err := c.get(ctx, fmt.Sprintf("/user/%s/about.json", url.PathEscape(username)), nil, &about); err != nil {
		return nil, err
	}

	if about.Data.IsSuspended {
		return nil, fmt.Errorf("user %s is suspended: %w", username, platform.ErrNotFound)
	}

	return &platform.User{
		Username:  about.Data.Name,
		CreatedAt: epochTime(about.Data.CreatedUTC),
	}, nil
}

// GetModeratorNotes probes the mod notes endpoint for the user. Notes remain
// retrievable for suspended and shadowbanned accounts but not for deleted
// ones, which is what disambiguates a failed profile lookup.
func (c *Client) GetModeratorNotes(ctx context.Context, username string) error {
	query := url.Values{
		"subreddit": {c.subreddit},
		"user":      {username},
		"limit":     {"1"},
	}

	return c.get(ctx, "/api/mod/notes.json", query, nil)
}
