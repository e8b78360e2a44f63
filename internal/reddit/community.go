package reddit

import (
	"context"
	"fmt"

	"github.com/redlytics/redlytics/internal/platform"
)

// GetSubreddit returns the community's current profile, including the live
// subscriber count sampled by the daily recorder.
func (c *Client) GetSubreddit(ctx context.Context) (*platform.Subreddit, error) {
	var about thing[subredditData]
	if err := c.get(ctx, fmt.Sprintf("/r/%s/about.json", c.subreddit), nil, &about); err != nil {
		return nil, err
	}

	return &platform.Subreddit{
		Name:        about.Data.DisplayName,
		Subscribers: about.Data.Subscribers,
		CreatedAt:   epochTime(about.Data.CreatedUTC),
	}, nil
}

// SendModmail opens a moderator conversation addressed to the community's
// own inbox. Used once, for the post-install welcome message.
func (c *Client) SendModmail(ctx context.Context, subject, bodyMarkdown string) error {
	payload := map[string]any{
		"srName":  c.subreddit,
		"subject": subject,
		"body":    bodyMarkdown,
	}

	return c.post(ctx, "/api/mod/conversations.json", payload, nil)
}
