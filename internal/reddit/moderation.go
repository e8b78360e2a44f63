package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/redlytics/redlytics/internal/platform"
)

// modQueuePageSize is the listing page size for moderation queue scans.
const modQueuePageSize = 100

// GetModerationQueue returns up to limit of the most recent queued items,
// following listing pagination until the limit is met or the queue ends.
func (c *Client) GetModerationQueue(ctx context.Context, limit int) ([]platform.QueueItem, error) {
	items := make([]platform.QueueItem, 0, min(limit, modQueuePageSize))
	after := ""

	for len(items) < limit {
		query := url.Values{
			"limit": {strconv.Itoa(min(limit-len(items), modQueuePageSize))},
		}
		if after != "" {
			query.Set("after", after)
		}

		var page listing[struct {
			Name string `json:"name"`
		}]
		if err := c.get(ctx, fmt.Sprintf("/r/%s/about/modqueue.json", c.subreddit), query, &page); err != nil {
			return nil, err
		}

		for _, child := range page.Data.Children {
			items = append(items, platform.QueueItem{ID: child.Data.Name})
		}

		after = page.Data.After
		if after == "" || len(page.Data.Children) == 0 {
			break
		}
	}

	return items, nil
}

// GetModerators returns the usernames on the community's moderator roster.
func (c *Client) GetModerators(ctx context.Context) ([]string, error) {
	var roster struct {
		Data struct {
			Children []struct {
				Name string `json:"name"`
			} `json:"children"`
		} `json:"data"`
	}

	if err := c.get(ctx, fmt.Sprintf("/r/%s/about/moderators.json", c.subreddit), nil, &roster); err != nil {
		return nil, err
	}

	names := make([]string, len(roster.Data.Children))
	for i, child := range roster.Data.Children {
		names[i] = child.Name
	}

	return names, nil
}
