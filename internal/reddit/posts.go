package reddit

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/redlytics/redlytics/internal/platform"
)

// topPageSize is the maximum listing page size the API serves.
const topPageSize = 100

// GetTopPosts returns up to limit top posts for the timeframe, following
// listing pagination. The vote reconciliation job asks for up to a thousand
// posts per pass, well past a single page.
func (c *Client) GetTopPosts(ctx context.Context, timeframe platform.Timeframe, limit int) ([]*platform.PostSnapshot, error) {
	posts := make([]*platform.PostSnapshot, 0, min(limit, topPageSize))
	after := ""

	for len(posts) < limit {
		query := url.Values{
			"t":     {string(timeframe)},
			"limit": {strconv.Itoa(min(limit-len(posts), topPageSize))},
		}
		if after != "" {
			query.Set("after", after)
		}

		var page listing[linkData]
		if err := c.get(ctx, fmt.Sprintf("/r/%s/top.json", c.subreddit), query, &page); err != nil {
			return nil, err
		}

		for _, child := range page.Data.Children {
			posts = append(posts, child.Data.snapshot())
		}

		after = page.Data.After
		if after == "" || len(page.Data.Children) == 0 {
			break
		}
	}

	return posts, nil
}

// GetPostByID returns a single post snapshot by fullname, or
// platform.ErrNotFound if the post no longer resolves.
func (c *Client) GetPostByID(ctx context.Context, id string) (*platform.PostSnapshot, error) {
	query := url.Values{"id": {id}}

	var page listing[linkData]
	if err := c.get(ctx, "/api/info.json", query, &page); err != nil {
		return nil, err
	}

	if len(page.Data.Children) == 0 {
		return nil, fmt.Errorf("post %s: %w", id, platform.ErrNotFound)
	}

	return page.Data.Children[0].Data.snapshot(), nil
}
