package reddit

import (
	"time"

	"github.com/redlytics/redlytics/internal/platform"
)

// thing is Reddit's generic JSON envelope. Kind discriminates the payload;
// this adapter only ever decodes the kinds it asked for, so Data is typed
// per call site instead of dispatching on Kind.
type thing[T any] struct {
	Kind string `json:"kind"`
	Data T      `json:"data"`
}

// listing is the paginated container used by every bulk endpoint.
type listing[T any] struct {
	Data struct {
		After    string     `json:"after"`
		Children []thing[T] `json:"children"`
	} `json:"data"`
}

// userData is the subset of /user/{name}/about the service reads.
type userData struct {
	Name        string  `json:"name"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSuspended bool    `json:"is_suspended"`
}

// subredditData is the subset of /r/{sub}/about the service reads.
type subredditData struct {
	DisplayName string  `json:"display_name"`
	Subscribers int64   `json:"subscribers"`
	CreatedUTC  float64 `json:"created_utc"`
}

// linkData is the subset of a t3 link object the service reads. banned_by
// is `false` for listed posts and a username string once removed, so it
// decodes as any and is coerced later.
type linkData struct {
	Name              string  `json:"name"`
	Title             string  `json:"title"`
	Permalink         string  `json:"permalink"`
	Author            string  `json:"author"`
	CreatedUTC        float64 `json:"created_utc"`
	Score             int64   `json:"score"`
	Over18            bool    `json:"over_18"`
	Spoiler           bool    `json:"spoiler"`
	URL               string  `json:"url"`
	BannedBy          any     `json:"banned_by"`
	RemovedByCategory string  `json:"removed_by_category"`
}

// snapshot converts the wire representation into the platform view.
func (d *linkData) snapshot() *platform.PostSnapshot {
	removedBy, _ := d.BannedBy.(string)

	return &platform.PostSnapshot{
		ID:                d.Name,
		Title:             d.Title,
		Permalink:         d.Permalink,
		AuthorName:        d.Author,
		CreatedAt:         epochTime(d.CreatedUTC),
		Score:             d.Score,
		NSFW:              d.Over18,
		Spoiler:           d.Spoiler,
		URL:               d.URL,
		Removed:           removedBy != "" || d.RemovedByCategory != "",
		RemovedBy:         removedBy,
		RemovedByCategory: d.RemovedByCategory,
	}
}

// wikiPageData is the subset of /r/{sub}/wiki/{page} the service reads.
type wikiPageData struct {
	ContentMD string `json:"content_md"`
}

func epochTime(seconds float64) time.Time {
	return time.Unix(int64(seconds), 0).UTC()
}
