package ingest

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
)

const markerPrefix = "item~"

// marker records that a content item's counts have been applied, keyed by
// thing ID. Its presence is what makes deletion handling idempotent.
type marker struct {
	Author      string    `json:"author"`
	CreatedDate time.Time `json:"createdDate"`
}

func markerKey(thingID string) string {
	return markerPrefix + thingID
}

// markerExpiry is the end of the day after the item's creation day. Past
// that point a delete event can no longer be reversed anyway.
func markerExpiry(createdAt time.Time) time.Time {
	day := createdAt.UTC().Truncate(24 * time.Hour)
	return day.Add(48 * time.Hour)
}

func (h *Handler) writeMarker(ctx context.Context, thingID string, m marker) error {
	ttl := time.Until(markerExpiry(m.CreatedDate))
	if ttl <= 0 {
		// Late replay of an old creation; the marker would already have
		// expired, so there is nothing to track.
		return nil
	}

	payload, err := sonic.Marshal(m)
	if err != nil {
		return err
	}

	return h.stats.SetValue(ctx, markerKey(thingID), string(payload), ttl)
}

func (h *Handler) readMarker(ctx context.Context, thingID string) (marker, bool, error) {
	raw, ok, err := h.stats.GetValue(ctx, markerKey(thingID))
	if err != nil || !ok {
		return marker{}, false, err
	}

	var m marker
	if err := sonic.Unmarshal([]byte(raw), &m); err != nil {
		return marker{}, false, err
	}

	return m, true, nil
}

func (h *Handler) deleteMarker(ctx context.Context, thingID string) error {
	return h.stats.DeleteValue(ctx, markerKey(thingID))
}

// hasMarker is the duplicate-creation guard.
func (h *Handler) hasMarker(ctx context.Context, thingID string) (bool, error) {
	_, ok, err := h.stats.GetValue(ctx, markerKey(thingID))
	return ok, err
}
