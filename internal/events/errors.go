package events

import "errors"

// ErrUnknownEvent is returned by Dispatch for event types it has no route for.
var ErrUnknownEvent = errors.New("events: unknown event type")
