// Package events defines the typed platform events the service consumes
// and the dispatch surface connecting them to handlers.
package events

import (
	"context"
	"time"
)

// DeleteSource identifies who removed a piece of content.
type DeleteSource string

const (
	SourceUnknown   DeleteSource = "unknown"
	SourceUser      DeleteSource = "user"
	SourceAdmin     DeleteSource = "admin"
	SourceModerator DeleteSource = "moderator"
)

// NonAuthor reports whether the removal was done by someone other than the
// content's author. Unknown sources count as non-author removals.
func (s DeleteSource) NonAuthor() bool {
	return s != SourceUser
}

// Moderator log actions that affect counting or the cached moderator list.
const (
	ActionApproveLink      = "approvelink"
	ActionApproveComment   = "approvecomment"
	ActionAcceptModInvite  = "acceptmoderatorinvite"
	ActionAddModerator     = "addmoderator"
	ActionRemoveModerator  = "removemoderator"
	ActionInviteModerator  = "invitemoderator"
	ActionSetPermissions   = "setpermissions"
	ActionReorderModerator = "reordermoderators"
)

// PostCreate is emitted when a post is submitted.
type PostCreate struct {
	ID        string
	Author    string
	CreatedAt time.Time
	// Spam is set when the platform's filters caught the post at submission.
	Spam bool
}

// CommentCreate is emitted when a comment is submitted.
type CommentCreate struct {
	ID        string
	Author    string
	CreatedAt time.Time
	Spam      bool
}

// PostDelete is emitted when a post is deleted or removed.
type PostDelete struct {
	ID     string
	Source DeleteSource
}

// CommentDelete is emitted when a comment is deleted or removed.
type CommentDelete struct {
	ID     string
	Source DeleteSource
}

// ModAction is a moderation log entry. Target fields are populated for
// approve actions so a filtered item can be recounted with its original
// attribution.
type ModAction struct {
	Action          string
	Moderator       string
	TargetID        string
	TargetAuthor    string
	TargetCreatedAt time.Time
	TargetIsPost    bool
}

// AppInstall fires once when the service is first installed on a community.
type AppInstall struct {
	At time.Time
}

// AppUpgrade fires on every subsequent version change.
type AppUpgrade struct {
	At time.Time
}

// Handler receives the content and moderation event stream.
type Handler interface {
	HandlePostCreate(ctx context.Context, ev PostCreate) error
	HandleCommentCreate(ctx context.Context, ev CommentCreate) error
	HandlePostDelete(ctx context.Context, ev PostDelete) error
	HandleCommentDelete(ctx context.Context, ev CommentDelete) error
	HandleModAction(ctx context.Context, ev ModAction) error
}

// Lifecycle receives install and upgrade events.
type Lifecycle interface {
	HandleInstall(ctx context.Context, ev AppInstall) error
	HandleUpgrade(ctx context.Context, ev AppUpgrade) error
}

// Dispatch routes a decoded event to the matching handler method.
func Dispatch(ctx context.Context, h Handler, l Lifecycle, ev any) error {
	switch e := ev.(type) {
	case PostCreate:
		return h.HandlePostCreate(ctx, e)
	case CommentCreate:
		return h.HandleCommentCreate(ctx, e)
	case PostDelete:
		return h.HandlePostDelete(ctx, e)
	case CommentDelete:
		return h.HandleCommentDelete(ctx, e)
	case ModAction:
		return h.HandleModAction(ctx, e)
	case AppInstall:
		return l.HandleInstall(ctx, e)
	case AppUpgrade:
		return l.HandleUpgrade(ctx, e)
	default:
		return ErrUnknownEvent
	}
}
