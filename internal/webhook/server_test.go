package webhook_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redlytics/redlytics/internal/events"
	"github.com/redlytics/redlytics/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	received []any
	fail     bool
}

var errHandler = errors.New("handler failed")

func (r *recorder) record(ev any) error {
	if r.fail {
		return errHandler
	}

	r.received = append(r.received, ev)

	return nil
}

func (r *recorder) HandlePostCreate(_ context.Context, ev events.PostCreate) error {
	return r.record(ev)
}

func (r *recorder) HandleCommentCreate(_ context.Context, ev events.CommentCreate) error {
	return r.record(ev)
}

func (r *recorder) HandlePostDelete(_ context.Context, ev events.PostDelete) error {
	return r.record(ev)
}

func (r *recorder) HandleCommentDelete(_ context.Context, ev events.CommentDelete) error {
	return r.record(ev)
}

func (r *recorder) HandleModAction(_ context.Context, ev events.ModAction) error {
	return r.record(ev)
}

func (r *recorder) HandleInstall(_ context.Context, ev events.AppInstall) error {
	return r.record(ev)
}

func (r *recorder) HandleUpgrade(_ context.Context, ev events.AppUpgrade) error {
	return r.record(ev)
}

func setupTest(t *testing.T) (*recorder, *httptest.Server) {
	t.Helper()

	rec := &recorder{}
	server := httptest.NewServer(webhook.NewServer(rec, rec, zap.NewNop()).Router())
	t.Cleanup(server.Close)

	return rec, server
}

func post(t *testing.T, server *httptest.Server, path, body string) *http.Response {
	t.Helper()

	resp, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestPostCreateDelivered(t *testing.T) {
	t.Parallel()

	rec, server := setupTest(t)

	resp := post(t, server, "/v1/events/post-create",
		`{"id":"t3_abc","author":"alice","createdAt":"2026-03-05T12:00:00Z","spam":false}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Len(t, rec.received, 1)
	ev, ok := rec.received[0].(events.PostCreate)
	require.True(t, ok)
	assert.Equal(t, "t3_abc", ev.ID)
	assert.Equal(t, "alice", ev.Author)
	assert.Equal(t, time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC), ev.CreatedAt)
	assert.False(t, ev.Spam)
}

func TestDeleteSourceNormalized(t *testing.T) {
	t.Parallel()

	rec, server := setupTest(t)

	resp := post(t, server, "/v1/events/post-delete", `{"id":"t3_abc","source":"moderator"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = post(t, server, "/v1/events/comment-delete", `{"id":"t1_def","source":"gibberish"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Len(t, rec.received, 2)
	assert.Equal(t, events.SourceModerator, rec.received[0].(events.PostDelete).Source)
	assert.Equal(t, events.SourceUnknown, rec.received[1].(events.CommentDelete).Source)
}

func TestMalformedBodyRejected(t *testing.T) {
	t.Parallel()

	rec, server := setupTest(t)

	resp := post(t, server, "/v1/events/post-create", `{"id":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, rec.received)
}

func TestHandlerFailureSignalsRedelivery(t *testing.T) {
	t.Parallel()

	rec, server := setupTest(t)
	rec.fail = true

	resp := post(t, server, "/v1/events/mod-action", `{"action":"approvelink","targetId":"t3_abc"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestInstallDefaultsTimestamp(t *testing.T) {
	t.Parallel()

	rec, server := setupTest(t)

	resp := post(t, server, "/v1/events/app-install", `{}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Len(t, rec.received, 1)
	ev, ok := rec.received[0].(events.AppInstall)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), ev.At, time.Minute)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	_, server := setupTest(t)

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}
