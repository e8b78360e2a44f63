// Package webhook exposes the HTTP ingress the platform bridge delivers
// events through. Each event type has its own endpoint with a small JSON
// body; delivery is at-least-once, so handlers downstream dedupe through
// item markers.
package webhook

import (
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
	"github.com/redlytics/redlytics/internal/events"
	"go.uber.org/zap"
)

// Server routes incoming platform events to the registered handlers.
type Server struct {
	handler   events.Handler
	lifecycle events.Lifecycle
	logger    *zap.Logger
}

// NewServer creates the event ingress server.
func NewServer(handler events.Handler, lifecycle events.Lifecycle, logger *zap.Logger) *Server {
	return &Server{
		handler:   handler,
		lifecycle: lifecycle,
		logger:    logger.Named("webhook"),
	}
}

// Router builds the HTTP routing table.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/v1/events").Subrouter()
	api.HandleFunc("/post-create", handle(s, decodePostCreate)).Methods(http.MethodPost)
	api.HandleFunc("/comment-create", handle(s, decodeCommentCreate)).Methods(http.MethodPost)
	api.HandleFunc("/post-delete", handle(s, decodePostDelete)).Methods(http.MethodPost)
	api.HandleFunc("/comment-delete", handle(s, decodeCommentDelete)).Methods(http.MethodPost)
	api.HandleFunc("/mod-action", handle(s, decodeModAction)).Methods(http.MethodPost)
	api.HandleFunc("/app-install", handle(s, decodeAppInstall)).Methods(http.MethodPost)
	api.HandleFunc("/app-upgrade", handle(s, decodeAppUpgrade)).Methods(http.MethodPost)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	return router
}

// handle wraps a decoder into an HTTP handler that dispatches the decoded
// event. A failed dispatch returns 500 so the bridge redelivers.
func handle(s *Server, decode func([]byte) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		ev, err := decode(body)
		if err != nil {
			s.logger.Warn("Rejected malformed event",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := events.Dispatch(r.Context(), s.handler, s.lifecycle, ev); err != nil {
			s.logger.Error("Event handler failed",
				zap.String("path", r.URL.Path),
				zap.Error(err))
			http.Error(w, "event handling failed", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type createBody struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Spam      bool      `json:"spam"`
}

type deleteBody struct {
	ID     string `json:"id"`
	Source string `json:"source"`
}

type modActionBody struct {
	Action          string    `json:"action"`
	Moderator       string    `json:"moderator"`
	TargetID        string    `json:"targetId"`
	TargetAuthor    string    `json:"targetAuthor"`
	TargetCreatedAt time.Time `json:"targetCreatedAt"`
	TargetIsPost    bool      `json:"targetIsPost"`
}

type lifecycleBody struct {
	At time.Time `json:"at"`
}

func decodePostCreate(body []byte) (any, error) {
	var b createBody
	if err := sonic.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	return events.PostCreate{ID: b.ID, Author: b.Author, CreatedAt: b.CreatedAt, Spam: b.Spam}, nil
}

func decodeCommentCreate(body []byte) (any, error) {
	var b createBody
	if err := sonic.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	return events.CommentCreate{ID: b.ID, Author: b.Author, CreatedAt: b.CreatedAt, Spam: b.Spam}, nil
}

func decodePostDelete(body []byte) (any, error) {
	var b deleteBody
	if err := sonic.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	return events.PostDelete{ID: b.ID, Source: deleteSource(b.Source)}, nil
}

func decodeCommentDelete(body []byte) (any, error) {
	var b deleteBody
	if err := sonic.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	return events.CommentDelete{ID: b.ID, Source: deleteSource(b.Source)}, nil
}

func decodeModAction(body []byte) (any, error) {
	var b modActionBody
	if err := sonic.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	return events.ModAction{
		Action:          b.Action,
		Moderator:       b.Moderator,
		TargetID:        b.TargetID,
		TargetAuthor:    b.TargetAuthor,
		TargetCreatedAt: b.TargetCreatedAt,
		TargetIsPost:    b.TargetIsPost,
	}, nil
}

func decodeAppInstall(body []byte) (any, error) {
	var b lifecycleBody
	if err := sonic.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	if b.At.IsZero() {
		b.At = time.Now().UTC()
	}

	return events.AppInstall{At: b.At}, nil
}

func decodeAppUpgrade(body []byte) (any, error) {
	var b lifecycleBody
	if err := sonic.Unmarshal(body, &b); err != nil {
		return nil, err
	}

	if b.At.IsZero() {
		b.At = time.Now().UTC()
	}

	return events.AppUpgrade{At: b.At}, nil
}

func deleteSource(s string) events.DeleteSource {
	switch events.DeleteSource(s) {
	case events.SourceUser, events.SourceAdmin, events.SourceModerator:
		return events.DeleteSource(s)
	default:
		return events.SourceUnknown
	}
}
