// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sadwik-learner/feedsync/internal/auth"
	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/internal/engine"
	"github.com/sadwik-learner/feedsync/internal/engine/writer"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the engine implementation.
type Dependencies interface {
	ObserveFeed(selector model.Selector) (*engine.FeedHandle, error)
	SubmitPost(ctx context.Context, principal *model.Principal, req writer.CreatePostRequest) (string, error)
	SubmitComment(ctx context.Context, principal *model.Principal, req writer.CreateCommentRequest) (string, error)
	SubmitLike(ctx context.Context, principal *model.Principal, postID string) error
	SubmitSkillListing(ctx context.Context, principal *model.Principal, req writer.CreateSkillRequest) (string, error)
	SubmitMessage(ctx context.Context, principal *model.Principal, req writer.CreateMessageRequest) (string, error)
	SubmitProfile(ctx context.Context, principal *model.Principal, req writer.CreateProfileRequest) (string, error)
	ProfileOf(ctx context.Context, principalID string) (model.Profile, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	writeHandler   *WriteHandler
	feedHandler    *FeedHandler
	streamHandler  *StreamHandler
	profileHandler *ProfileHandler
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, verifier *auth.Verifier, statsProvider StatsProvider) *Server {
	return &Server{
		writeHandler:   NewWriteHandler(deps, verifier),
		feedHandler:    NewFeedHandler(deps),
		streamHandler:  NewStreamHandler(deps),
		profileHandler: NewProfileHandler(deps, verifier),
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /posts", MetricsMiddleware(s.writeHandler.HandleCreatePost, "posts"))
	mux.HandleFunc("POST /posts/{id}/comments", MetricsMiddleware(s.writeHandler.HandleCreateComment, "comments"))
	mux.HandleFunc("POST /posts/{id}/like", MetricsMiddleware(s.writeHandler.HandleLike, "like"))
	mux.HandleFunc("POST /skills", MetricsMiddleware(s.writeHandler.HandleCreateSkill, "skills"))
	mux.HandleFunc("POST /messages", MetricsMiddleware(s.writeHandler.HandleCreateMessage, "messages"))

	mux.HandleFunc("POST /profiles", MetricsMiddleware(s.profileHandler.HandleCreateProfile, "profiles"))
	mux.HandleFunc("GET /profiles/{id}", MetricsMiddleware(s.profileHandler.HandleGetProfile, "profiles"))

	mux.HandleFunc("GET /feed", MetricsMiddleware(s.feedHandler.HandleGetFeed, "feed"))
	mux.HandleFunc("GET /ws/feed", s.streamHandler.HandleStream)
}

// feedEntry mirrors the wire shape of one rendered feed entry.
type feedEntry struct {
	ID          string `json:"id,omitempty"`
	LocalID     string `json:"localId,omitempty"`
	Kind        string `json:"kind"`
	ParentID    string `json:"parentId,omitempty"`
	DisplayName string `json:"displayName"`
	Contact     string `json:"contact,omitempty"`
	Text        string `json:"text,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
	Likes       int64  `json:"likes"`
	Pending     bool   `json:"pending,omitempty"`
}

func toFeedEntries(entries []model.Entry) []feedEntry {
	out := make([]feedEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, feedEntry{
			ID:          e.ID,
			LocalID:     e.LocalID,
			Kind:        string(e.Kind),
			ParentID:    e.ParentID,
			DisplayName: e.DisplayName,
			Contact:     e.Contact,
			Text:        e.Text,
			Title:       e.Title,
			Description: e.Description,
			CreatedAt:   e.CreatedAt.UTC().Format(time.RFC3339Nano),
			Likes:       e.LikeCount,
			Pending:     e.State == model.StatePending,
		})
	}
	return out
}

// selectorFromQuery maps feed query params to a selector. Supported kinds:
// post (default), comment (requires postId), skill, message.
func selectorFromQuery(r *http.Request) (model.Selector, error) {
	kind := r.URL.Query().Get("kind")
	switch kind {
	case "", "post":
		return model.PostsFeed(), nil
	case "comment":
		postID := r.URL.Query().Get("postId")
		if postID == "" {
			return model.Selector{}, errors.New("comment feed requires postId")
		}
		return model.CommentsFeed(postID), nil
	case "skill":
		return model.SkillsFeed(), nil
	case "message":
		return model.MessagesFeed(), nil
	default:
		return model.Selector{}, errors.New("unknown feed kind")
	}
}

type createdResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError translates write coordinator errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, writer.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", err)
	case errors.Is(err, writer.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err)
	case errors.Is(err, writer.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, writer.ErrTransport):
		writeError(w, http.StatusBadGateway, "transport", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
