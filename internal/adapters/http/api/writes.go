// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sadwik-learner/feedsync/internal/auth"
	"github.com/sadwik-learner/feedsync/internal/engine/writer"
)

// postRequest mirrors the wire schema for POST /posts.
type postRequest struct {
	Text      string `json:"text"`
	Anonymous bool   `json:"anonymous"`
}

// commentRequest mirrors the wire schema for POST /posts/{id}/comments.
type commentRequest struct {
	Text      string `json:"text"`
	Anonymous bool   `json:"anonymous"`
}

// skillRequest mirrors the wire schema for POST /skills.
type skillRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Anonymous   bool   `json:"anonymous"`
}

// messageRequest mirrors the wire schema for POST /messages.
type messageRequest struct {
	Text      string `json:"text"`
	Anonymous bool   `json:"anonymous"`
}

// WriteHandler handles all mutation endpoints.
type WriteHandler struct {
	deps     Dependencies
	verifier *auth.Verifier
}

// NewWriteHandler creates a new write handler.
func NewWriteHandler(deps Dependencies, verifier *auth.Verifier) *WriteHandler {
	return &WriteHandler{deps: deps, verifier: verifier}
}

// HandleCreatePost handles POST /posts requests.
func (h *WriteHandler) HandleCreatePost(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_token", ErrBadToken)
		return
	}
	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id, err := h.deps.SubmitPost(r.Context(), principal, writer.CreatePostRequest{
		Text:      req.Text,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// HandleCreateComment handles POST /posts/{id}/comments requests.
func (h *WriteHandler) HandleCreateComment(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_token", ErrBadToken)
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id, err := h.deps.SubmitComment(r.Context(), principal, writer.CreateCommentRequest{
		PostID:    r.PathValue("id"),
		Text:      req.Text,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// HandleLike handles POST /posts/{id}/like requests.
func (h *WriteHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_token", ErrBadToken)
		return
	}
	if err := h.deps.SubmitLike(r.Context(), principal, r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCreateSkill handles POST /skills requests.
func (h *WriteHandler) HandleCreateSkill(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_token", ErrBadToken)
		return
	}
	var req skillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id, err := h.deps.SubmitSkillListing(r.Context(), principal, writer.CreateSkillRequest{
		Title:       req.Title,
		Description: req.Description,
		Anonymous:   req.Anonymous,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// HandleCreateMessage handles POST /messages requests.
func (h *WriteHandler) HandleCreateMessage(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_token", ErrBadToken)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id, err := h.deps.SubmitMessage(r.Context(), principal, writer.CreateMessageRequest{
		Text:      req.Text,
		Anonymous: req.Anonymous,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}
