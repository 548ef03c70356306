// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/sadwik-learner/feedsync/internal/auth"
	"github.com/sadwik-learner/feedsync/internal/domain/model"
	"github.com/sadwik-learner/feedsync/internal/engine/writer"
)

// profileRequest mirrors the wire schema for POST /profiles.
type profileRequest struct {
	Role      string `json:"role"`
	Branch    string `json:"branch"`
	Bio       string `json:"bio"`
	Skills    string `json:"skills"`
	Interests string `json:"interests"`
	Contact   string `json:"contact"`
}

// profileResponse mirrors the wire shape of GET /profiles/{id}.
type profileResponse struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	Branch    string `json:"branch,omitempty"`
	Bio       string `json:"bio,omitempty"`
	Skills    string `json:"skills,omitempty"`
	Interests string `json:"interests,omitempty"`
	Contact   string `json:"contact,omitempty"`
}

// ProfileHandler handles profile endpoints.
type ProfileHandler struct {
	deps     Dependencies
	verifier *auth.Verifier
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(deps Dependencies, verifier *auth.Verifier) *ProfileHandler {
	return &ProfileHandler{deps: deps, verifier: verifier}
}

// HandleCreateProfile handles POST /profiles requests.
func (h *ProfileHandler) HandleCreateProfile(w http.ResponseWriter, r *http.Request) {
	principal, err := h.verifier.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "bad_token", ErrBadToken)
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	id, err := h.deps.SubmitProfile(r.Context(), principal, writer.CreateProfileRequest{
		Role:      req.Role,
		Branch:    req.Branch,
		Bio:       req.Bio,
		Skills:    req.Skills,
		Interests: req.Interests,
		Contact:   req.Contact,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// HandleGetProfile handles GET /profiles/{id} requests.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.deps.ProfileOf(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

func toProfileResponse(p model.Profile) profileResponse {
	return profileResponse{
		UID:       p.PrincipalID,
		Name:      p.Name,
		Email:     p.Email,
		Role:      p.Role,
		Branch:    p.Branch,
		Bio:       p.Bio,
		Skills:    p.Skills,
		Interests: p.Interests,
		Contact:   p.Contact,
	}
}
