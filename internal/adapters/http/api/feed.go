// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"
)

// feedResponse is the wire shape of one full feed snapshot.
type feedResponse struct {
	Kind    string      `json:"kind"`
	Entries []feedEntry `json:"entries"`
}

// FeedHandler serves one-shot feed snapshots.
type FeedHandler struct {
	deps Dependencies
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps Dependencies) *FeedHandler {
	return &FeedHandler{deps: deps}
}

// HandleGetFeed handles GET /feed?kind=...&postId=... requests. It opens
// the live feed, returns the first snapshot, and releases the handle.
func (h *FeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	selector, err := selectorFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	handle, err := h.deps.ObserveFeed(selector)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
		return
	}
	defer handle.Close()

	timeout := time.NewTimer(5 * time.Second)
	defer timeout.Stop()

	select {
	case entries, ok := <-handle.Snapshots():
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "unavailable", nil)
			return
		}
		writeJSON(w, http.StatusOK, feedResponse{
			Kind:    string(selector.Kind),
			Entries: toFeedEntries(entries),
		})
	case <-timeout.C:
		writeError(w, http.StatusGatewayTimeout, "timeout", nil)
	case <-r.Context().Done():
	}
}
