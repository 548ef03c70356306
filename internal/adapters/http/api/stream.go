// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sadwik-learner/feedsync/pkg/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// StreamHandler pushes live feed snapshots over a websocket.
type StreamHandler struct {
	deps     Dependencies
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies) *StreamHandler {
	return &StreamHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The gateway fronts browser clients from any campus origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// HandleStream handles GET /ws/feed?kind=...&postId=... requests. Every
// message is a full feed snapshot; the client replaces its previous state.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
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

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handle.Close()
		return
	}
	log := logger.Named("stream")

	// Reader goroutine: the only reason to read is to notice the peer
	// going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		handle.Close()
		_ = conn.Close()
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case entries, ok := <-handle.Snapshots():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(feedResponse{
				Kind:    string(selector.Kind),
				Entries: toFeedEntries(entries),
			}); err != nil {
				log.Debug(r.Context(), "stream write failed", logger.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}
