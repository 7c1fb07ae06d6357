package handler

import (
	"net/http"
	"time"
)

const livePushInterval = 5 * time.Second

type liveFrame struct {
	OnlineCount int   `json:"onlineCount"`
	Degraded    bool  `json:"degraded,omitempty"`
	Timestamp   int64 `json:"timestamp"`
}

// LiveFeed streams the panel's online-client count over a websocket.
// The feed is gated by the showLiveUsers setting and pushes on a fixed
// interval until the client disconnects.
func (h *Handler) LiveFeed(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.GetSettings()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !settings.ShowLiveUsers {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "live user feed is disabled"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Drain control frames so pings and the close handshake work.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(livePushInterval)
	defer ticker.Stop()

	for {
		frame := liveFrame{Timestamp: time.Now().UnixMilli()}
		emails, err := h.panel.OnlineClients(r.Context())
		if err != nil {
			frame.Degraded = true
		} else {
			frame.OnlineCount = len(emails)
		}

		if err := conn.WriteJSON(frame); err != nil {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
