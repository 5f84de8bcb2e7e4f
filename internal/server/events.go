package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/tonimelisma/waypoint/internal/watcher"
)

// handleEvents upgrades to WebSocket and streams filesystem change
// batches until the subscriber disconnects. The access token rides in the
// "token" query parameter; a missing or invalid token closes the
// connection with a policy-violation status before the watch loop starts.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.wsOrigins,
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}

	if _, authErr := s.auth.Authenticate(r.URL.Query().Get("token")); authErr != nil {
		conn.Close(websocket.StatusPolicyViolation, "invalid or missing token")
		return
	}

	// We never read application messages; CloseRead keeps the read pump
	// alive for control frames and cancels the context on disconnect.
	ctx := conn.CloseRead(r.Context())

	debounce := time.Duration(s.cfg.Watcher.DebounceMS) * time.Millisecond

	batches, err := watcher.New(s.files.Root(), debounce, s.logger).Run(ctx)
	if err != nil {
		s.logger.Error("watcher start failed", slog.String("error", err.Error()))
		conn.Close(websocket.StatusInternalError, "watcher failed")
		return
	}

	s.logger.Info("event subscriber connected", slog.String("remote", r.RemoteAddr))

	for batch := range batches {
		payload, marshalErr := json.Marshal(map[string][]watcher.Event{"events": batch})
		if marshalErr != nil {
			continue
		}

		if writeErr := conn.Write(ctx, websocket.MessageText, payload); writeErr != nil {
			break
		}
	}

	s.logger.Info("event subscriber disconnected", slog.String("remote", r.RemoteAddr))
	conn.Close(websocket.StatusNormalClosure, "")
}
