package gateway

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// wsQuestion is one inbound message on the WebSocket channel.
type wsQuestion struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

type wsError struct {
	Error string `json:"error"`
}

// handleWebSocket serves an interactive QA channel. Each inbound message
// is answered conversationally on the same connection; the session id in
// the first reply should be echoed back on follow-ups.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	for {
		var msg wsQuestion
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}

		if strings.TrimSpace(msg.Question) == "" {
			if err := conn.WriteJSON(wsError{Error: "question must be a non-empty string"}); err != nil {
				return
			}
			continue
		}

		result, err := s.service.AnswerConversational(r.Context(), msg.SessionID, strings.TrimSpace(msg.Question))
		if err != nil {
			if writeErr := conn.WriteJSON(wsError{Error: err.Error()}); writeErr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(result); err != nil {
			s.logger.Warn().Err(err).Msg("WebSocket write error")
			return
		}
	}
}
