package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/amara/docwise/pkg/conversation"
	"github.com/amara/docwise/pkg/docsession"
	"github.com/amara/docwise/pkg/vectorindex"
)

// QARequest is the body for /qa and /qa/conversation.
type QARequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// IndexRequest is the body for /index. Passages arrive pre-chunked;
// document parsing happens upstream of this service.
type IndexRequest struct {
	SessionID    string                     `json:"session_id"`
	DocumentName string                     `json:"document_name"`
	Passages     []vectorindex.PassageInput `json:"passages"`
}

// IndexResponse reports an accepted upload.
type IndexResponse struct {
	DocumentName    string `json:"document_name"`
	PassagesIndexed int    `json:"passages_indexed"`
	SessionID       string `json:"session_id"`
	ActiveSessions  int    `json:"active_sessions"`
	MaxSessions     int    `json:"max_sessions"`
	Message         string `json:"message"`
}

// SessionsResponse lists every session currently holding a document.
type SessionsResponse struct {
	Sessions       []docsession.Binding `json:"sessions"`
	ActiveSessions int                  `json:"active_sessions"`
	MaxSessions    int                  `json:"max_sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	var req QARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question must be a non-empty string")
		return
	}

	result, err := s.service.Answer(r.Context(), req.SessionID, strings.TrimSpace(req.Question))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleConversationalQA(w http.ResponseWriter, r *http.Request) {
	var req QARequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question must be a non-empty string")
		return
	}

	result, err := s.service.AnswerConversational(r.Context(), req.SessionID, strings.TrimSpace(req.Question))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	id := s.service.NewSession()
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.History(r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearHistory(r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "history cleared"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Drops the document binding and its namespace, then the session
	// itself. Both are no-ops when absent, so deletion is idempotent.
	s.bindings.RemoveSession(r.Context(), id)
	s.service.DeleteSession(id)

	writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if req.DocumentName == "" {
		writeError(w, http.StatusBadRequest, "document_name is required")
		return
	}
	if len(req.Passages) == 0 {
		writeError(w, http.StatusBadRequest, "passages must be non-empty")
		return
	}

	// Capacity is checked before any indexing work happens. Re-uploads to
	// an already bound session always pass.
	if !s.bindings.CanBind(req.SessionID) {
		writeError(w, http.StatusBadRequest,
			"maximum number of sessions with documents reached; delete a session first or reuse an existing one")
		return
	}

	namespace := vectorindex.NamespaceForSession(req.SessionID)
	count, err := s.index.IndexPassages(r.Context(), namespace, req.DocumentName, req.Passages)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.bindings.Bind(r.Context(), req.SessionID, req.DocumentName, count)

	// The caller picked its own session id; make sure the conversation
	// store knows it so follow-up /qa/conversation calls find the session.
	s.service.EnsureSession(req.SessionID)

	writeJSON(w, http.StatusOK, IndexResponse{
		DocumentName:    req.DocumentName,
		PassagesIndexed: count,
		SessionID:       req.SessionID,
		ActiveSessions:  s.bindings.SessionCount(),
		MaxSessions:     s.bindings.MaxDocuments(),
		Message:         "document indexed for session " + req.SessionID,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.bindings.AllSessions()
	writeJSON(w, http.StatusOK, SessionsResponse{
		Sessions:       sessions,
		ActiveSessions: len(sessions),
		MaxSessions:    s.bindings.MaxDocuments(),
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
