// Package qa is the service layer tying sessions, document bindings, and
// the answer pipeline together behind the operations the HTTP surface
// exposes.
package qa

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/amara/docwise/internal/tracing"
	"github.com/amara/docwise/pkg/conversation"
	"github.com/amara/docwise/pkg/pipeline"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// contextExcerptLen is how much of the retrieved context is persisted on
// each turn. The full context is returned to the caller but not stored.
const contextExcerptLen = 200

// Result is a completed answer with session metadata.
type Result struct {
	Answer      string `json:"answer"`
	Context     string `json:"context"`
	SessionID   string `json:"session_id"`
	TurnNumber  int    `json:"turn_number"`
	HistoryUsed bool   `json:"history_used"`
}

// HistoryResult is a session's full conversation history.
type HistoryResult struct {
	SessionID  string              `json:"session_id"`
	Turns      []conversation.Turn `json:"turns"`
	CreatedAt  time.Time           `json:"created_at"`
	TotalTurns int                 `json:"total_turns"`
}

// Runner is the pipeline surface the service needs. Satisfied by
// *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Output, error)
}

// Service answers questions against uploaded documents.
type Service struct {
	pipeline Runner
	sessions *conversation.Store
	logger   zerolog.Logger
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Pipeline Runner
	Sessions *conversation.Store
	Logger   zerolog.Logger
}

// NewService creates the QA service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	return &Service{
		pipeline: cfg.Pipeline,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
	}, nil
}

// AnswerConversational answers a question within a session, using prior
// turns as context. An empty sessionID starts a new session. The completed
// exchange is appended to the session before returning.
func (s *Service) AnswerConversational(ctx context.Context, sessionID, question string) (*Result, error) {
	var history []conversation.Turn
	if sessionID != "" {
		sess, err := s.sessions.GetSession(sessionID)
		if err != nil {
			return nil, err
		}
		history = sess.Turns
	} else {
		sessionID = s.sessions.CreateSession()
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"docwise.qa",
		"qa.answer_conversational",
		attribute.String("session_id", sessionID),
	)
	defer span.End()
	ctx = tracing.WithSessionID(ctx, sessionID)

	out, err := s.pipeline.Run(ctx, pipeline.Input{
		SessionID: sessionID,
		Question:  question,
		History:   history,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	turn, err := s.sessions.AddTurn(sessionID, conversation.Turn{
		Question:       question,
		Answer:         out.Answer,
		ContextExcerpt: excerpt(out.Context),
		HistoryUsed:    out.HistoryUsed,
	})
	if err != nil {
		// Session evicted mid-run; the answer still stands.
		s.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Msg("Failed to persist turn")
	}

	return &Result{
		Answer:      out.Answer,
		Context:     out.Context,
		SessionID:   sessionID,
		TurnNumber:  turn.Number,
		HistoryUsed: out.HistoryUsed,
	}, nil
}

// Answer runs a single-shot question bound to the session's document
// without reading or writing conversation history.
func (s *Service) Answer(ctx context.Context, sessionID, question string) (*Result, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"docwise.qa",
		"qa.answer",
		attribute.String("session_id", sessionID),
	)
	defer span.End()

	out, err := s.pipeline.Run(ctx, pipeline.Input{
		SessionID: sessionID,
		Question:  question,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &Result{
		Answer:      out.Answer,
		Context:     out.Context,
		SessionID:   sessionID,
		HistoryUsed: false,
	}, nil
}

// NewSession creates an empty conversation session.
func (s *Service) NewSession() string {
	return s.sessions.CreateSession()
}

// EnsureSession registers the session under a caller-chosen id when it is
// not already known. Binding a document to a fresh id goes through here so
// follow-up conversational calls find the session.
func (s *Service) EnsureSession(sessionID string) {
	s.sessions.GetOrCreateSession(sessionID)
}

// History returns the session's turns.
func (s *Service) History(sessionID string) (*HistoryResult, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	return &HistoryResult{
		SessionID:  sess.ID,
		Turns:      sess.Turns,
		CreatedAt:  sess.CreatedAt,
		TotalTurns: len(sess.Turns),
	}, nil
}

// ClearHistory drops the session's turns, keeping the session alive.
func (s *Service) ClearHistory(sessionID string) error {
	return s.sessions.ClearSession(sessionID)
}

// DeleteSession removes the session entirely. Unknown ids are a no-op.
func (s *Service) DeleteSession(sessionID string) {
	s.sessions.DeleteSession(sessionID)
}

// excerpt truncates to contextExcerptLen bytes, backing off to the nearest
// rune boundary so the stored text stays valid UTF-8.
func excerpt(s string) string {
	if len(s) <= contextExcerptLen {
		return s
	}
	cut := contextExcerptLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
