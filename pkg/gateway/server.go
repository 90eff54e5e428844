// Package gateway exposes the QA system over HTTP: question answering,
// session management, document indexing, health, and metrics, plus a
// WebSocket channel for interactive clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/amara/docwise/internal/observability"
	"github.com/amara/docwise/internal/tracing"
	"github.com/amara/docwise/pkg/docsession"
	"github.com/amara/docwise/pkg/qa"
	"github.com/amara/docwise/pkg/vectorindex"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Server is the HTTP gateway.
type Server struct {
	host     string
	port     int
	service  *qa.Service
	index    *vectorindex.Index
	bindings *docsession.Manager
	logger   zerolog.Logger
	server   *http.Server
	upgrader websocket.Upgrader

	shutdownMu     sync.RWMutex
	isShuttingDown bool
}

// Config holds server configuration
type Config struct {
	Host     string
	Port     int
	Service  *qa.Service
	Index    *vectorindex.Index
	Bindings *docsession.Manager
	Logger   zerolog.Logger
}

// NewServer creates the gateway server.
func NewServer(cfg Config) (*Server, error) {
	observability.EnsureRegistered()

	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("qa service is required")
	}
	if cfg.Index == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if cfg.Bindings == nil {
		return nil, fmt.Errorf("binding manager is required")
	}

	return &Server{
		host:     cfg.Host,
		port:     cfg.Port,
		service:  cfg.Service,
		index:    cfg.Index,
		bindings: cfg.Bindings,
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Handler builds the route table. Exposed separately from Start so tests
// can drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /qa", s.withRequestContext("qa", s.handleQA))
	mux.HandleFunc("POST /qa/conversation", s.withRequestContext("qa_conversation", s.handleConversationalQA))
	mux.HandleFunc("POST /qa/session/new", s.withRequestContext("session_new", s.handleNewSession))
	mux.HandleFunc("GET /qa/session/{id}/history", s.withRequestContext("session_history", s.handleHistory))
	mux.HandleFunc("DELETE /qa/session/{id}/clear", s.withRequestContext("session_clear", s.handleClearHistory))
	mux.HandleFunc("DELETE /qa/session/{id}", s.withRequestContext("session_delete", s.handleDeleteSession))
	mux.HandleFunc("POST /index", s.withRequestContext("index", s.handleIndex))
	mux.HandleFunc("GET /qa/sessions", s.withRequestContext("sessions_list", s.handleListSessions))
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return mux
}

// Start clears stale vectors from previous runs and begins serving.
// The startup clear is best effort: a failed clear is logged, not fatal.
func (s *Server) Start() error {
	removed, err := s.index.ClearAll(context.Background())
	if err != nil {
		s.logger.Warn().Err(err).Msg("Startup index clear failed, stale vectors may remain")
	} else if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("Cleared stale vectors on startup")
	}

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting gateway server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

// withRequestContext tags each request with a nanoid request id, logs
// completion, and feeds the route metrics.
func (s *Server) withRequestContext(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := gonanoid.New()
		if err != nil {
			requestID = "unknown"
		}
		ctx := tracing.WithRequestID(tracing.NewRequestContext(r.Context()), requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r.WithContext(ctx))

		observability.RecordGatewayRequest(route, fmt.Sprintf("%d", rec.status), time.Since(start))

		logger := tracing.LoggerFromContext(ctx, s.logger)
		logger.Debug().
			Str("route", route).
			Str("request_id", requestID).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
