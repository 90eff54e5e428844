// Package docsession tracks which sessions currently hold an uploaded
// document and enforces the bound on how many documents may be indexed at
// once. Each bound session owns exactly one index namespace.
package docsession

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amara/docwise/internal/observability"
	"github.com/amara/docwise/pkg/vectorindex"
	"github.com/rs/zerolog"
)

// DefaultMaxDocuments bounds concurrent document-holding sessions.
const DefaultMaxDocuments = 3

// Binding records one session's uploaded document.
type Binding struct {
	SessionID    string    `json:"session_id"`
	DocumentName string    `json:"document_name"`
	Namespace    string    `json:"namespace"`
	PassageCount int       `json:"passage_count"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// NamespaceClearer removes a namespace from the retrieval index. Satisfied
// by *vectorindex.Index.
type NamespaceClearer interface {
	ClearNamespace(ctx context.Context, namespace string) (int, error)
}

// Manager enforces the document capacity bound. When a new session binds a
// document while the manager is full, the binding with the strictly oldest
// upload time is evicted and its namespace cleared. Re-binding an already
// bound session overwrites in place and never evicts.
type Manager struct {
	mu           sync.Mutex
	bindings     map[string]*Binding
	maxDocuments int
	clearer      NamespaceClearer
	logger       zerolog.Logger
	now          func() time.Time
}

// ManagerConfig holds manager configuration
type ManagerConfig struct {
	MaxDocuments int
	Clearer      NamespaceClearer
	Logger       zerolog.Logger
}

// NewManager creates a binding manager.
func NewManager(cfg ManagerConfig) *Manager {
	observability.EnsureRegistered()

	maxDocs := cfg.MaxDocuments
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocuments
	}

	return &Manager{
		bindings:     make(map[string]*Binding),
		maxDocuments: maxDocs,
		clearer:      cfg.Clearer,
		logger:       cfg.Logger,
		now:          time.Now,
	}
}

// HasDocument reports whether the session currently holds a document.
func (m *Manager) HasDocument(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bindings[sessionID]
	return ok
}

// Bind registers a document for the session, evicting the oldest binding
// first when the manager is full and the session is new. Returns the
// evicted binding, if any.
func (m *Manager) Bind(ctx context.Context, sessionID, documentName string, passageCount int) *Binding {
	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted *Binding
	_, rebind := m.bindings[sessionID]
	if !rebind && len(m.bindings) >= m.maxDocuments {
		evicted = m.evictOldestLocked(ctx)
	}

	binding := &Binding{
		SessionID:    sessionID,
		DocumentName: documentName,
		Namespace:    vectorindex.NamespaceForSession(sessionID),
		PassageCount: passageCount,
		UploadedAt:   m.now(),
	}
	m.bindings[sessionID] = binding

	observability.SetActiveBindings(len(m.bindings))

	m.logger.Info().
		Str("session_id", sessionID).
		Str("document", documentName).
		Int("passages", passageCount).
		Bool("rebind", rebind).
		Int("active", len(m.bindings)).
		Int("max", m.maxDocuments).
		Msg("Document bound to session")

	return evicted
}

// CanBind reports whether a bind for the session would succeed without
// eviction. Used by callers that reject uploads at capacity instead of
// evicting.
func (m *Manager) CanBind(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bindings[sessionID]; ok {
		return true
	}
	return len(m.bindings) < m.maxDocuments
}

// RemoveSession drops the session's binding and clears its namespace.
// Removing an unbound session is a no-op.
func (m *Manager) RemoveSession(ctx context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	binding, ok := m.bindings[sessionID]
	if !ok {
		return
	}

	m.clearNamespace(ctx, binding)
	delete(m.bindings, sessionID)
	observability.SetActiveBindings(len(m.bindings))

	m.logger.Info().
		Str("session_id", sessionID).
		Str("document", binding.DocumentName).
		Msg("Session binding removed")
}

// SessionCount returns the number of bound sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bindings)
}

// MaxDocuments returns the configured binding capacity.
func (m *Manager) MaxDocuments() int {
	return m.maxDocuments
}

// SessionInfo returns a copy of the session's binding, or nil.
func (m *Manager) SessionInfo(sessionID string) *Binding {
	m.mu.Lock()
	defer m.mu.Unlock()

	binding, ok := m.bindings[sessionID]
	if !ok {
		return nil
	}
	out := *binding
	return &out
}

// AllSessions returns a copy of every binding, oldest upload first. Equal
// timestamps order by session id so the listing is deterministic.
func (m *Manager) AllSessions() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

// evictOldestLocked removes the binding with the strictly oldest upload
// time. Equal timestamps break ties by smallest session id so eviction is
// deterministic.
func (m *Manager) evictOldestLocked(ctx context.Context) *Binding {
	var oldest *Binding
	for _, b := range m.bindings {
		if oldest == nil {
			oldest = b
			continue
		}
		if b.UploadedAt.Before(oldest.UploadedAt) ||
			(b.UploadedAt.Equal(oldest.UploadedAt) && b.SessionID < oldest.SessionID) {
			oldest = b
		}
	}
	if oldest == nil {
		return nil
	}

	m.clearNamespace(ctx, oldest)
	delete(m.bindings, oldest.SessionID)
	observability.RecordEviction("docsession", "capacity")

	m.logger.Info().
		Str("session_id", oldest.SessionID).
		Str("document", oldest.DocumentName).
		Msg("Evicted oldest document binding")

	out := *oldest
	return &out
}

// clearNamespace is best effort: a failed clear never blocks eviction or
// removal, the orphaned vectors are swept at next startup.
func (m *Manager) clearNamespace(ctx context.Context, binding *Binding) {
	if m.clearer == nil {
		return
	}
	cleared, err := m.clearer.ClearNamespace(ctx, binding.Namespace)
	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("namespace", binding.Namespace).
			Msg("Failed to clear namespace")
		return
	}
	m.logger.Debug().
		Str("namespace", binding.Namespace).
		Int("cleared", cleared).
		Msg("Namespace cleared")
}
