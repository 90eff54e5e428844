package conversation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amara/docwise/internal/observability"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned when an operation targets a session that
// does not exist or has already been evicted.
var ErrSessionNotFound = errors.New("session not found")

const (
	// DefaultMaxSessions bounds the number of live sessions.
	DefaultMaxSessions = 100
	// DefaultMaxAgeHours is how long an idle session survives.
	DefaultMaxAgeHours = 24
	// trimFloor is the smallest retention target a size trim will use.
	trimFloor = 50
)

// Turn is one completed question/answer exchange.
type Turn struct {
	Number         int       `json:"turn_number"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	ContextExcerpt string    `json:"context_excerpt,omitempty"`
	HistoryUsed    bool      `json:"history_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// Session holds the turn history for one conversation.
type Session struct {
	ID           string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Turns        []Turn    `json:"turns"`
}

// Store keeps conversation sessions in memory with count and age bounds.
// All methods are safe for concurrent use.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	maxSessions int
	logger      zerolog.Logger
	now         func() time.Time
}

// StoreConfig holds store configuration
type StoreConfig struct {
	MaxSessions int
	Logger      zerolog.Logger
}

// NewStore creates a session store.
func NewStore(cfg StoreConfig) *Store {
	observability.EnsureRegistered()

	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	return &Store{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// CreateSession registers a new empty session and returns its id.
func (s *Store) CreateSession() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	now := s.now()
	s.sessions[id] = &Session{
		ID:           id,
		CreatedAt:    now,
		LastAccessed: now,
		Turns:        []Turn{},
	}

	s.trimToSizeLocked()
	observability.SetActiveSessions(len(s.sessions))

	s.logger.Debug().Str("session_id", id).Msg("Session created")
	return id
}

// GetSession returns a snapshot of the session and refreshes its
// last-accessed time.
func (s *Store) GetSession(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.LastAccessed = s.now()

	return snapshot(sess), nil
}

// GetOrCreateSession returns the existing session, or registers a new one
// under the given id when it is absent. Used when a caller supplies its own
// session identifier.
func (s *Store) GetOrCreateSession(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.LastAccessed = s.now()
		return snapshot(sess)
	}

	now := s.now()
	sess := &Session{
		ID:           id,
		CreatedAt:    now,
		LastAccessed: now,
		Turns:        []Turn{},
	}
	s.sessions[id] = sess

	s.trimToSizeLocked()
	observability.SetActiveSessions(len(s.sessions))

	s.logger.Debug().Str("session_id", id).Msg("Session created")
	return snapshot(sess)
}

// AddTurn appends a completed exchange to the session. The turn number is
// assigned by the store and is contiguous from 1.
func (s *Store) AddTurn(id string, turn Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Turn{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	turn.Number = len(sess.Turns) + 1
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	sess.Turns = append(sess.Turns, turn)
	sess.LastAccessed = s.now()

	observability.RecordTurnAppend()

	s.logger.Debug().
		Str("session_id", id).
		Int("turn", turn.Number).
		Msg("Turn appended")

	return turn, nil
}

// History returns a copy of the session's turns in order.
func (s *Store) History(id string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.LastAccessed = s.now()

	turns := make([]Turn, len(sess.Turns))
	copy(turns, sess.Turns)
	return turns, nil
}

// ClearSession drops the session's turns but keeps the session alive.
// Turn numbering restarts at 1 afterwards.
func (s *Store) ClearSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.Turns = []Turn{}
	sess.LastAccessed = s.now()

	s.logger.Debug().Str("session_id", id).Msg("Session history cleared")
	return nil
}

// DeleteSession removes the session entirely. Deleting an absent session
// is a no-op.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	observability.SetActiveSessions(len(s.sessions))

	s.logger.Debug().Str("session_id", id).Msg("Session deleted")
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// CleanupOldSessions removes every session idle for longer than
// maxAgeHours and returns how many were removed.
func (s *Store) CleanupOldSessions(maxAgeHours int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxAgeHours <= 0 {
		maxAgeHours = DefaultMaxAgeHours
	}
	cutoff := s.now().Add(-time.Duration(maxAgeHours) * time.Hour)

	removed := 0
	for id, sess := range s.sessions {
		if sess.LastAccessed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
			observability.RecordEviction("conversation", "age")
		}
	}

	if removed > 0 {
		observability.SetActiveSessions(len(s.sessions))
		s.logger.Info().
			Int("removed", removed).
			Int("remaining", len(s.sessions)).
			Msg("Cleaned up idle sessions")
	}

	return removed
}

// trimToSizeLocked enforces the session count bound. When over the limit
// it keeps only the most recently accessed sessions, retaining
// max(maxSessions-10, 50) so trims are not triggered on every create.
func (s *Store) trimToSizeLocked() {
	if len(s.sessions) <= s.maxSessions {
		return
	}

	keep := s.maxSessions - 10
	if keep < trimFloor {
		keep = trimFloor
	}
	if keep >= len(s.sessions) {
		return
	}

	all := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		all = append(all, sess)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].LastAccessed.Equal(all[j].LastAccessed) {
			return all[i].ID < all[j].ID
		}
		return all[i].LastAccessed.After(all[j].LastAccessed)
	})

	removed := 0
	for _, sess := range all[keep:] {
		delete(s.sessions, sess.ID)
		removed++
		observability.RecordEviction("conversation", "capacity")
	}

	s.logger.Info().
		Int("removed", removed).
		Int("kept", keep).
		Msg("Trimmed session store to size")
}

func snapshot(sess *Session) *Session {
	out := &Session{
		ID:           sess.ID,
		CreatedAt:    sess.CreatedAt,
		LastAccessed: sess.LastAccessed,
		Turns:        make([]Turn, len(sess.Turns)),
	}
	copy(out.Turns, sess.Turns)
	return out
}
