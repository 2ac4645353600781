// Package session holds per-interview state and the store that owns it. The
// in-memory store is the default; the Store interface keeps it swappable for
// a networked implementation.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a session id is unknown or expired
var ErrNotFound = errors.New("session not found")

// Speaker labels for transcript entries
const (
	SpeakerCandidate   = "Candidate"
	SpeakerInterviewer = "Interviewer"
)

// Entry is one transcript line
type Entry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Session is the state of one interview
type Session struct {
	ID                string
	TurnCount         int
	MaxTurns          int
	ContinuationToken string
	Transcript        []Entry
	CompanyContext    json.RawMessage
	LastActivity      time.Time
}

// Store is the session persistence boundary. Get doubles as the liveness
// heartbeat: it refreshes the last-activity time.
type Store interface {
	Create(s *Session)
	Get(id string) (Session, error)
	Update(id, continuationToken, userText, responseText string) error
	IncrementTurn(id string) (int, error)
	Delete(id string)
}

// MemoryStore is the in-memory Store implementation
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   zerolog.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger zerolog.Logger) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Create registers a session, overwriting any previous one with the same id
func (m *MemoryStore) Create(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.LastActivity = time.Now()
	m.sessions[s.ID] = s
}

// Get returns a snapshot of the session and refreshes its last-activity time
func (m *MemoryStore) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	s.LastActivity = time.Now()

	snapshot := *s
	snapshot.Transcript = append([]Entry(nil), s.Transcript...)
	return snapshot, nil
}

// Update persists the continuation token and appends one exchange to the
// transcript
func (m *MemoryStore) Update(id, continuationToken, userText, responseText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if continuationToken != "" {
		s.ContinuationToken = continuationToken
	}
	s.Transcript = append(s.Transcript,
		Entry{Speaker: SpeakerCandidate, Text: userText},
		Entry{Speaker: SpeakerInterviewer, Text: responseText},
	)
	s.LastActivity = time.Now()
	return nil
}

// IncrementTurn bumps the turn counter and returns the new value
func (m *MemoryStore) IncrementTurn(id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return 0, ErrNotFound
	}
	s.TurnCount++
	s.LastActivity = time.Now()
	return s.TurnCount, nil
}

// Delete removes a session; unknown ids are a no-op
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Len returns the number of live sessions
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StartJanitor periodically deletes sessions idle past maxIdle until the
// context is cancelled
func (m *MemoryStore) StartJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.cleanup(maxIdle)
			}
		}
	}()
}

func (m *MemoryStore) cleanup(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			m.logger.Info().Str("session_id", id).Msg("Deleted idle session")
		}
	}
}
