// Package session keeps per-session conversation logs in memory for the
// life of the process. The store serializes same-session appends so
// concurrent turns against one session id cannot interleave history
// corruptly.
package session

import "sync"

// Role tags who produced an utterance.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Utterance is one conversation entry. Immutable once appended; ordering
// is oldest-first and defines the context sent to the completion provider.
type Utterance struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store maps opaque caller-supplied session ids to conversation logs.
// Logs are created lazily on first append and live until process restart.
type Store struct {
	mu sync.Mutex
	// maxUtterances caps each log; 0 means unbounded. When the cap is
	// exceeded the oldest utterances are evicted.
	maxUtterances int
	logs          map[string][]Utterance
}

// NewStore creates a store. maxUtterances of 0 keeps full history.
func NewStore(maxUtterances int) *Store {
	return &Store{
		maxUtterances: maxUtterances,
		logs:          map[string][]Utterance{},
	}
}

// Append adds one utterance to the session's log, creating it if needed.
func (s *Store) Append(sessionID string, u Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := append(s.logs[sessionID], u)
	if s.maxUtterances > 0 && len(log) > s.maxUtterances {
		log = log[len(log)-s.maxUtterances:]
	}
	s.logs[sessionID] = log
}

// History returns a copy of the session's log, oldest first. Missing
// sessions yield an empty slice.
func (s *Store) History(sessionID string) []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[sessionID]
	out := make([]Utterance, len(log))
	copy(out, log)
	return out
}

// Len reports the number of utterances stored for a session.
func (s *Store) Len(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[sessionID])
}
