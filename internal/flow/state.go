package flow

import "sync"

// State is the per-user position in the gated flow. It lives in memory only.
type State int

const (
	StateUnverified State = iota
	StateVerified
	StateProcessing
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateVerified:
		return "verified"
	case StateProcessing:
		return "processing"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Sessions tracks the last known State per user.
type Sessions struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{states: make(map[int64]State)}
}

// Get returns the user's state, StateUnverified when unseen.
func (s *Sessions) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[userID]
}

func (s *Sessions) set(userID int64, state State) State {
	s.mu.Lock()
	s.states[userID] = state
	s.mu.Unlock()
	return state
}
