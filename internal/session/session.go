// Package session tracks the pairing state the bridge server grants a
// client: which player is bound and the session id to attach to
// subsequent requests.
//
// All transitions are atomic with respect to readers; a reader never
// observes a player without its session id or vice versa.
package session

import (
	"sync"
	"time"
)

// State summarises the client's position in the connect/pair lifecycle.
type State int

const (
	// Disconnected: no open transport.
	Disconnected State = iota
	// Open: transport open but no player bound.
	Open
	// Paired: transport open and a session id issued.
	Paired
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Open:
		return "open"
	case Paired:
		return "paired"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Snapshot is a consistent copy of a Session.
type Snapshot struct {
	State    State     `json:"state"`
	Player   string    `json:"player,omitempty"`
	ID       string    `json:"session_id,omitempty"`
	PairedAt time.Time `json:"paired_at,omitempty"`
}

// Session holds the pairing state for one client.  The zero value is a
// disconnected session.
type Session struct {
	mu       sync.RWMutex
	open     bool
	player   string
	id       string
	pairedAt time.Time
}

// New returns a disconnected session.
func New() *Session { return &Session{} }

// Opened records that a transport is open.  Any previous binding is
// dropped.
func (s *Session) Opened() {
	s.mu.Lock()
	s.open = true
	s.player, s.id = "", ""
	s.pairedAt = time.Time{}
	s.mu.Unlock()
}

// Establish binds player and id together.  The player may be empty
// when the server does not require one.  It fails (returns false) when
// no transport is open.
func (s *Session) Establish(player, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false
	}
	s.player, s.id = player, id
	s.pairedAt = time.Now()
	return true
}

// Clear forgets the binding and marks the transport closed.
func (s *Session) Clear() {
	s.mu.Lock()
	s.open = false
	s.player, s.id = "", ""
	s.pairedAt = time.Time{}
	s.mu.Unlock()
}

// Player returns the bound player name, or "" when none is bound.
func (s *Session) Player() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player
}

// ID returns the server-issued session id, or "" when none is bound.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Bound reports whether a player is bound.
func (s *Session) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.player != ""
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.Snapshot().State
}

// Snapshot returns all fields read under one lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Player: s.player, ID: s.id, PairedAt: s.pairedAt}
	switch {
	case !s.open:
		snap.State = Disconnected
	case s.id != "":
		snap.State = Paired
	default:
		snap.State = Open
	}
	return snap
}
