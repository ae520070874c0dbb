package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/PstasDev/biliard-backend/internal/client"
	"github.com/PstasDev/biliard-backend/internal/engine"
)

// DefaultIdleTTL is the grace period an empty session survives before its
// in-memory state is dropped.
const DefaultIdleTTL = 30 * time.Second

// Registry is the process-wide table of live match sessions. Sessions are
// created lazily on first attach and torn down by their own idle timers.
type Registry struct {
	store   Store
	eng     *engine.Engine
	guard   Guard
	pub     Publisher
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewRegistry creates the session table. pub may be nil when no delta mirror
// is configured.
func NewRegistry(store Store, eng *engine.Engine, guard Guard, pub Publisher, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		store:    store,
		eng:      eng,
		guard:    guard,
		pub:      pub,
		idleTTL:  idleTTL,
		sessions: make(map[int64]*Session),
	}
}

// Attach joins a connection to the match's session, creating the session if
// no live one exists. Two simultaneous first attaches for one match resolve
// to the same session. token is empty for observers.
func (r *Registry) Attach(conn *client.Conn, matchID int64, token string) *Session {
	for {
		r.mu.Lock()
		s, ok := r.sessions[matchID]
		if !ok {
			s = newSession(r, matchID)
			r.sessions[matchID] = s
			go s.run()
			fmt.Printf("match %d: session created\n", matchID)
		}
		r.mu.Unlock()

		if s.attach(conn, token) {
			return s
		}
		// Lost the race against the session's idle teardown; try again.
	}
}

// remove is called by a session's own idle expiry. It re-checks under the
// registry lock that no new attach replaced the session in the interim.
func (r *Registry) remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.matchID] != s {
		return false
	}
	delete(r.sessions, s.matchID)
	close(s.done)
	fmt.Printf("match %d: session destroyed (idle)\n", s.matchID)
	return true
}

// Publish forwards a delta produced outside any session (referee REST
// writes) to the live session for that match, if one exists. The session
// reloads from the store before broadcasting.
func (r *Registry) Publish(matchID int64, kind string, data json.RawMessage) {
	r.mu.Lock()
	s := r.sessions[matchID]
	r.mu.Unlock()
	if s != nil {
		s.publishExternal(kind, data)
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown tears down every live session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		close(s.done)
		delete(r.sessions, id)
	}
}
