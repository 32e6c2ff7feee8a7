// Package registry is the process-wide mapping from authenticated identity
// to its live session. It is the single point of truth consulted by the
// outbound loops and their watchdogs.
package registry

import "sync"

// Closer is the handle the relay uses to tear down a displaced
// connection's socket.
type Closer interface {
	Close() error
}

// Session is the live record of one connected identity.
type Session struct {
	ConnID   string
	Identity string // stable id (email)
	Username string // display name, used in membership checks
	Outbound Closer
}

type entry struct {
	sess  *Session
	chats map[int64]struct{}
}

type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

func New() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

// Register inserts the session, overwriting any session already registered
// for the same identity. The displaced session, if any, is returned so the
// caller can close its socket.
func (r *Registry) Register(sess *Session, chatIDs []int64) (displaced *Session) {
	chats := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[sess.Identity]; ok {
		displaced = prev.sess
	}
	r.sessions[sess.Identity] = &entry{sess: sess, chats: chats}
	return displaced
}

// Remove deletes the identity's entry, but only while it is still owned by
// sess. A connection displaced by a newer one must not evict its successor.
func (r *Registry) Remove(identity string, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[identity]
	if !ok || e.sess != sess {
		return false
	}
	delete(r.sessions, identity)
	return true
}

func (r *Registry) Get(identity string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[identity]
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Owns reports whether sess is still the registered session for identity.
// The watchdog polls this; false means the outbound loop must stop.
func (r *Registry) Owns(identity string, sess *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[identity]
	return ok && e.sess == sess
}

// UpdateMembership replaces the cached chat-id set of the live session with
// the given username. Identities not currently registered are ignored.
func (r *Registry) UpdateMembership(username string, chatIDs []int64) {
	chats := make(map[int64]struct{}, len(chatIDs))
	for _, id := range chatIDs {
		chats[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.sessions {
		if e.sess.Username == username {
			e.chats = chats
			return
		}
	}
}

// Contains reports whether the identity's cached membership includes the
// chat id.
func (r *Registry) Contains(identity string, chatID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[identity]
	if !ok {
		return false
	}
	_, ok = e.chats[chatID]
	return ok
}
