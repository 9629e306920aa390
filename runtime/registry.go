package runtime

import (
	"chat-delivery/contract"
	"chat-delivery/domain"
	"chat-delivery/errors"
	"sync"

	"github.com/samber/lo"
)

type Set[T comparable] map[T]struct{}

type session struct {
	sink   contract.EventSink
	userID domain.UserID
}

var _ contract.IConnectionRegistry = (*Registry)(nil)

// Registry is the single source of truth of who is reachable.
// A user may own several connections, one per device.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnectionID]*session         // map connection -> sink and bound user
	users    map[domain.UserID]Set[domain.ConnectionID] // map user -> connections
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnectionID]*session),
		users:    make(map[domain.UserID]Set[domain.ConnectionID]),
	}
}

// Connect registers a live connection, not bound to any user yet.
// Connecting an already known connection only replaces its sink.
func (r *Registry) Connect(connID domain.ConnectionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		s.sink = sink
		return
	}
	r.sessions[connID] = &session{sink: sink}
}

// Bind associates the connection with userID. Binding twice to the same user
// is a no-op, binding to another user moves the connection.
func (r *Registry) Bind(connID domain.ConnectionID, userID domain.UserID) error {
	if !userID.Valid() {
		return errors.ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return errors.ErrNotAnnounced
	}
	if s.userID == userID {
		return nil
	}
	r.unbindLocked(connID, s)
	s.userID = userID
	if _, ok := r.users[userID]; !ok {
		r.users[userID] = make(Set[domain.ConnectionID])
	}
	r.users[userID][connID] = struct{}{}
	return nil
}

func (r *Registry) Unbind(connID domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[connID]; ok {
		r.unbindLocked(connID, s)
	}
}

// Disconnect forgets the connection and returns the user it was bound to.
func (r *Registry) Disconnect(connID domain.ConnectionID) (domain.UserID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return "", false
	}
	userID := s.userID
	r.unbindLocked(connID, s)
	delete(r.sessions, connID)
	return userID, userID != ""
}

// unbindLocked drops the user association and removes empty user entries.
func (r *Registry) unbindLocked(connID domain.ConnectionID, s *session) {
	if s.userID == "" {
		return
	}
	if connections, ok := r.users[s.userID]; ok {
		delete(connections, connID)
		if len(connections) == 0 {
			delete(r.users, s.userID)
		}
	}
	s.userID = ""
}

func (r *Registry) UserOf(connID domain.ConnectionID) (domain.UserID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok || s.userID == "" {
		return "", false
	}
	return s.userID, true
}

func (r *Registry) SinkOf(connID domain.ConnectionID) (contract.EventSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	return s.sink, true
}

// ConnectionsFor returns the live connections of userID, empty when offline.
func (r *Registry) ConnectionsFor(userID domain.UserID) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Keys(r.users[userID])
}

func (r *Registry) IsOnline(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users[userID]) > 0
}

func (r *Registry) CountConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *Registry) CountUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.users)
}
