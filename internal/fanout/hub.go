package fanout

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const sendBuffer = 64

// Session is one connected operator client. Frames are queued on a
// buffered channel drained by the connection's write loop.
type Session struct {
	ID         string
	OperatorID string
	TenantID   string

	send   chan []byte
	closed bool
	mu     sync.Mutex
}

// Send queues a frame, dropping it when the buffer is full or the session
// is closed. Returns false on drop.
func (s *Session) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// Frames exposes the outbound queue to the connection write loop.
func (s *Session) Frames() <-chan []byte {
	return s.send
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

// TenantScope is the subscription scope covering all of a tenant's threads.
func TenantScope(tenantID string) string {
	return "tenant:" + tenantID
}

// ThreadScope is the subscription scope for one thread.
func ThreadScope(threadID string) string {
	return "thread:" + threadID
}

// Hub tracks sessions and their scope subscriptions and fans events out to
// them. All state is in memory; a restart drops connections and clients
// re-subscribe.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	scopes   map[string]map[string]*Session
	logger   *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: map[string]*Session{},
		scopes:   map[string]map[string]*Session{},
		logger:   logger.With(slog.String("service", "fanout")),
	}
}

// Register creates a session for a connected client. Every session is
// implicitly subscribed to its tenant scope.
func (h *Hub) Register(operatorID, tenantID string) *Session {
	session := &Session{
		ID:         uuid.NewString(),
		OperatorID: operatorID,
		TenantID:   tenantID,
		send:       make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.sessions[session.ID] = session
	h.subscribeLocked(session, TenantScope(tenantID))
	h.mu.Unlock()

	h.logger.Debug("session registered",
		slog.String("session_id", session.ID),
		slog.String("operator_id", operatorID))
	return session
}

// Remove drops a session and all its subscriptions and closes its queue.
func (h *Hub) Remove(sessionID string) {
	h.mu.Lock()
	session, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
		for scope, members := range h.scopes {
			delete(members, sessionID)
			if len(members) == 0 {
				delete(h.scopes, scope)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		session.close()
	}
}

// Subscribe adds a session to a scope.
func (h *Hub) Subscribe(sessionID, scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	session, ok := h.sessions[sessionID]
	if !ok {
		return
	}
	h.subscribeLocked(session, scope)
}

// Unsubscribe removes a session from a scope.
func (h *Hub) Unsubscribe(sessionID, scope string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.scopes[scope]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(h.scopes, scope)
	}
}

func (h *Hub) subscribeLocked(session *Session, scope string) {
	members, ok := h.scopes[scope]
	if !ok {
		members = map[string]*Session{}
		h.scopes[scope] = members
	}
	members[session.ID] = session
}

// Publish fans an event out to every session subscribed to any of the
// scopes, except the origin session. A session subscribed to several
// matching scopes receives the event once.
func (h *Hub) Publish(event Event, originSessionID string, scopes ...string) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("marshal event", slog.String("type", event.Type), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	targets := map[string]*Session{}
	for _, scope := range scopes {
		for id, session := range h.scopes[scope] {
			if id == originSessionID {
				continue
			}
			targets[id] = session
		}
	}
	h.mu.RUnlock()

	for id, session := range targets {
		if !session.Send(frame) {
			h.logger.Warn("session queue full, frame dropped",
				slog.String("session_id", id),
				slog.String("type", event.Type))
		}
	}
}

// Sessions returns the number of connected sessions.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
