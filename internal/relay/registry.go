// Package relay serves the real-time practice channel over WebSocket.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// closer is the part of *websocket.Conn the registry needs.
type closer interface {
	Close(code websocket.StatusCode, reason string) error
}

// Binding is what the registry knows about one live connection.
type Binding struct {
	UserID      string
	SessionID   string
	ConnectedAt time.Time

	conn closer
}

// Registry maps live connection ids to the practice session they drive.
type Registry struct {
	mu     sync.RWMutex
	active map[string]*Binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[string]*Binding)}
}

// Register adds a connection with no session bound yet.
func (m *Registry) Register(connID, userID string, conn closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[connID] = &Binding{UserID: userID, ConnectedAt: time.Now(), conn: conn}
	slog.Info("Relay connection registered", "conn_id", connID, "user_id", userID)
}

// Bind associates a connection with a session.
func (m *Registry) Bind(connID, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.active[connID]; ok {
		b.SessionID = sessionID
	}
}

// SessionFor returns the session bound to a connection.
func (m *Registry) SessionFor(connID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.active[connID]
	if !ok || b.SessionID == "" {
		return "", false
	}
	return b.SessionID, true
}

// Get returns a copy of the binding of a connection.
func (m *Registry) Get(connID string) (Binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.active[connID]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// Unregister removes a connection. The session it drove is left untouched.
func (m *Registry) Unregister(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.active[connID]; ok {
		delete(m.active, connID)
		slog.Info("Relay connection unregistered", "conn_id", connID, "session_id", b.SessionID)
	}
}

// Len returns the number of live connections.
func (m *Registry) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active)
}

// CloseAll closes every live connection, used on shutdown.
func (m *Registry) CloseAll(reason string) {
	m.mu.Lock()
	conns := make([]closer, 0, len(m.active))
	for id, b := range m.active {
		if b.conn != nil {
			conns = append(conns, b.conn)
		}
		delete(m.active, id)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Close(websocket.StatusGoingAway, reason)
		}()
	}
	wg.Wait()
}
