package widget

import (
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// SessionManager tracks the open widget connections of every visitor. A
// visitor may have several tabs open, each with its own connection.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// CloseVisitor closes and forgets every connection of a visitor and returns
// how many there were.
func (m *SessionManager) CloseVisitor(visitorID string) int {
	m.mu.Lock()
	tabs := m.active[visitorID]
	delete(m.active, visitorID)
	m.mu.Unlock()

	for tabID, conn := range tabs {
		_ = conn.Close(websocket.StatusNormalClosure, "visitor data removed")
		log.Info().Str("visitor_id", visitorID).Str("tab_id", tabID).Msg("Widget session closed")
	}
	return len(tabs)
}

// Register adds a connection, replacing any previous one for the same tab.
func (m *SessionManager) Register(visitorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[visitorID]; !exists {
		m.active[visitorID] = make(map[string]*websocket.Conn)
	}

	if existing, exists := m.active[visitorID][tabID]; exists && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[visitorID][tabID] = conn
	log.Info().Str("visitor_id", visitorID).Str("tab_id", tabID).Msg("Widget session registered")
}

// Unregister removes a connection if it is still the current one for its tab.
func (m *SessionManager) Unregister(visitorID, tabID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[visitorID]; ok {
		if current, exists := tabs[tabID]; exists && current == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, visitorID)
			}
			log.Info().Str("visitor_id", visitorID).Str("tab_id", tabID).Msg("Widget session unregistered")
		}
	}
}

// Count returns the number of open connections.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}

// CloseAll terminates every connection, used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for visitorID, tabs := range m.active {
		for tabID, conn := range tabs {
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			log.Info().Str("visitor_id", visitorID).Str("tab_id", tabID).Msg("Widget session closed")
		}
	}
	m.active = make(map[string]map[string]*websocket.Conn)
}
