package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/google/uuid"
)

// Session is an in-memory HTTP session. Its attributes back the session
// scope through a core.AttributeBeanStore.
type Session struct {
	id string

	mu         sync.RWMutex
	attributes map[string]interface{}
	lastAccess time.Time
}

var _ core.AttributeStore = (*Session)(nil)

// ID returns the session id carried by the session cookie
func (s *Session) ID() string { return s.id }

// GetAttribute returns a session attribute
func (s *Session) GetAttribute(name string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, exists := s.attributes[name]
	return value, exists
}

// SetAttribute stores a session attribute
func (s *Session) SetAttribute(name string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attributes[name] = value
}

// RemoveAttribute deletes a session attribute
func (s *Session) RemoveAttribute(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attributes, name)
}

// AttributeNames lists the attribute names in sorted order
func (s *Session) AttributeNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.attributes))
	for name := range s.attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastAccess)
}

// SessionManager keeps the live sessions and expires idle ones. onEnd is
// called once for every session that expires or is invalidated.
type SessionManager struct {
	timeout time.Duration
	onEnd   func(id string)
	locks   *core.LockStore
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager; a zero timeout never expires sessions
func NewSessionManager(timeout time.Duration, onEnd func(id string)) *SessionManager {
	return &SessionManager{
		timeout:  timeout,
		onEnd:    onEnd,
		locks:    core.NewLockStore(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session
func (m *SessionManager) Create() *Session {
	s := &Session{
		id:         uuid.NewString(),
		attributes: make(map[string]interface{}),
		lastAccess: m.now(),
	}
	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	return s
}

// Get returns the live session id and marks it as used. An expired session
// is ended and reported missing.
func (m *SessionManager) Get(id string) (*Session, bool) {
	now := m.now()
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && m.timeout > 0 && s.idleSince(now) > m.timeout {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.end(id)
		return nil, false
	}
	m.mu.Unlock()
	if ok {
		s.touch(now)
	}
	return s, ok
}

// Invalidate ends a session immediately
func (m *SessionManager) Invalidate(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		m.end(id)
	}
	return ok
}

// BeanStore returns the bean store backing the session scope of s
func (m *SessionManager) BeanStore(s *Session) core.BeanStore {
	return core.NewAttributeBeanStore("doffy.bean.", s, m.locks)
}

// Sweep ends every session idle for longer than the timeout
func (m *SessionManager) Sweep() int {
	if m.timeout <= 0 {
		return 0
	}
	now := m.now()
	m.mu.Lock()
	var expired []string
	for id, s := range m.sessions {
		if s.idleSince(now) > m.timeout {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.end(id)
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx ends
func (m *SessionManager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close ends every session
func (m *SessionManager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, id := range ids {
		m.end(id)
	}
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) end(id string) {
	if m.onEnd != nil {
		m.onEnd(id)
	}
}
