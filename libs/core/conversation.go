package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
)

type conversationKey struct{}

// Conversation is a unit of work spanning several requests of one session.
// Every request starts with a transient conversation that is destroyed at
// the end of the request unless Begin promotes it to long-running.
type Conversation struct {
	m         *ConversationManager
	sessionID string
	lock      *semaphore.Weighted
	store     *ContextualStore

	mu        sync.Mutex
	id        string
	transient bool
	timeout   time.Duration
	lastUsed  time.Time
}

// ID returns the conversation id
func (cv *Conversation) ID() string {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.id
}

// IsTransient reports whether the conversation ends with the current request
func (cv *Conversation) IsTransient() bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.transient
}

// Timeout returns the inactivity timeout of a long-running conversation
func (cv *Conversation) Timeout() time.Duration {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.timeout
}

// SetTimeout changes the inactivity timeout
func (cv *Conversation) SetTimeout(d time.Duration) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.timeout = d
}

// Begin promotes a transient conversation to long-running, optionally
// under a caller-chosen id
func (cv *Conversation) Begin(id ...string) error {
	cv.mu.Lock()
	current, transient := cv.id, cv.transient
	cv.mu.Unlock()
	if !transient {
		return illegalState("conversation '%s' is already long-running", current)
	}

	next := current
	if len(id) > 0 && id[0] != "" && id[0] != current {
		if err := cv.m.rename(cv.sessionID, current, id[0]); err != nil {
			return err
		}
		next = id[0]
	}

	cv.mu.Lock()
	cv.id = next
	cv.transient = false
	cv.mu.Unlock()
	return nil
}

// End demotes a long-running conversation; it is destroyed when the current request ends
func (cv *Conversation) End() error {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	if cv.transient {
		return illegalState("conversation '%s' is not long-running", cv.id)
	}
	cv.transient = true
	return nil
}

func (cv *Conversation) expired(now time.Time) bool {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return !cv.transient && cv.timeout > 0 && now.Sub(cv.lastUsed) > cv.timeout
}

// ConversationManager owns the conversations of every session
type ConversationManager struct {
	c *Container

	mu            sync.Mutex
	sessions      map[string]map[string]*Conversation
	timeout       time.Duration
	accessTimeout time.Duration
	now           func() time.Time
}

func newConversationManager(c *Container, cfg ConversationConfig) *ConversationManager {
	return &ConversationManager{
		c:             c,
		sessions:      make(map[string]map[string]*Conversation),
		timeout:       cfg.Timeout,
		accessTimeout: cfg.ConcurrentAccessTimeout,
		now:           time.Now,
	}
}

// SetConcurrentAccessTimeout changes how long Activate waits for a busy conversation
func (m *ConversationManager) SetConcurrentAccessTimeout(d time.Duration) {
	m.mu.Lock()
	m.accessTimeout = d
	m.mu.Unlock()
}

// Activate associates ctx with a conversation of session sessionID. An empty
// cid starts a new transient conversation; an unknown cid fails with
// NonexistentConversationError; a conversation locked by another request
// for longer than the concurrent access timeout fails with BusyConversationError.
func (m *ConversationManager) Activate(ctx context.Context, sessionID, cid string) (context.Context, *Conversation, error) {
	m.expire(sessionID)

	var conv *Conversation
	if cid == "" {
		conv = m.newTransient(sessionID)
	} else {
		m.mu.Lock()
		conv = m.sessions[sessionID][cid]
		timeout := m.accessTimeout
		m.mu.Unlock()
		if conv == nil {
			return ctx, nil, &NonexistentConversationError{ID: cid}
		}

		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := conv.lock.Acquire(lockCtx, 1); err != nil {
			m.c.logger.Infor(&LoggerItem{
				Event:    "ConversationLocked",
				Messages: fmt.Sprintf("conversation '%s' is busy", cid),
			})
			return ctx, nil, &BusyConversationError{ID: cid}
		}

		// the previous holder may have ended it while we waited
		m.mu.Lock()
		current := m.sessions[sessionID][cid]
		m.mu.Unlock()
		if current != conv {
			conv.lock.Release(1)
			return ctx, nil, &NonexistentConversationError{ID: cid}
		}
	}

	conv.mu.Lock()
	conv.lastUsed = m.now()
	id := conv.id
	conv.mu.Unlock()

	ctx = context.WithValue(ctx, scopeKey{ConversationScoped}, &activeScope{id: id, store: conv.store})
	ctx = context.WithValue(ctx, conversationKey{}, conv)
	return ctx, conv, nil
}

func (m *ConversationManager) newTransient(sessionID string) *Conversation {
	conv := &Conversation{
		m:         m,
		sessionID: sessionID,
		id:        uuid.NewString(),
		transient: true,
		lock:      semaphore.NewWeighted(1),
		store:     NewContextualStore(ConversationScoped, NewMapBeanStore(), m.c.destroyContextual),
	}
	conv.lock.TryAcquire(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	conv.timeout = m.timeout
	convs, ok := m.sessions[sessionID]
	if !ok {
		convs = make(map[string]*Conversation)
		m.sessions[sessionID] = convs
	}
	convs[conv.id] = conv
	return conv
}

func (m *ConversationManager) rename(sessionID, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	convs := m.sessions[sessionID]
	if _, exists := convs[to]; exists {
		return illegalArgument("conversation id '%s' is already in use", to)
	}
	convs[to] = convs[from]
	delete(convs, from)
	return nil
}

// Current returns the conversation associated with ctx
func (m *ConversationManager) Current(ctx context.Context) (*Conversation, bool) {
	conv, ok := ctx.Value(conversationKey{}).(*Conversation)
	return conv, ok
}

// Deactivate ends the request's use of its conversation: a transient one is
// destroyed, a long-running one is unlocked for the next request
func (m *ConversationManager) Deactivate(ctx context.Context) error {
	conv, ok := m.Current(ctx)
	if !ok {
		return notActive(ConversationScoped)
	}
	defer conv.lock.Release(1)

	conv.mu.Lock()
	transient := conv.transient
	id := conv.id
	conv.lastUsed = m.now()
	conv.mu.Unlock()

	if !transient {
		return nil
	}

	m.mu.Lock()
	if convs, ok := m.sessions[conv.sessionID]; ok {
		delete(convs, id)
		if len(convs) == 0 {
			delete(m.sessions, conv.sessionID)
		}
	}
	m.mu.Unlock()
	return conv.store.ClearAll()
}

// expire destroys long-running conversations of the session that outlived
// their timeout and are not in use
func (m *ConversationManager) expire(sessionID string) {
	now := m.now()
	m.mu.Lock()
	var stale []*Conversation
	for id, conv := range m.sessions[sessionID] {
		if conv.expired(now) && conv.lock.TryAcquire(1) {
			stale = append(stale, conv)
			delete(m.sessions[sessionID], id)
		}
	}
	m.mu.Unlock()

	for _, conv := range stale {
		if err := conv.store.ClearAll(); err != nil {
			m.c.logger.Infor(&LoggerItem{
				Event:    "ConversationExpired",
				Messages: fmt.Sprintf("failed to destroy expired conversation '%s'", conv.ID()),
				Error:    err,
			})
			continue
		}
		m.c.logger.Debug("ConversationExpired", "conversation expired")
	}
}

// EndSession destroys every conversation of a session
func (m *ConversationManager) EndSession(sessionID string) error {
	m.mu.Lock()
	convs := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	var err error
	for _, conv := range convs {
		err = multierr.Append(err, conv.store.ClearAll())
	}
	return err
}

// IDs returns the ids of the long-running conversations of a session
func (m *ConversationManager) IDs(sessionID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, conv := range m.sessions[sessionID] {
		if !conv.IsTransient() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *ConversationManager) shutdown() error {
	m.mu.Lock()
	sessions := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		sessions = append(sessions, id)
	}
	m.mu.Unlock()

	var err error
	for _, id := range sessions {
		err = multierr.Append(err, m.EndSession(id))
	}
	return err
}
