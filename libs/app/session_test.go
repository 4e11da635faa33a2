package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dangvanduc1999/doffy-cdi/libs/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type endLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *endLog) record(id string) {
	l.mu.Lock()
	l.ids = append(l.ids, id)
	l.mu.Unlock()
}

func (l *endLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func TestSessionManager_CreateAndGet(t *testing.T) {
	m := NewSessionManager(time.Minute, nil)
	s := m.Create()
	require.NotEmpty(t, s.ID())

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Get("unknown")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
}

func TestSessionManager_Expiry(t *testing.T) {
	ended := &endLog{}
	m := NewSessionManager(time.Minute, ended.record)
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	idle := m.Create()
	active := m.Create()

	now = now.Add(40 * time.Second)
	_, ok := m.Get(active.ID())
	require.True(t, ok, "access resets the idle time")

	now = now.Add(40 * time.Second)
	_, ok = m.Get(idle.ID())
	assert.False(t, ok)
	assert.Equal(t, []string{idle.ID()}, ended.list())

	assert.Equal(t, 0, m.Sweep())
	now = now.Add(time.Minute)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, []string{idle.ID(), active.ID()}, ended.list())
	assert.Equal(t, 0, m.Len())
}

func TestSessionManager_NoTimeout(t *testing.T) {
	m := NewSessionManager(0, nil)
	now := time.Now()
	m.now = func() time.Time { return now }
	s := m.Create()

	now = now.Add(24 * time.Hour)
	_, ok := m.Get(s.ID())
	assert.True(t, ok)
	assert.Equal(t, 0, m.Sweep())
}

func TestSessionManager_InvalidateAndClose(t *testing.T) {
	ended := &endLog{}
	m := NewSessionManager(time.Minute, ended.record)
	a := m.Create()
	b := m.Create()

	assert.True(t, m.Invalidate(a.ID()))
	assert.False(t, m.Invalidate(a.ID()), "a session ends once")
	assert.Equal(t, []string{a.ID()}, ended.list())

	m.Close()
	assert.Equal(t, []string{a.ID(), b.ID()}, ended.list())
	assert.Equal(t, 0, m.Len())
}

func TestSessionManager_Run(t *testing.T) {
	ended := make(chan string, 1)
	m := NewSessionManager(time.Millisecond, func(id string) { ended <- id })
	s := m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, 5*time.Millisecond)

	select {
	case id := <-ended:
		assert.Equal(t, s.ID(), id)
	case <-time.After(time.Second):
		t.Fatal("idle session was not swept")
	}
}

func TestSession_Attributes(t *testing.T) {
	s := NewSessionManager(0, nil).Create()
	s.SetAttribute("user", "ada")
	s.SetAttribute("cart", 3)

	v, ok := s.GetAttribute("user")
	require.True(t, ok)
	assert.Equal(t, "ada", v)
	assert.Equal(t, []string{"cart", "user"}, s.AttributeNames())

	s.RemoveAttribute("cart")
	_, ok = s.GetAttribute("cart")
	assert.False(t, ok)
}

func TestSessionManager_BeanStore(t *testing.T) {
	m := NewSessionManager(0, nil)
	s := m.Create()
	s.SetAttribute("user", "ada")

	store := m.BeanStore(s)
	ci := &core.ContextualInstance{Instance: &tally{}}
	store.Put("counter", ci)

	got, ok := store.Get("counter")
	require.True(t, ok)
	assert.Same(t, ci, got)
	assert.Equal(t, []string{"counter"}, store.IDs(), "plain attributes are not beans")
	assert.Contains(t, s.AttributeNames(), "doffy.bean.counter")

	store.Remove("counter")
	assert.Empty(t, store.IDs())
}

func TestEndSession(t *testing.T) {
	app := newTestApp(t, tallyModule(nil))
	require.NoError(t, app.Start(context.Background()))
	container := app.GetContainer()

	ctx, conv, err := container.Conversations().Activate(context.Background(), "s1", "")
	require.NoError(t, err)
	require.NoError(t, conv.Begin("checkout"))
	require.NoError(t, container.Conversations().Deactivate(ctx))
	require.Equal(t, []string{"checkout"}, container.Conversations().IDs("s1"))

	require.NoError(t, EndSession(container, "s1"))
	assert.Empty(t, container.Conversations().IDs("s1"))
}
