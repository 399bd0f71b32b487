package layout

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
)

type memStore struct {
	mu     sync.Mutex
	writes []string
	fail   error
}

func (s *memStore) GetLayout(context.Context, string, string) (domain.Layout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return domain.Layout{}, domain.ErrLayoutNotFound
	}
	return domain.Layout{Items: json.RawMessage(s.writes[len(s.writes)-1])}, nil
}

func (s *memStore) SaveLayout(_ context.Context, _, _ string, items json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.writes = append(s.writes, string(items))
	return nil
}

// manualTimer fires only when the test says so.
type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualClock struct {
	timers []*manualTimer
}

func (c *manualClock) schedule(_ time.Duration, f func()) Timer {
	t := &manualTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// elapse fires every timer that is still armed.
func (c *manualClock) elapse() {
	for _, t := range c.timers {
		if !t.stopped {
			t.stopped = true
			t.f()
		}
	}
}

func TestBurstIsMergedIntoOneWrite(t *testing.T) {
	store := &memStore{}
	clock := &manualClock{}
	a := NewAutosaver(store, "g1", "designer", Options{Scheduler: clock.schedule})

	a.Changed(json.RawMessage(`[1]`))
	a.Changed(json.RawMessage(`[1,2]`))
	a.Changed(json.RawMessage(`[1,2,3]`))
	require.Empty(t, store.writes)

	clock.elapse()

	assert.Equal(t, []string{`[1,2,3]`}, store.writes)
	assert.Equal(t, 1, a.Saves())
	assert.Len(t, clock.timers, 3)
}

func TestCloseFlushesPending(t *testing.T) {
	store := &memStore{}
	clock := &manualClock{}
	a := NewAutosaver(store, "g1", "designer", Options{Scheduler: clock.schedule})

	a.Changed(json.RawMessage(`{"w":1}`))
	require.NoError(t, a.Close(context.Background()))
	a.Changed(json.RawMessage(`{"w":2}`))
	clock.elapse()

	assert.Equal(t, []string{`{"w":1}`}, store.writes)
}

func TestFailedWriteNotifies(t *testing.T) {
	store := &memStore{fail: errors.New("boom")}
	bus := eventbus.New(nil)
	var notes []events.NotificationEvent
	eventbus.On(bus, events.Notification, func(e events.NotificationEvent) { notes = append(notes, e) })

	a := NewAutosaver(store, "g1", "designer", Options{Scheduler: (&manualClock{}).schedule, Bus: bus})
	a.Changed(json.RawMessage(`[]`))

	assert.Error(t, a.Flush(context.Background()))
	require.Len(t, notes, 1)
	assert.Equal(t, events.LevelWarning, notes[0].Level)
	assert.Zero(t, a.Saves())
}

func TestLoadTreatsMissingLayoutAsEmpty(t *testing.T) {
	store := &memStore{}
	a := NewAutosaver(store, "g1", "designer", Options{})

	items, err := a.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, items)

	store.writes = []string{`[9]`}
	items, err = a.Load(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[9]`, string(items))
}

func TestRealSchedulerDebounces(t *testing.T) {
	store := &memStore{}
	a := NewAutosaver(store, "g1", "designer", Options{Delay: 20 * time.Millisecond})

	for i := 0; i < 5; i++ {
		a.Changed(json.RawMessage(`[0]`))
	}

	require.Eventually(t, func() bool { return a.Saves() == 1 }, time.Second, 5*time.Millisecond)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.writes, 1)
}
