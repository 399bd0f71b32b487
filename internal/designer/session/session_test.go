package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
)

func loaded(t *testing.T, bus *eventbus.Bus, id int64) {
	t.Helper()
	eventbus.Emit(bus, events.LoadTemplateData, events.LoadTemplateDataEvent{
		TemplateData: &domain.Template{ID: id, Name: "T"},
	})
}

func TestDirtyStateMachine(t *testing.T) {
	bus := eventbus.New(nil)
	s := New(bus, nil)
	loaded(t, bus, 5)
	require.False(t, s.IsDirty())

	for i := 0; i < 3; i++ {
		eventbus.Emit(bus, events.StructureChanged, events.StructureChangedEvent{NodeID: domain.ChannelRef(10)})
		assert.True(t, s.IsDirty())
	}

	eventbus.Emit(bus, events.TemplateActivated, events.TemplateActivatedEvent{ActivatedTemplateID: 9})
	assert.True(t, s.IsDirty(), "activating another template keeps the loaded one dirty")
	assert.Equal(t, int64(9), s.ActiveTemplateID())

	eventbus.Emit(bus, events.StructureSaved, events.StructureSavedEvent{})
	assert.False(t, s.IsDirty())

	eventbus.Emit(bus, events.PropertyChanged, events.PropertyChangedEvent{NodeID: domain.CategoryRef(1)})
	assert.True(t, s.IsDirty())

	eventbus.Emit(bus, events.TemplateActivated, events.TemplateActivatedEvent{ActivatedTemplateID: 5})
	assert.False(t, s.IsDirty())
}

func TestCanActivate(t *testing.T) {
	bus := eventbus.New(nil)
	s := New(bus, nil)
	assert.False(t, s.Snapshot().CanActivate(), "nothing loaded")

	loaded(t, bus, 5)
	s.SetActiveTemplateID(3)
	assert.True(t, s.Snapshot().CanActivate())

	s.SetDirty(true, "test")
	assert.False(t, s.Snapshot().CanActivate())

	s.SetDirty(false, "test")
	s.SetActiveTemplateID(5)
	assert.False(t, s.Snapshot().CanActivate(), "already active")
}

func TestUnloadOnlyForLoadedTemplate(t *testing.T) {
	bus := eventbus.New(nil)
	s := New(bus, nil)
	loaded(t, bus, 5)

	eventbus.Emit(bus, events.TemplateUnloaded, events.TemplateUnloadedEvent{TemplateID: 6})
	assert.Equal(t, int64(5), s.LoadedID())

	eventbus.Emit(bus, events.TemplateUnloaded, events.TemplateUnloadedEvent{TemplateID: 5})
	assert.Zero(t, s.LoadedID())
	assert.Nil(t, s.Snapshot().Loaded)
}

func TestSessionsDoNotShareState(t *testing.T) {
	busA, busB := eventbus.New(nil), eventbus.New(nil)
	a, b := New(busA, nil), New(busB, nil)
	loaded(t, busA, 1)
	loaded(t, busB, 2)

	eventbus.Emit(busA, events.StructureChanged, events.StructureChangedEvent{})
	assert.True(t, a.IsDirty())
	assert.False(t, b.IsDirty())

	a.Close()
	eventbus.Emit(busA, events.StructureSaved, events.StructureSavedEvent{})
	assert.True(t, a.IsDirty(), "closed session ignores the bus")
}
