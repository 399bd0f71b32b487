package widgets

import (
	"sync"

	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/session"
)

// Toolbar exposes the editor-level actions and their enabled state.
type Toolbar struct {
	session *session.State
	bus     *eventbus.Bus

	mu   sync.RWMutex
	busy map[events.Control]bool
}

func NewToolbar(sess *session.State, bus *eventbus.Bus) *Toolbar {
	t := &Toolbar{session: sess, bus: bus, busy: make(map[events.Control]bool)}
	eventbus.On(bus, events.ControlState, func(e events.ControlStateEvent) {
		t.mu.Lock()
		if e.Busy {
			t.busy[e.Control] = true
		} else {
			delete(t.busy, e.Control)
		}
		t.mu.Unlock()
	})
	return t
}

// Busy reports whether control has an action in flight.
func (t *Toolbar) Busy(control events.Control) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.busy[control]
}

func (t *Toolbar) SaveEnabled() bool {
	return t.session.Snapshot().Loaded != nil && !t.Busy(events.ControlSave) && !t.Busy(events.ControlSaveAsNew)
}

func (t *Toolbar) SaveAsNewEnabled() bool {
	return t.session.Snapshot().Loaded != nil && !t.Busy(events.ControlSaveAsNew)
}

// ActivateEnabled is false while dirty, when the loaded template is already active, or
// while an activation is in flight.
func (t *Toolbar) ActivateEnabled() bool {
	return t.session.Snapshot().CanActivate() && !t.Busy(events.ControlActivate)
}

// Save emits requestSave when enabled.
func (t *Toolbar) Save() bool {
	if !t.SaveEnabled() {
		return false
	}
	eventbus.Emit(t.bus, events.RequestSave, events.RequestSaveEvent{})
	return true
}

// SaveAsNew opens the save-as-new prompt prefilled with the loaded template.
func (t *Toolbar) SaveAsNew() bool {
	if !t.SaveAsNewEnabled() {
		return false
	}
	loaded := t.session.Snapshot().Loaded
	eventbus.Emit(t.bus, events.SaveAsNewRequested, events.SaveAsNewRequestedEvent{
		SuggestedName:        loaded.Name,
		SuggestedDescription: loaded.Description,
	})
	return true
}

// Activate opens the activation confirmation for the loaded template.
func (t *Toolbar) Activate() bool {
	if !t.ActivateEnabled() {
		return false
	}
	loaded := t.session.Snapshot().Loaded
	eventbus.Emit(t.bus, events.RequestActivateTemplate, events.RequestActivateTemplateEvent{
		TemplateID:   loaded.ID,
		TemplateName: loaded.Name,
	})
	return true
}
