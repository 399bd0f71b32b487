package widgets

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
)

// modal holds the request that opened a confirmation dialog.
type modal[T any] struct {
	mu      sync.Mutex
	open    bool
	pending T
}

func (m *modal[T]) show(req T) {
	m.mu.Lock()
	m.open, m.pending = true, req
	m.mu.Unlock()
}

// take closes the modal and returns the request it was opened with.
func (m *modal[T]) take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, open := m.pending, m.open
	var zero T
	m.open, m.pending = false, zero
	return req, open
}

func (m *modal[T]) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

func (m *modal[T]) Pending() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending, m.open
}

// Cancel closes the modal without effect.
func (m *modal[T]) Cancel() {
	m.take()
}

// DeleteModal confirms template deletions from either list.
type DeleteModal struct {
	modal[events.RequestDeleteTemplateEvent]
	bus *eventbus.Bus
}

func NewDeleteModal(bus *eventbus.Bus) *DeleteModal {
	m := &DeleteModal{bus: bus}
	eventbus.On(bus, events.RequestDeleteTemplate, m.show)
	return m
}

func (m *DeleteModal) Prompt() string {
	req, _ := m.Pending()
	return fmt.Sprintf("Delete template %q? This cannot be undone.", req.TemplateName)
}

func (m *DeleteModal) Confirm() {
	req, ok := m.take()
	if !ok {
		return
	}
	eventbus.Emit(m.bus, events.DeleteConfirmed, events.DeleteConfirmedEvent{TemplateID: req.TemplateID, ListType: req.ListType})
}

// ActivateModal confirms switching the guild's active template.
type ActivateModal struct {
	modal[events.RequestActivateTemplateEvent]
	bus *eventbus.Bus
}

func NewActivateModal(bus *eventbus.Bus) *ActivateModal {
	m := &ActivateModal{bus: bus}
	eventbus.On(bus, events.RequestActivateTemplate, m.show)
	return m
}

func (m *ActivateModal) Prompt() string {
	req, _ := m.Pending()
	return fmt.Sprintf("Activate %q for this guild?", req.TemplateName)
}

func (m *ActivateModal) Confirm() {
	req, ok := m.take()
	if !ok {
		return
	}
	eventbus.Emit(m.bus, events.ActivateConfirmed, events.ActivateConfirmedEvent{TemplateID: req.TemplateID})
}

// ShareModal confirms publishing a template and then shows its share code.
type ShareModal struct {
	modal[events.RequestShareTemplateEvent]
	bus *eventbus.Bus

	codeMu sync.Mutex
	code   string
}

func NewShareModal(bus *eventbus.Bus) *ShareModal {
	m := &ShareModal{bus: bus}
	eventbus.On(bus, events.RequestShareTemplate, m.show)
	eventbus.On(bus, events.TemplateShared, func(e events.TemplateSharedEvent) {
		m.codeMu.Lock()
		m.code = e.ShareCode
		m.codeMu.Unlock()
	})
	return m
}

func (m *ShareModal) Confirm() {
	req, ok := m.take()
	if !ok {
		return
	}
	eventbus.Emit(m.bus, events.ShareConfirmed, events.ShareConfirmedEvent{TemplateID: req.TemplateID})
}

// ShareCode is the code of the last successful share.
func (m *ShareModal) ShareCode() string {
	m.codeMu.Lock()
	defer m.codeMu.Unlock()
	return m.code
}

// SaveAsNewModal collects the name of a new template, either on request or as the forced
// fallback of a refused save.
type SaveAsNewModal struct {
	modal[events.SaveAsNewRequestedEvent]
	bus *eventbus.Bus
}

// NewSaveAsNewModal builds the prompt. It closes silently when another template replaces
// the one it was opened for, since the engine drops the pending fork on load.
func NewSaveAsNewModal(bus *eventbus.Bus) *SaveAsNewModal {
	m := &SaveAsNewModal{bus: bus}
	eventbus.On(bus, events.SaveAsNewRequested, m.show)
	eventbus.On(bus, events.LoadTemplateData, func(events.LoadTemplateDataEvent) { m.take() })
	eventbus.On(bus, events.TemplateUnloaded, func(events.TemplateUnloadedEvent) { m.take() })
	return m
}

// Confirm submits the prompt. A blank name keeps the suggestion.
func (m *SaveAsNewModal) Confirm(name, description string) {
	req, ok := m.take()
	if !ok {
		return
	}
	if strings.TrimSpace(name) == "" {
		name = req.SuggestedName
	}
	if description == "" {
		description = req.SuggestedDescription
	}
	eventbus.Emit(m.bus, events.SaveAsNewConfirmed, events.SaveAsNewConfirmedEvent{NewName: strings.TrimSpace(name), NewDescription: description})
}

// Cancel closes the prompt and tells the engine the fork was abandoned.
func (m *SaveAsNewModal) Cancel() {
	if _, ok := m.take(); !ok {
		return
	}
	eventbus.Emit(m.bus, events.SaveAsNewCancelled, events.SaveAsNewCancelledEvent{})
}
