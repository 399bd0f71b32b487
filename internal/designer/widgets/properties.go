package widgets

import (
	"strings"
	"sync"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/structure"
)

// PropertiesPanel edits the node selected in the tree.
type PropertiesPanel struct {
	model *structure.Model
	bus   *eventbus.Bus

	mu       sync.RWMutex
	selected *events.DesignerNodeSelectedEvent
}

func NewPropertiesPanel(model *structure.Model, bus *eventbus.Bus) *PropertiesPanel {
	p := &PropertiesPanel{model: model, bus: bus}
	eventbus.On(bus, events.DesignerNodeSelected, func(e events.DesignerNodeSelectedEvent) {
		p.mu.Lock()
		p.selected = &e
		p.mu.Unlock()
	})
	eventbus.On(bus, events.LoadTemplateData, func(events.LoadTemplateDataEvent) { p.clear() })
	eventbus.On(bus, events.TemplateUnloaded, func(events.TemplateUnloadedEvent) { p.clear() })
	// Saved provisional nodes change identity.
	eventbus.On(bus, events.StructureSaved, func(events.StructureSavedEvent) { p.clear() })
	return p
}

func (p *PropertiesPanel) clear() {
	p.mu.Lock()
	p.selected = nil
	p.mu.Unlock()
}

// Selected returns the current selection, if any.
func (p *PropertiesPanel) Selected() (events.DesignerNodeSelectedEvent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.selected == nil {
		return events.DesignerNodeSelectedEvent{}, false
	}
	return *p.selected, true
}

// Apply edits the selected node. Unchanged fields are not recorded; an empty kind keeps the
// current channel type.
func (p *PropertiesPanel) Apply(name string, kind domain.ChannelKind) error {
	sel, ok := p.Selected()
	if !ok {
		return domain.NewError(domain.ErrCodeInvalid, "nothing selected")
	}
	if sel.Type == domain.NodeTemplate {
		return domain.NewError(domain.ErrCodeInvalid, "rename templates from the template list")
	}

	var change domain.PropertyChange
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.NewError(domain.ErrCodeInvalid, "name is required")
	}
	if name != sel.Name {
		change.Name = &name
	}
	if sel.Type == domain.NodeChannel && kind != "" && kind != sel.ChannelType {
		change.ChannelType = &kind
	}
	if change.Empty() {
		return nil
	}

	if err := p.model.UpdateProperties(sel.ID, change); err != nil {
		return err
	}

	p.mu.Lock()
	if p.selected != nil && p.selected.ID == sel.ID {
		if change.Name != nil {
			p.selected.Name = *change.Name
		}
		if change.ChannelType != nil {
			p.selected.ChannelType = *change.ChannelType
		}
	}
	p.mu.Unlock()

	eventbus.Emit(p.bus, events.PropertyChanged, events.PropertyChangedEvent{NodeID: sel.ID, Change: change})
	return nil
}
