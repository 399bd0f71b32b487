// Package widgets holds the read-mostly designer views: structure lists, template pickers,
// the toolbar, the properties panel and the confirmation modals. Widgets only ever mutate
// shared state by emitting intent events.
package widgets

import (
	"sync"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/structure"
)

// Row is one read-only line of a structure list with its position badge.
type Row struct {
	Ref         domain.NodeRef
	Name        string
	Position    int
	ParentName  string
	ChannelType domain.ChannelKind
}

// structureList re-projects the model whenever it may have changed.
type structureList struct {
	model   *structure.Model
	project func(*structure.Model) []Row

	mu   sync.RWMutex
	rows []Row
}

func newStructureList(model *structure.Model, bus *eventbus.Bus, project func(*structure.Model) []Row) *structureList {
	l := &structureList{model: model, project: project}
	eventbus.On(bus, events.LoadTemplateData, func(events.LoadTemplateDataEvent) { l.Refresh() })
	eventbus.On(bus, events.TemplateUnloaded, func(events.TemplateUnloadedEvent) { l.Refresh() })
	eventbus.On(bus, events.StructureChanged, func(events.StructureChangedEvent) { l.Refresh() })
	eventbus.On(bus, events.PropertyChanged, func(events.PropertyChangedEvent) { l.Refresh() })
	eventbus.On(bus, events.StructureSaved, func(events.StructureSavedEvent) { l.Refresh() })
	l.Refresh()
	return l
}

// Refresh rebuilds the rows from the model.
func (l *structureList) Refresh() {
	rows := l.project(l.model)
	l.mu.Lock()
	l.rows = rows
	l.mu.Unlock()
}

// Rows returns the rendered rows.
func (l *structureList) Rows() []Row {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Row(nil), l.rows...)
}

// CategoriesList lists the categories of the loaded template in order.
type CategoriesList struct {
	*structureList
}

func NewCategoriesList(model *structure.Model, bus *eventbus.Bus) *CategoriesList {
	return &CategoriesList{newStructureList(model, bus, projectCategories)}
}

func projectCategories(model *structure.Model) []Row {
	if !model.Loaded() {
		return nil
	}
	children, err := model.ListChildrenOf(model.Root())
	if err != nil {
		return nil
	}
	var rows []Row
	for _, n := range children {
		if n.Ref.Kind != domain.NodeCategory {
			continue
		}
		rows = append(rows, Row{Ref: n.Ref, Name: n.Name, Position: n.Position})
	}
	return rows
}

// ChannelsList lists every channel: uncategorized ones first, then per category.
type ChannelsList struct {
	*structureList
}

func NewChannelsList(model *structure.Model, bus *eventbus.Bus) *ChannelsList {
	return &ChannelsList{newStructureList(model, bus, projectChannels)}
}

func projectChannels(model *structure.Model) []Row {
	if !model.Loaded() {
		return nil
	}
	children, err := model.ListChildrenOf(model.Root())
	if err != nil {
		return nil
	}

	var rows, categorized []Row
	for _, n := range children {
		switch n.Ref.Kind {
		case domain.NodeChannel:
			rows = append(rows, Row{Ref: n.Ref, Name: n.Name, Position: n.Position, ChannelType: n.ChannelType})
		case domain.NodeCategory:
			channels, err := model.ListChildrenOf(n.Ref)
			if err != nil {
				continue
			}
			for _, ch := range channels {
				categorized = append(categorized, Row{
					Ref:         ch.Ref,
					Name:        ch.Name,
					Position:    ch.Position,
					ParentName:  n.Name,
					ChannelType: ch.ChannelType,
				})
			}
		}
	}
	return append(rows, categorized...)
}
