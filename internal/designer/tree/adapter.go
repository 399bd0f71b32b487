// Package tree bridges the structure model and the visual tree widget. It is the only
// package that reads the widget's node format.
package tree

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/internal/designer/eventbus"
	"github.com/fastygo/guild-designer/internal/designer/events"
	"github.com/fastygo/guild-designer/internal/designer/structure"
)

const (
	defaultCategoryName = "new-category"
	defaultChannelName  = "new-channel"
)

// Adapter renders the model into the widget and turns widget gestures into model
// mutations and events.
type Adapter struct {
	model  *structure.Model
	widget Widget
	bus    *eventbus.Bus
	logger *zap.Logger
}

// NewAdapter wires the widget callbacks and subscribes to the events that require a
// re-render.
func NewAdapter(model *structure.Model, widget Widget, bus *eventbus.Bus, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		model:  model,
		widget: widget,
		bus:    bus,
		logger: logger.Named("tree"),
	}

	widget.OnMove(a.HandleDrop)
	widget.OnSelect(a.HandleSelect)

	eventbus.On(bus, events.LoadTemplateData, func(e events.LoadTemplateDataEvent) {
		a.model.Load(e.TemplateData)
		a.Refresh()
	})
	eventbus.On(bus, events.TemplateUnloaded, func(e events.TemplateUnloadedEvent) {
		if a.model.TemplateID() == e.TemplateID {
			a.model.Clear()
			a.Refresh()
		}
	})
	eventbus.On(bus, events.StructureSaved, func(events.StructureSavedEvent) { a.Refresh() })
	eventbus.On(bus, events.PropertyChanged, func(events.PropertyChangedEvent) { a.Refresh() })

	return a
}

// Refresh re-renders the widget from the model.
func (a *Adapter) Refresh() {
	a.widget.Render(BuildNodes(a.model))
}

// BuildNodes converts the model into widget nodes: one template root whose children are the
// uncategorized channels followed by the categories, each with their channels nested.
func BuildNodes(model *structure.Model) []*WidgetNode {
	snap := model.Snapshot()
	if snap == nil {
		return nil
	}

	rootRef := domain.TemplateRef(snap.ID)
	root := &WidgetNode{
		ID:     rootRef.String(),
		Parent: RootParent,
		Text:   snap.Name,
		Type:   string(domain.NodeTemplate),
	}

	children, _ := model.ListChildrenOf(rootRef)
	var cats []*WidgetNode
	for _, child := range children {
		node := widgetNode(child, rootRef)
		if child.Ref.Kind == domain.NodeChannel {
			root.Children = append(root.Children, node)
			continue
		}
		nested, _ := model.ListChildrenOf(child.Ref)
		for _, ch := range nested {
			node.Children = append(node.Children, widgetNode(ch, child.Ref))
		}
		cats = append(cats, node)
	}
	root.Children = append(root.Children, cats...)
	return []*WidgetNode{root}
}

func widgetNode(n structure.Node, parent domain.NodeRef) *WidgetNode {
	typ := string(n.Ref.Kind)
	if n.Ref.Kind == domain.NodeChannel {
		typ = fmt.Sprintf("%s-%s", domain.NodeChannel, n.ChannelType)
	}
	return &WidgetNode{
		ID:     n.Ref.String(),
		Parent: parent.String(),
		Text:   n.Name,
		Type:   typ,
	}
}

// HandleDrop validates and applies a drop. Rejected drops roll the widget back to the model
// and fire dropRejected without touching the model.
func (a *Adapter) HandleDrop(d Drop) {
	parent, err := domain.ParseNodeRef(d.ParentID)
	if err != nil {
		a.reject(domain.NodeRef{}, domain.NodeRef{}, "unknown drop target")
		return
	}

	switch d.Origin {
	case OriginPalette:
		a.dropFromPalette(d, parent)
	case OriginTree:
		a.dropExisting(d, parent)
	default:
		a.reject(domain.NodeRef{}, parent, "unknown drop origin")
	}
}

func (a *Adapter) dropFromPalette(d Drop, parent domain.NodeRef) {
	var (
		kind domain.NodeKind
		name string
	)
	switch {
	case d.Item == PaletteCategory && parent.Kind == domain.NodeTemplate:
		kind, name = domain.NodeCategory, defaultCategoryName
	case d.Item == PaletteChannel && (parent.Kind == domain.NodeTemplate || parent.Kind == domain.NodeCategory):
		kind, name = domain.NodeChannel, defaultChannelName
	default:
		a.reject(domain.NodeRef{}, parent, fmt.Sprintf("%s cannot be dropped on a %s", d.Item, parent.Kind))
		return
	}

	pos := a.groupPosition(kind, domain.NodeRef{}, parent, d.Position)
	move, err := a.model.Insert(kind, parent, pos, name, domain.ChannelText)
	if err != nil {
		a.reject(domain.NodeRef{}, parent, err.Error())
		return
	}
	a.changed(move)
}

func (a *Adapter) dropExisting(d Drop, parent domain.NodeRef) {
	node, err := domain.ParseNodeRef(d.NodeID)
	if err != nil {
		a.reject(domain.NodeRef{}, parent, "unknown node")
		return
	}

	pos := a.groupPosition(node.Kind, node, parent, d.Position)
	move, err := a.model.ApplyMove(node, parent, pos)
	if err != nil {
		var moveErr *domain.InvalidMoveError
		if errors.As(err, &moveErr) {
			a.reject(node, parent, moveErr.Reason)
			return
		}
		a.reject(node, parent, err.Error())
		return
	}
	a.changed(move)
}

// groupPosition converts a displayed index into an index within the node's sibling group.
// Under the template root the widget shows uncategorized channels before categories.
func (a *Adapter) groupPosition(kind domain.NodeKind, node, parent domain.NodeRef, displayed int) int {
	if parent.Kind != domain.NodeTemplate {
		return displayed
	}
	children, err := a.model.ListChildrenOf(parent)
	if err != nil {
		return displayed
	}
	channels := 0
	for _, c := range children {
		if c.Ref.Kind == domain.NodeChannel && c.Ref != node {
			channels++
		}
	}
	if kind == domain.NodeChannel {
		if displayed > channels {
			return channels
		}
		return displayed
	}
	if displayed < channels {
		return 0
	}
	return displayed - channels
}

func (a *Adapter) changed(move structure.Move) {
	a.logger.Debug("structure changed",
		zap.Stringer("node", move.Node),
		zap.Stringer("parent", move.NewParent),
		zap.Int("position", move.NewPosition))

	a.Refresh()
	eventbus.Emit(a.bus, events.StructureChanged, events.StructureChangedEvent{
		NodeID:      move.Node,
		NewParentID: move.NewParent,
		NewPosition: move.NewPosition,
		OldParentID: move.OldParent,
		OldPosition: move.OldPosition,
	})
}

func (a *Adapter) reject(node, target domain.NodeRef, reason string) {
	a.logger.Warn("drop rejected",
		zap.Stringer("node", node),
		zap.Stringer("target", target),
		zap.String("reason", reason))

	a.Refresh()
	eventbus.Emit(a.bus, events.DropRejected, events.DropRejectedEvent{
		NodeID:   node,
		TargetID: target,
		Reason:   reason,
	})
	eventbus.Emit(a.bus, events.Notification, events.NotificationEvent{
		Level:   events.LevelWarning,
		Message: "That item cannot be placed there.",
	})
}

// HandleSelect normalizes a widget selection into designerNodeSelected.
func (a *Adapter) HandleSelect(nodeID string) {
	ref, err := domain.ParseNodeRef(nodeID)
	if err != nil {
		a.logger.Debug("ignoring selection of unknown node", zap.String("node", nodeID))
		return
	}
	node, ok := a.model.Lookup(ref)
	if !ok {
		a.logger.Debug("ignoring selection of missing node", zap.Stringer("node", ref))
		return
	}
	eventbus.Emit(a.bus, events.DesignerNodeSelected, events.DesignerNodeSelectedEvent{
		ID:          ref,
		Type:        ref.Kind,
		DBID:        ref.ID,
		Name:        node.Name,
		ChannelType: node.ChannelType,
	})
}
