package tree

import "sync"

// RootParent is the parent id the widget uses for the top-level template node.
const RootParent = "#"

// WidgetNode is the native node format of the tree widget.
type WidgetNode struct {
	ID       string        `json:"id"`
	Parent   string        `json:"parent"`
	Text     string        `json:"text"`
	Type     string        `json:"type"`
	Children []*WidgetNode `json:"children,omitempty"`
}

// Origin tags where a dropped item came from.
type Origin string

const (
	OriginTree    Origin = "tree"
	OriginPalette Origin = "palette"
)

// PaletteItem identifies a creation-palette entry.
type PaletteItem string

const (
	PaletteCategory PaletteItem = "new_category"
	PaletteChannel  PaletteItem = "new_channel"
)

// Drop is a move gesture reported by the widget. For palette drops NodeID is empty and
// Item names the palette entry. Position is the index among the displayed children of
// Parent once the drop is complete.
type Drop struct {
	Origin   Origin
	NodeID   string
	Item     PaletteItem
	ParentID string
	Position int
}

// Widget is the visual tree capability the adapter drives.
type Widget interface {
	Render(nodes []*WidgetNode)
	OnMove(func(Drop))
	OnSelect(func(nodeID string))
}

// Headless is an in-memory Widget used by the CLI and in tests.
type Headless struct {
	mu       sync.Mutex
	nodes    []*WidgetNode
	renders  int
	onMove   func(Drop)
	onSelect func(string)
}

func NewHeadless() *Headless {
	return &Headless{}
}

func (h *Headless) Render(nodes []*WidgetNode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nodes = nodes
	h.renders++
}

func (h *Headless) OnMove(cb func(Drop)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMove = cb
}

func (h *Headless) OnSelect(cb func(string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onSelect = cb
}

// Nodes returns the last rendered forest.
func (h *Headless) Nodes() []*WidgetNode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nodes
}

// Renders counts Render calls.
func (h *Headless) Renders() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renders
}

// Drop simulates a user drag-and-drop.
func (h *Headless) Drop(d Drop) {
	h.mu.Lock()
	cb := h.onMove
	h.mu.Unlock()
	if cb != nil {
		cb(d)
	}
}

// Select simulates a click on a node.
func (h *Headless) Select(nodeID string) {
	h.mu.Lock()
	cb := h.onSelect
	h.mu.Unlock()
	if cb != nil {
		cb(nodeID)
	}
}
