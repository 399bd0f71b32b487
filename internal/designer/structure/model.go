// Package structure holds the in-memory category/channel tree of the loaded template.
//
// Sibling order is owned here as explicit ordered lists: one list of categories under the
// template root, one list of uncategorized channels, and one list of channels per category.
// Positions are never stored; they are the index of a node in its list.
package structure

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fastygo/guild-designer/domain"
)

// Node is one row of ListChildrenOf.
type Node struct {
	Ref         domain.NodeRef
	Parent      domain.NodeRef
	Name        string
	Position    int
	ChannelType domain.ChannelKind
}

// Move describes a structural change applied by ApplyMove or Insert.
type Move struct {
	Node        domain.NodeRef
	OldParent   domain.NodeRef
	OldPosition int
	NewParent   domain.NodeRef
	NewPosition int
}

// Model is safe for concurrent use; every method is a single critical section.
type Model struct {
	mu sync.Mutex

	template    domain.Template
	loaded      bool
	categories  map[int64]*domain.Category
	channels    map[int64]*domain.Channel
	groups      map[groupKey][]int64
	pending     map[domain.NodeRef]domain.PropertyChange
	provisional int64
}

// groupKey identifies one sibling list. Parent zero stands for the template root; category
// ids are never zero.
type groupKey struct {
	kind   domain.NodeKind
	parent int64
}

var (
	rootCategories = groupKey{kind: domain.NodeCategory}
	rootChannels   = groupKey{kind: domain.NodeChannel}
)

func channelsOf(categoryID int64) groupKey {
	return groupKey{kind: domain.NodeChannel, parent: categoryID}
}

// New returns an empty model with nothing loaded.
func New() *Model {
	m := &Model{}
	m.reset()
	return m
}

func (m *Model) reset() {
	m.template = domain.Template{}
	m.loaded = false
	m.categories = make(map[int64]*domain.Category)
	m.channels = make(map[int64]*domain.Channel)
	m.groups = make(map[groupKey][]int64)
	m.pending = make(map[domain.NodeRef]domain.PropertyChange)
	m.provisional = 0
}

// Load replaces the model content with the given template. Stored positions are only used
// as sort keys; ties fall back to id order. Channels naming an unknown category are
// attached to the template root.
func (m *Model) Load(t *domain.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()
	if t == nil {
		return
	}

	src := t.Clone()
	m.template = *src
	m.template.Categories = nil
	m.template.Channels = nil
	m.loaded = true

	cats := append([]domain.Category(nil), src.Categories...)
	sort.SliceStable(cats, func(i, j int) bool {
		if cats[i].Position != cats[j].Position {
			return cats[i].Position < cats[j].Position
		}
		return cats[i].ID < cats[j].ID
	})
	for i := range cats {
		c := cats[i]
		m.categories[c.ID] = &c
		m.groups[rootCategories] = append(m.groups[rootCategories], c.ID)
	}

	chans := append([]domain.Channel(nil), src.Channels...)
	sort.SliceStable(chans, func(i, j int) bool {
		if chans[i].Position != chans[j].Position {
			return chans[i].Position < chans[j].Position
		}
		return chans[i].ID < chans[j].ID
	})
	for i := range chans {
		ch := chans[i]
		if ch.Kind == "" {
			ch.Kind = domain.ChannelText
		}
		if ch.ParentCategoryID != nil {
			if _, ok := m.categories[*ch.ParentCategoryID]; !ok {
				ch.ParentCategoryID = nil
			}
		}
		m.channels[ch.ID] = &ch
		key := m.channelKey(&ch)
		m.groups[key] = append(m.groups[key], ch.ID)
	}
	m.renumber()
}

// Clear unloads the current template.
func (m *Model) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
}

// Loaded reports whether a template is loaded.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// TemplateID returns the id of the loaded template (zero when none or unsaved).
func (m *Model) TemplateID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.template.ID
}

// Root returns the reference of the template root node.
func (m *Model) Root() domain.NodeRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.TemplateRef(m.template.ID)
}

// Rebind switches the model to a new template identity, keeping its content. Used after
// a fork created a new template from the in-memory structure.
func (m *Model) Rebind(id int64, name, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.template.ID = id
	m.template.Name = name
	m.template.Description = description
	m.template.IsInitialSnapshot = false
}

// CategoriesByID returns a copy of the category index.
func (m *Model) CategoriesByID() map[int64]domain.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]domain.Category, len(m.categories))
	for id, c := range m.categories {
		out[id] = *c
	}
	return out
}

// Lookup returns the node for ref.
func (m *Model) Lookup(ref domain.NodeRef) (Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookup(ref)
}

func (m *Model) lookup(ref domain.NodeRef) (Node, bool) {
	switch ref.Kind {
	case domain.NodeTemplate:
		if !m.loaded || ref.ID != m.template.ID {
			return Node{}, false
		}
		return Node{Ref: ref, Name: m.template.Name}, true
	case domain.NodeCategory:
		c, ok := m.categories[ref.ID]
		if !ok {
			return Node{}, false
		}
		return Node{Ref: ref, Parent: domain.TemplateRef(m.template.ID), Name: c.Name, Position: c.Position}, true
	case domain.NodeChannel:
		ch, ok := m.channels[ref.ID]
		if !ok {
			return Node{}, false
		}
		return Node{Ref: ref, Parent: m.parentOf(ch), Name: ch.Name, Position: ch.Position, ChannelType: ch.Kind}, true
	}
	return Node{}, false
}

// ListChildrenOf returns the ordered children of parent. For the template root that is the
// categories followed by the uncategorized channels; for a category, its channels.
func (m *Model) ListChildrenOf(parent domain.NodeRef) ([]Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch parent.Kind {
	case domain.NodeTemplate:
		if !m.loaded || parent.ID != m.template.ID {
			return nil, domain.WrapError(domain.ErrCodeNotFound, "unknown template node", fmt.Errorf("%s", parent))
		}
		cats, chans := m.groups[rootCategories], m.groups[rootChannels]
		nodes := make([]Node, 0, len(cats)+len(chans))
		for _, id := range cats {
			n, _ := m.lookup(domain.CategoryRef(id))
			nodes = append(nodes, n)
		}
		for _, id := range chans {
			n, _ := m.lookup(domain.ChannelRef(id))
			nodes = append(nodes, n)
		}
		return nodes, nil
	case domain.NodeCategory:
		if _, ok := m.categories[parent.ID]; !ok {
			return nil, domain.WrapError(domain.ErrCodeNotFound, "unknown category", fmt.Errorf("%s", parent))
		}
		ids := m.groups[channelsOf(parent.ID)]
		nodes := make([]Node, 0, len(ids))
		for _, id := range ids {
			n, _ := m.lookup(domain.ChannelRef(id))
			nodes = append(nodes, n)
		}
		return nodes, nil
	case domain.NodeChannel:
		return nil, nil
	}
	return nil, domain.WrapError(domain.ErrCodeInvalid, "unknown node kind", fmt.Errorf("%s", parent))
}

// ApplyMove moves node under newParent at newPosition (clamped to the target group),
// closing the gap in the old sibling group. Categories may only live under the template
// root and channels cannot have children.
func (m *Model) ApplyMove(node, newParent domain.NodeRef, newPosition int) (Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validateTarget(node, newParent); err != nil {
		return Move{}, err
	}

	oldKey, ok := m.keyOf(node)
	if !ok {
		return Move{}, &domain.InvalidMoveError{Node: node, Parent: newParent, Reason: "node is not part of the loaded template"}
	}
	oldParent := m.parentRef(oldKey)
	oldPosition := indexOf(m.groups[oldKey], node.ID)
	m.groups[oldKey] = removeAt(m.groups[oldKey], oldPosition)

	newKey := m.keyFor(node.Kind, newParent)
	pos := clamp(newPosition, len(m.groups[newKey]))
	m.groups[newKey] = insertAt(m.groups[newKey], pos, node.ID)

	if node.Kind == domain.NodeChannel {
		ch := m.channels[node.ID]
		if newParent.Kind == domain.NodeCategory {
			parent := newParent.ID
			ch.ParentCategoryID = &parent
		} else {
			ch.ParentCategoryID = nil
		}
	}
	m.renumber()

	return Move{
		Node:        node,
		OldParent:   oldParent,
		OldPosition: oldPosition,
		NewParent:   newParent,
		NewPosition: pos,
	}, nil
}

// Insert creates a provisional node under parent at position.
func (m *Model) Insert(kind domain.NodeKind, parent domain.NodeRef, position int, name string, channelKind domain.ChannelKind) (Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.provisional--
	ref := domain.NodeRef{Kind: kind, ID: m.provisional}
	if err := m.validateTarget(ref, parent); err != nil {
		m.provisional++
		return Move{}, err
	}

	switch kind {
	case domain.NodeCategory:
		m.categories[ref.ID] = &domain.Category{ID: ref.ID, Name: name}
	case domain.NodeChannel:
		if channelKind == "" {
			channelKind = domain.ChannelText
		}
		ch := &domain.Channel{ID: ref.ID, Name: name, Kind: channelKind}
		if parent.Kind == domain.NodeCategory {
			p := parent.ID
			ch.ParentCategoryID = &p
		}
		m.channels[ref.ID] = ch
	}

	key := m.keyFor(kind, parent)
	pos := clamp(position, len(m.groups[key]))
	m.groups[key] = insertAt(m.groups[key], pos, ref.ID)
	m.renumber()

	return Move{Node: ref, NewParent: parent, NewPosition: pos}, nil
}

// Remove deletes a node. Removing a category also removes its channels.
func (m *Model) Remove(ref domain.NodeRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keyOf(ref)
	if !ok {
		return domain.WrapError(domain.ErrCodeNotFound, "unknown node", fmt.Errorf("%s", ref))
	}
	m.groups[key] = removeAt(m.groups[key], indexOf(m.groups[key], ref.ID))

	switch ref.Kind {
	case domain.NodeCategory:
		for _, id := range m.groups[channelsOf(ref.ID)] {
			delete(m.channels, id)
			delete(m.pending, domain.ChannelRef(id))
		}
		delete(m.groups, channelsOf(ref.ID))
		delete(m.categories, ref.ID)
	case domain.NodeChannel:
		delete(m.channels, ref.ID)
	}
	delete(m.pending, ref)
	m.renumber()
	return nil
}

// UpdateProperties applies a property edit to the node and records it as pending.
func (m *Model) UpdateProperties(ref domain.NodeRef, change domain.PropertyChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if change.Empty() {
		return nil
	}
	switch ref.Kind {
	case domain.NodeCategory:
		c, ok := m.categories[ref.ID]
		if !ok {
			return domain.WrapError(domain.ErrCodeNotFound, "unknown category", fmt.Errorf("%s", ref))
		}
		if change.ChannelType != nil {
			return domain.NewError(domain.ErrCodeInvalid, "categories have no channel type")
		}
		c.Name = *change.Name
	case domain.NodeChannel:
		ch, ok := m.channels[ref.ID]
		if !ok {
			return domain.WrapError(domain.ErrCodeNotFound, "unknown channel", fmt.Errorf("%s", ref))
		}
		if change.ChannelType != nil {
			if !change.ChannelType.Valid() {
				return domain.NewError(domain.ErrCodeInvalid, "unsupported channel type")
			}
			ch.Kind = *change.ChannelType
		}
		if change.Name != nil {
			ch.Name = *change.Name
		}
	default:
		return domain.NewError(domain.ErrCodeInvalid, "only categories and channels carry properties")
	}
	m.pending[ref] = m.pending[ref].Merge(change)
	return nil
}

// PendingChanges returns a copy of the property edits accumulated since the last save.
func (m *Model) PendingChanges() map[string]domain.PropertyChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingCopy()
}

func (m *Model) pendingCopy() map[string]domain.PropertyChange {
	out := make(map[string]domain.PropertyChange, len(m.pending))
	for ref, change := range m.pending {
		out[ref.String()] = change
	}
	return out
}

// ClearPending drops accumulated property edits after a confirmed save.
func (m *Model) ClearPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[domain.NodeRef]domain.PropertyChange)
}

// SerializeForSave produces the wire payload for templateID. Positions are recomputed from
// the ordered sibling lists; a node whose sibling index cannot be resolved aborts with a
// SerializationError.
func (m *Model) SerializeForSave(templateID int64) (domain.StructurePayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return domain.StructurePayload{}, &domain.SerializationError{Node: domain.TemplateRef(templateID), Reason: "no template loaded"}
	}
	if err := m.checkConsistency(); err != nil {
		return domain.StructurePayload{}, err
	}

	root := domain.TemplateRef(templateID)
	payload := domain.StructurePayload{
		Nodes:           make([]domain.StructureNode, 0, len(m.categories)+len(m.channels)),
		PropertyChanges: m.pendingCopy(),
	}

	for pos, id := range m.groups[rootCategories] {
		c := m.categories[id]
		payload.Nodes = append(payload.Nodes, domain.StructureNode{
			ID:       domain.CategoryRef(id),
			ParentID: root,
			Position: pos,
			Name:     c.Name,
		})
	}
	appendChannels := func(parent domain.NodeRef, ids []int64) {
		for pos, id := range ids {
			ch := m.channels[id]
			payload.Nodes = append(payload.Nodes, domain.StructureNode{
				ID:          domain.ChannelRef(id),
				ParentID:    parent,
				Position:    pos,
				Name:        ch.Name,
				ChannelType: ch.Kind,
			})
		}
	}
	appendChannels(root, m.groups[rootChannels])
	for _, catID := range m.groups[rootCategories] {
		appendChannels(domain.CategoryRef(catID), m.groups[channelsOf(catID)])
	}

	return payload, nil
}

// ResolveProvisional rebinds provisional nodes to the ids the store assigned on save.
func (m *Model) ResolveProvisional(idMap map[string]int64) {
	if len(idMap) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	catMap := make(map[int64]int64)
	chanMap := make(map[int64]int64)
	for raw, newID := range idMap {
		ref, err := domain.ParseNodeRef(raw)
		if err != nil || !ref.Provisional() || newID <= 0 {
			continue
		}
		switch ref.Kind {
		case domain.NodeCategory:
			if _, ok := m.categories[ref.ID]; ok {
				catMap[ref.ID] = newID
			}
		case domain.NodeChannel:
			if _, ok := m.channels[ref.ID]; ok {
				chanMap[ref.ID] = newID
			}
		}
	}

	for oldID, newID := range catMap {
		c := m.categories[oldID]
		delete(m.categories, oldID)
		c.ID = newID
		m.categories[newID] = c
		replaceID(m.groups[rootCategories], oldID, newID)
		if chans, ok := m.groups[channelsOf(oldID)]; ok {
			delete(m.groups, channelsOf(oldID))
			m.groups[channelsOf(newID)] = chans
		}
		if change, ok := m.pending[domain.CategoryRef(oldID)]; ok {
			delete(m.pending, domain.CategoryRef(oldID))
			m.pending[domain.CategoryRef(newID)] = change
		}
	}
	for _, ch := range m.channels {
		if ch.ParentCategoryID == nil {
			continue
		}
		if newID, ok := catMap[*ch.ParentCategoryID]; ok {
			parent := newID
			ch.ParentCategoryID = &parent
		}
	}
	for oldID, newID := range chanMap {
		ch := m.channels[oldID]
		delete(m.channels, oldID)
		ch.ID = newID
		m.channels[newID] = ch
		replaceID(m.groups[m.channelKey(ch)], oldID, newID)
		if change, ok := m.pending[domain.ChannelRef(oldID)]; ok {
			delete(m.pending, domain.ChannelRef(oldID))
			m.pending[domain.ChannelRef(newID)] = change
		}
	}
}

// Snapshot returns the current content as a template with dense positions.
func (m *Model) Snapshot() *domain.Template {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return nil
	}
	out := m.template
	for _, id := range m.groups[rootCategories] {
		out.Categories = append(out.Categories, *m.categories[id])
	}
	add := func(ids []int64) {
		for _, id := range ids {
			ch := *m.channels[id]
			if ch.ParentCategoryID != nil {
				parent := *ch.ParentCategoryID
				ch.ParentCategoryID = &parent
			}
			out.Channels = append(out.Channels, ch)
		}
	}
	add(m.groups[rootChannels])
	for _, id := range m.groups[rootCategories] {
		add(m.groups[channelsOf(id)])
	}
	return &out
}

func (m *Model) validateTarget(node, parent domain.NodeRef) error {
	switch parent.Kind {
	case domain.NodeChannel:
		return &domain.InvalidMoveError{Node: node, Parent: parent, Reason: "channels cannot contain children"}
	case domain.NodeTemplate:
		if !m.loaded || parent.ID != m.template.ID {
			return &domain.InvalidMoveError{Node: node, Parent: parent, Reason: "unknown template"}
		}
	case domain.NodeCategory:
		if node.Kind == domain.NodeCategory {
			return &domain.InvalidMoveError{Node: node, Parent: parent, Reason: "categories are always top-level"}
		}
		if _, ok := m.categories[parent.ID]; !ok {
			return &domain.InvalidMoveError{Node: node, Parent: parent, Reason: "unknown category"}
		}
	default:
		return &domain.InvalidMoveError{Node: node, Parent: parent, Reason: "unknown parent"}
	}
	switch node.Kind {
	case domain.NodeCategory, domain.NodeChannel:
		return nil
	}
	return &domain.InvalidMoveError{Node: node, Parent: parent, Reason: "the template root cannot move"}
}

func (m *Model) parentOf(ch *domain.Channel) domain.NodeRef {
	if ch.ParentCategoryID == nil {
		return domain.TemplateRef(m.template.ID)
	}
	return domain.CategoryRef(*ch.ParentCategoryID)
}

func (m *Model) channelKey(ch *domain.Channel) groupKey {
	if ch.ParentCategoryID == nil {
		return rootChannels
	}
	return channelsOf(*ch.ParentCategoryID)
}

func (m *Model) keyFor(kind domain.NodeKind, parent domain.NodeRef) groupKey {
	if kind == domain.NodeCategory {
		return rootCategories
	}
	if parent.Kind == domain.NodeCategory {
		return channelsOf(parent.ID)
	}
	return rootChannels
}

func (m *Model) parentRef(key groupKey) domain.NodeRef {
	if key.parent == 0 {
		return domain.TemplateRef(m.template.ID)
	}
	return domain.CategoryRef(key.parent)
}

func (m *Model) keyOf(ref domain.NodeRef) (groupKey, bool) {
	var key groupKey
	switch ref.Kind {
	case domain.NodeCategory:
		if _, ok := m.categories[ref.ID]; !ok {
			return groupKey{}, false
		}
		key = rootCategories
	case domain.NodeChannel:
		ch, ok := m.channels[ref.ID]
		if !ok {
			return groupKey{}, false
		}
		key = m.channelKey(ch)
	default:
		return groupKey{}, false
	}
	if indexOf(m.groups[key], ref.ID) < 0 {
		return groupKey{}, false
	}
	return key, true
}

func (m *Model) checkConsistency() error {
	for id := range m.categories {
		if indexOf(m.groups[rootCategories], id) < 0 {
			return &domain.SerializationError{Node: domain.CategoryRef(id), Reason: "no sibling index"}
		}
	}
	for id, ch := range m.channels {
		if ch.ParentCategoryID != nil {
			if _, ok := m.categories[*ch.ParentCategoryID]; !ok {
				return &domain.SerializationError{Node: domain.ChannelRef(id), Reason: "parent category is missing"}
			}
		}
		if indexOf(m.groups[m.channelKey(ch)], id) < 0 {
			return &domain.SerializationError{Node: domain.ChannelRef(id), Reason: "no sibling index"}
		}
	}

	total := 0
	for key, ids := range m.groups {
		total += len(ids)
		for _, id := range ids {
			var known bool
			if key.kind == domain.NodeCategory {
				_, known = m.categories[id]
			} else {
				_, known = m.channels[id]
			}
			if !known {
				return &domain.SerializationError{Node: domain.NodeRef{Kind: key.kind, ID: id}, Reason: "sibling list references an unknown node"}
			}
		}
	}
	if total != len(m.categories)+len(m.channels) {
		return &domain.SerializationError{Node: domain.TemplateRef(m.template.ID), Reason: "node listed in more than one sibling group"}
	}
	return nil
}

func (m *Model) renumber() {
	for key, ids := range m.groups {
		for i, id := range ids {
			if key.kind == domain.NodeCategory {
				if c, ok := m.categories[id]; ok {
					c.Position = i
				}
				continue
			}
			if ch, ok := m.channels[id]; ok {
				ch.Position = i
			}
		}
	}
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeAt(ids []int64, i int) []int64 {
	if i < 0 || i >= len(ids) {
		return ids
	}
	return append(ids[:i:i], ids[i+1:]...)
}

func insertAt(ids []int64, i int, id int64) []int64 {
	out := make([]int64, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	return append(out, ids[i:]...)
}

func replaceID(ids []int64, old, id int64) {
	if i := indexOf(ids, old); i >= 0 {
		ids[i] = id
	}
}

func clamp(pos, n int) int {
	if pos < 0 {
		return 0
	}
	if pos > n {
		return n
	}
	return pos
}
