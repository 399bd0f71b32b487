package domain

// StructureNode is one non-root node of the wire payload exchanged on save and fork.
type StructureNode struct {
	ID          NodeRef     `json:"id"`
	ParentID    NodeRef     `json:"parent_id"`
	Position    int         `json:"position"`
	Name        string      `json:"name"`
	ChannelType ChannelKind `json:"channel_type,omitempty"`
}

// PropertyChange carries the edited fields of a single node. Nil fields were not touched.
type PropertyChange struct {
	Name        *string      `json:"name,omitempty"`
	ChannelType *ChannelKind `json:"channel_type,omitempty"`
}

// Merge overlays the non-nil fields of other onto c.
func (c PropertyChange) Merge(other PropertyChange) PropertyChange {
	if other.Name != nil {
		c.Name = other.Name
	}
	if other.ChannelType != nil {
		c.ChannelType = other.ChannelType
	}
	return c
}

// Empty reports whether the change carries no field.
func (c PropertyChange) Empty() bool {
	return c.Name == nil && c.ChannelType == nil
}

// StructurePayload is the body of a structure write.
type StructurePayload struct {
	Nodes           []StructureNode           `json:"nodes"`
	PropertyChanges map[string]PropertyChange `json:"property_changes"`
}

// SaveResult reports the server identities assigned to provisional nodes.
type SaveResult struct {
	IDMap map[string]int64 `json:"id_map"`
}

// ForkRequest creates a brand-new template from an in-memory structure.
type ForkRequest struct {
	NewName        string           `json:"new_name"`
	NewDescription string           `json:"new_description"`
	Structure      StructurePayload `json:"structure"`
}

// ShareResult is returned after a template was copied into the shared namespace.
type ShareResult struct {
	SharedTemplateID int64  `json:"shared_template_id"`
	ShareCode        string `json:"share_code"`
}

// TemplateFromStructure rebuilds categories and channels from a wire payload. Property
// changes are applied on top of node names. Provisional ids are kept as-is (negative).
// A zero templateID accepts whichever template root the payload names, as long as it is
// the same for every node.
func TemplateFromStructure(templateID int64, payload StructurePayload) (*Template, error) {
	tpl := &Template{ID: templateID}
	root, err := structureRoot(templateID, payload.Nodes)
	if err != nil {
		return nil, err
	}
	categories := make(map[int64]struct{})

	for _, node := range payload.Nodes {
		if node.ID.Kind != NodeCategory {
			continue
		}
		if node.ParentID != root {
			return nil, WrapError(ErrCodeInvalid, "categories must be top-level", nodeErr(node))
		}
		if _, dup := categories[node.ID.ID]; dup {
			return nil, WrapError(ErrCodeInvalid, "duplicate node", nodeErr(node))
		}
		categories[node.ID.ID] = struct{}{}
		tpl.Categories = append(tpl.Categories, Category{
			ID:       node.ID.ID,
			Name:     applyName(node, payload.PropertyChanges),
			Position: node.Position,
		})
	}

	channels := make(map[int64]struct{})
	for _, node := range payload.Nodes {
		switch node.ID.Kind {
		case NodeCategory:
			continue
		case NodeChannel:
		default:
			return nil, WrapError(ErrCodeInvalid, "unexpected node kind", nodeErr(node))
		}
		if _, dup := channels[node.ID.ID]; dup {
			return nil, WrapError(ErrCodeInvalid, "duplicate node", nodeErr(node))
		}
		channels[node.ID.ID] = struct{}{}

		ch := Channel{
			ID:       node.ID.ID,
			Name:     applyName(node, payload.PropertyChanges),
			Kind:     applyKind(node, payload.PropertyChanges),
			Position: node.Position,
		}
		switch {
		case node.ParentID == root:
		case node.ParentID.Kind == NodeCategory:
			if _, ok := categories[node.ParentID.ID]; !ok {
				return nil, WrapError(ErrCodeInvalid, "unknown parent category", nodeErr(node))
			}
			parent := node.ParentID.ID
			ch.ParentCategoryID = &parent
		default:
			return nil, WrapError(ErrCodeInvalid, "channels cannot contain children", nodeErr(node))
		}
		if !ch.Kind.Valid() {
			return nil, WrapError(ErrCodeInvalid, "unsupported channel type", nodeErr(node))
		}
		tpl.Channels = append(tpl.Channels, ch)
	}

	for _, c := range tpl.Categories {
		if c.Name == "" {
			return nil, NewError(ErrCodeInvalid, "category name is required")
		}
	}
	for _, c := range tpl.Channels {
		if c.Name == "" {
			return nil, NewError(ErrCodeInvalid, "channel name is required")
		}
	}

	tpl.Normalize()
	return tpl, nil
}

// StructureOf serializes a persisted template into the wire payload, without property
// changes. Used server-side when a stored template is duplicated.
func StructureOf(t *Template) StructurePayload {
	clone := t.Clone()
	clone.Normalize()
	root := TemplateRef(clone.ID)

	payload := StructurePayload{PropertyChanges: map[string]PropertyChange{}}
	for _, c := range clone.Categories {
		payload.Nodes = append(payload.Nodes, StructureNode{
			ID:       CategoryRef(c.ID),
			ParentID: root,
			Position: c.Position,
			Name:     c.Name,
		})
	}
	for _, ch := range clone.Channels {
		parent := root
		if ch.ParentCategoryID != nil {
			parent = CategoryRef(*ch.ParentCategoryID)
		}
		payload.Nodes = append(payload.Nodes, StructureNode{
			ID:          ChannelRef(ch.ID),
			ParentID:    parent,
			Position:    ch.Position,
			Name:        ch.Name,
			ChannelType: ch.Kind,
		})
	}
	return payload
}

func structureRoot(templateID int64, nodes []StructureNode) (NodeRef, error) {
	root := TemplateRef(templateID)
	if templateID != 0 {
		for _, node := range nodes {
			if node.ParentID.Kind == NodeTemplate && node.ParentID != root {
				return NodeRef{}, WrapError(ErrCodeInvalid, "node belongs to another template", nodeErr(node))
			}
		}
		return root, nil
	}

	var found NodeRef
	for _, node := range nodes {
		if node.ParentID.Kind != NodeTemplate {
			continue
		}
		if found.IsZero() {
			found = node.ParentID
			continue
		}
		if node.ParentID != found {
			return NodeRef{}, WrapError(ErrCodeInvalid, "mixed template roots", nodeErr(node))
		}
	}
	if found.IsZero() {
		return root, nil
	}
	return found, nil
}

func applyName(node StructureNode, changes map[string]PropertyChange) string {
	if change, ok := changes[node.ID.String()]; ok && change.Name != nil {
		return *change.Name
	}
	return node.Name
}

func applyKind(node StructureNode, changes map[string]PropertyChange) ChannelKind {
	if change, ok := changes[node.ID.String()]; ok && change.ChannelType != nil {
		return *change.ChannelType
	}
	if node.ChannelType == "" {
		return ChannelText
	}
	return node.ChannelType
}

func nodeErr(node StructureNode) error {
	return &nodeError{node: node}
}

type nodeError struct {
	node StructureNode
}

func (e *nodeError) Error() string {
	return "node " + e.node.ID.String() + " under " + e.node.ParentID.String()
}
