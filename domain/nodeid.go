package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeKind discriminates the three node flavours of a template tree.
type NodeKind string

const (
	NodeTemplate NodeKind = "template"
	NodeCategory NodeKind = "category"
	NodeChannel  NodeKind = "channel"
)

const provisionalMarker = "new_"

// NodeRef identifies a node of the template tree. Negative IDs are provisional: the node was
// created client-side and has no server identity yet. A template root with ID zero belongs
// to a template that was never saved.
type NodeRef struct {
	Kind NodeKind
	ID   int64
}

func TemplateRef(id int64) NodeRef { return NodeRef{Kind: NodeTemplate, ID: id} }
func CategoryRef(id int64) NodeRef { return NodeRef{Kind: NodeCategory, ID: id} }
func ChannelRef(id int64) NodeRef  { return NodeRef{Kind: NodeChannel, ID: id} }

// IsZero reports whether the reference is unset.
func (r NodeRef) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

// Provisional reports whether the node was created client-side and never saved.
func (r NodeRef) Provisional() bool {
	return r.ID < 0
}

// String renders the canonical wire form: "category_12", "channel_new_3", "template_5".
func (r NodeRef) String() string {
	if r.IsZero() {
		return ""
	}
	if r.ID < 0 {
		return fmt.Sprintf("%s_%s%d", r.Kind, provisionalMarker, -r.ID)
	}
	return fmt.Sprintf("%s_%d", r.Kind, r.ID)
}

// ParseNodeRef is the inverse of NodeRef.String.
func ParseNodeRef(raw string) (NodeRef, error) {
	kind, rest, ok := strings.Cut(raw, "_")
	if !ok || rest == "" {
		return NodeRef{}, WrapError(ErrCodeInvalid, "malformed node id", fmt.Errorf("%q", raw))
	}

	ref := NodeRef{Kind: NodeKind(kind)}
	switch ref.Kind {
	case NodeTemplate, NodeCategory, NodeChannel:
	default:
		return NodeRef{}, WrapError(ErrCodeInvalid, "unknown node kind", fmt.Errorf("%q", raw))
	}

	provisional := strings.HasPrefix(rest, provisionalMarker)
	if provisional {
		if ref.Kind == NodeTemplate {
			return NodeRef{}, WrapError(ErrCodeInvalid, "template ids cannot be provisional", fmt.Errorf("%q", raw))
		}
		rest = strings.TrimPrefix(rest, provisionalMarker)
	}

	// template_0 names the root of a template that was never saved.
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id < 0 || (id == 0 && ref.Kind != NodeTemplate) {
		return NodeRef{}, WrapError(ErrCodeInvalid, "malformed node id", fmt.Errorf("%q", raw))
	}
	if provisional {
		id = -id
	}
	ref.ID = id
	return ref, nil
}

func (r NodeRef) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *NodeRef) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = NodeRef{}
		return nil
	}
	parsed, err := ParseNodeRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
