package transport

import (
	"encoding/json"

	"github.com/fastygo/guild-designer/domain"
)

// SaveStructureRequest is the body of PUT /templates/{guild}/{id}/structure.
type SaveStructureRequest = domain.StructurePayload

// CreateFromStructureRequest is the body of POST /templates/{guild}/from_structure.
type CreateFromStructureRequest = domain.ForkRequest

type UpdateMetadataRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type ShareRequest struct {
	GuildID    string `json:"guild_id"`
	TemplateID int64  `json:"template_id"`
}

type CopySharedRequest struct {
	GuildID          string `json:"guild_id"`
	SharedTemplateID int64  `json:"shared_template_id"`
	NewName          string `json:"new_name,omitempty"`
}

type SnapshotRequest struct {
	Name      string                  `json:"name"`
	Structure domain.StructurePayload `json:"structure"`
}

type LayoutRequest struct {
	Items json.RawMessage `json:"items"`
}

// TemplateIDResponse is returned by every call that creates or targets one template.
type TemplateIDResponse struct {
	TemplateID int64 `json:"template_id"`
}
