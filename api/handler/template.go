package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/api/transport"
	"github.com/fastygo/guild-designer/domain"
	"github.com/fastygo/guild-designer/pkg/httpcontext"
	templateUC "github.com/fastygo/guild-designer/usecase/template"
)

type TemplateHandler struct {
	baseHandler
	uc *templateUC.UseCase
}

func NewTemplateHandler(uc *templateUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TemplateHandler {
	return &TemplateHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary List guild templates
// @Tags templates
// @Router /templates/{guild} [get]
func (h *TemplateHandler) List(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	templates, err := h.uc.List(stdCtx, guildID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, templates)
}

// @Summary Get a template with its structure
// @Tags templates
// @Router /templates/{guild}/{id} [get]
func (h *TemplateHandler) Get(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	tpl, err := h.uc.Get(stdCtx, guildID, id)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, tpl)
}

// @Summary Replace a template structure
// @Tags templates
// @Router /templates/{guild}/{id}/structure [put]
func (h *TemplateHandler) SaveStructure(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}
	var req transport.SaveStructureRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.uc.SaveStructure(stdCtx, guildID, id, req)
	if err != nil {
		if domain.IsPermissionDenied(err) {
			h.log(stdCtx).Info("structure save refused", zap.String("guild_id", guildID), zap.Int64("template_id", id))
		}
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, res)
}

// @Summary Update template name and description
// @Tags templates
// @Router /templates/{guild}/{id} [patch]
func (h *TemplateHandler) UpdateMetadata(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}
	var req transport.UpdateMetadataRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	tpl, err := h.uc.UpdateMetadata(stdCtx, guildID, id, req.Name, req.Description)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, tpl)
}

// @Summary Fork a structure into a new template
// @Tags templates
// @Router /templates/{guild}/from_structure [post]
func (h *TemplateHandler) CreateFromStructure(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}
	var req transport.CreateFromStructureRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	id, err := h.uc.CreateFromStructure(stdCtx, guildID, req)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, transport.TemplateIDResponse{TemplateID: id})
}

// @Summary Capture the guild's initial snapshot
// @Tags templates
// @Router /templates/{guild}/snapshot [post]
func (h *TemplateHandler) CaptureSnapshot(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}
	var req transport.SnapshotRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	id, err := h.uc.CaptureSnapshot(stdCtx, guildID, req.Name, req.Structure)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, transport.TemplateIDResponse{TemplateID: id})
}

// @Summary Make a template the guild's active one
// @Tags templates
// @Router /templates/{guild}/{id}/activate [post]
func (h *TemplateHandler) Activate(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Activate(stdCtx, guildID, id); err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, transport.TemplateIDResponse{TemplateID: id})
}

// @Summary Delete a template
// @Tags templates
// @Router /templates/{guild}/{id} [delete]
func (h *TemplateHandler) Delete(ctx *fasthttp.RequestCtx) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return
	}
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Delete(stdCtx, guildID, id); err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.SetStatusCode(http.StatusNoContent)
}

// @Summary List shared templates
// @Tags shared
// @Router /templates/shared [get]
func (h *TemplateHandler) ListShared(ctx *fasthttp.RequestCtx) {
	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	shared, err := h.uc.ListShared(stdCtx)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, shared)
}

// @Summary Share a guild template
// @Tags shared
// @Router /templates/share [post]
func (h *TemplateHandler) Share(ctx *fasthttp.RequestCtx) {
	var req transport.ShareRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.GuildID == "" || req.TemplateID <= 0 {
		h.respondError(ctx, domain.NewError(domain.ErrCodeInvalid, "guild_id and template_id are required"))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	res, err := h.uc.Share(stdCtx, req.GuildID, req.TemplateID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, res)
}

// @Summary Copy a shared template into a guild
// @Tags shared
// @Router /templates/copy_shared [post]
func (h *TemplateHandler) CopyShared(ctx *fasthttp.RequestCtx) {
	var req transport.CopySharedRequest
	if !h.decode(ctx, &req) {
		return
	}
	if req.GuildID == "" || req.SharedTemplateID <= 0 {
		h.respondError(ctx, domain.NewError(domain.ErrCodeInvalid, "guild_id and shared_template_id are required"))
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	id, err := h.uc.CopyShared(stdCtx, req.GuildID, req.SharedTemplateID, req.NewName)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, transport.TemplateIDResponse{TemplateID: id})
}

// @Summary Delete a shared template
// @Tags shared
// @Router /templates/shared/{id} [delete]
func (h *TemplateHandler) DeleteShared(ctx *fasthttp.RequestCtx) {
	id, ok := h.pathID(ctx, "id")
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.DeleteShared(stdCtx, id); err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.SetStatusCode(http.StatusNoContent)
}
