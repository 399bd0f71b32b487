package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/guild-designer/api/transport"
	"github.com/fastygo/guild-designer/pkg/httpcontext"
	layoutUC "github.com/fastygo/guild-designer/usecase/layout"
)

type LayoutHandler struct {
	baseHandler
	uc *layoutUC.UseCase
}

func NewLayoutHandler(uc *layoutUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *LayoutHandler {
	return &LayoutHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

func (h *LayoutHandler) keys(ctx *fasthttp.RequestCtx) (string, string, bool) {
	guildID, ok := h.pathString(ctx, "guild")
	if !ok {
		return "", "", false
	}
	page, ok := h.pathString(ctx, "page")
	return guildID, page, ok
}

// @Summary Get a page layout
// @Tags layouts
// @Router /layouts/{guild}/{page} [get]
func (h *LayoutHandler) Get(ctx *fasthttp.RequestCtx) {
	guildID, page, ok := h.keys(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	layout, err := h.uc.Get(stdCtx, guildID, page)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, layout)
}

// @Summary Store a page layout
// @Tags layouts
// @Router /layouts/{guild}/{page} [put]
func (h *LayoutHandler) Put(ctx *fasthttp.RequestCtx) {
	guildID, page, ok := h.keys(ctx)
	if !ok {
		return
	}
	var req transport.LayoutRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	layout, err := h.uc.Put(stdCtx, guildID, page, req.Items)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, layout)
}

// @Summary Delete a page layout
// @Tags layouts
// @Router /layouts/{guild}/{page} [delete]
func (h *LayoutHandler) Delete(ctx *fasthttp.RequestCtx) {
	guildID, page, ok := h.keys(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	if err := h.uc.Delete(stdCtx, guildID, page); err != nil {
		h.respondError(ctx, err)
		return
	}
	ctx.SetStatusCode(http.StatusNoContent)
}
