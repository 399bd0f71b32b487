package router

import (
	"net/http"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/pprofhandler"

	apiHandler "github.com/fastygo/guild-designer/api/handler"
	"github.com/fastygo/guild-designer/api/transport"
	"github.com/fastygo/guild-designer/internal/middleware"
)

type Handlers struct {
	Template *apiHandler.TemplateHandler
	Layout   *apiHandler.LayoutHandler
	Health   *apiHandler.HealthHandler
}

// Options toggles the operational endpoints. Metrics nil disables /metrics.
type Options struct {
	Auth        middleware.Middleware
	Metrics     *middleware.Metrics
	EnablePprof bool
}

func New(handlers Handlers, opts Options) *router.Router {
	r := router.New()
	auth := opts.Auth
	if auth == nil {
		auth = func(next fasthttp.RequestHandler) fasthttp.RequestHandler { return next }
	}
	route := func(pattern string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return opts.Metrics.Instrument(pattern, auth(h))
	}

	r.GET("/health", opts.Metrics.Instrument("/health", handlers.Health.Check))
	if opts.Metrics != nil {
		r.GET("/metrics", opts.Metrics.Handler())
	}
	if opts.EnablePprof {
		r.ANY("/debug/pprof/{profile:*}", pprofhandler.PprofHandler)
	}

	t := handlers.Template

	// Static segments win over {guild} and {id}, so these names are reserved.
	r.GET("/templates/shared", route("/templates/shared", t.ListShared))
	r.POST("/templates/share", route("/templates/share", t.Share))
	r.POST("/templates/copy_shared", route("/templates/copy_shared", t.CopyShared))
	r.DELETE("/templates/shared/{id}", route("/templates/shared/{id}", t.DeleteShared))
	r.POST("/templates/{guild}/from_structure", route("/templates/{guild}/from_structure", t.CreateFromStructure))
	r.POST("/templates/{guild}/snapshot", route("/templates/{guild}/snapshot", t.CaptureSnapshot))

	r.GET("/templates/{guild}", route("/templates/{guild}", t.List))
	r.GET("/templates/{guild}/{id}", route("/templates/{guild}/{id}", t.Get))
	r.PATCH("/templates/{guild}/{id}", route("/templates/{guild}/{id}", t.UpdateMetadata))
	r.DELETE("/templates/{guild}/{id}", route("/templates/{guild}/{id}", t.Delete))
	r.PUT("/templates/{guild}/{id}/structure", route("/templates/{guild}/{id}/structure", t.SaveStructure))
	r.POST("/templates/{guild}/{id}/activate", route("/templates/{guild}/{id}/activate", t.Activate))

	l := handlers.Layout
	r.GET("/layouts/{guild}/{page}", route("/layouts/{guild}/{page}", l.Get))
	r.PUT("/layouts/{guild}/{page}", route("/layouts/{guild}/{page}", l.Put))
	r.DELETE("/layouts/{guild}/{page}", route("/layouts/{guild}/{page}", l.Delete))

	r.NotFound = notFound
	r.HandleMethodNotAllowed = false
	return r
}

func notFound(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.SetContentType("application/json")
	ctx.SetStatusCode(http.StatusNotFound)
	ctx.SetBodyString(transport.NewError("NOT_FOUND", "route not found", nil).String())
}
