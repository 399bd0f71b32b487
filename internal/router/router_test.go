package router_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/guild-designer/api/handler"
	"github.com/fastygo/guild-designer/api/transport"
	"github.com/fastygo/guild-designer/internal/infrastructure/monitor"
	"github.com/fastygo/guild-designer/internal/middleware"
	"github.com/fastygo/guild-designer/internal/router"
	"github.com/fastygo/guild-designer/pkg/httpcontext"
	"github.com/fastygo/guild-designer/repository/memory"
	layoutUC "github.com/fastygo/guild-designer/usecase/layout"
	templateUC "github.com/fastygo/guild-designer/usecase/template"
)

type layouts struct{ n int }

func (l layouts) Size() (int, error) { return l.n, nil }

func newHandler(t *testing.T, opts router.Options) fasthttp.RequestHandler {
	t.Helper()
	adapter := httpcontext.NewAdapter(time.Second)
	templates := templateUC.New(memory.NewTemplateRepository(), memory.NewActiveRepository(), memory.NewSharedRepository(), nil)
	mon := monitor.New(monitor.Deps{Storage: "memory", Layouts: layouts{n: 2}}, time.Hour, nil)
	mon.Start()
	t.Cleanup(mon.Stop)
	require.Eventually(t, func() bool { return mon.IsOnline() }, time.Second, 5*time.Millisecond)

	return router.New(router.Handlers{
		Template: apiHandler.NewTemplateHandler(templates, adapter, nil),
		Layout:   apiHandler.NewLayoutHandler(layoutUC.New(memory.NewLayoutRepository(), nil), adapter, nil),
		Health:   apiHandler.NewHealthHandler(mon, adapter, nil),
	}, opts).Handler
}

func serve(h fasthttp.RequestHandler, method, uri, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.SetBodyString(body)
	}
	h(&ctx)
	return &ctx
}

func TestHealthReportsLayouts(t *testing.T) {
	h := newHandler(t, router.Options{})

	ctx := serve(h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())

	var env struct {
		Data struct {
			Services struct {
				Layouts struct {
					Count int `json:"count"`
				} `json:"layouts"`
			} `json:"services"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	assert.Equal(t, 2, env.Data.Services.Layouts.Count)
}

func TestFixedNamesBesideParameters(t *testing.T) {
	h := newHandler(t, router.Options{})

	ctx := serve(h, http.MethodGet, "/templates/shared", "")
	assert.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"status":"success","data":[]}`, string(ctx.Response.Body()))

	ctx = serve(h, http.MethodPost, "/templates/g1/from_structure", `{"new_name":"Fresh","structure":{"nodes":[]}}`)
	require.Equal(t, http.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	ctx = serve(h, http.MethodGet, "/templates/g1", "")
	var env struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Fresh", env.Data[0].Name)

	ctx = serve(h, http.MethodPost, "/templates/g1/unknown", `{}`)
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())

	ctx = serve(h, http.MethodDelete, "/templates/shared/99", "")
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())
	var errEnv transport.RawEnvelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &errEnv))
	assert.Equal(t, "NOT_FOUND", errEnv.Code)
}

func TestStaticRoutesShadowOnlyExactNames(t *testing.T) {
	h := newHandler(t, router.Options{Metrics: middleware.NewMetrics("designer")})

	ctx := serve(h, http.MethodPost, "/templates/shared-guild/from_structure", `{"new_name":"Mine","structure":{"nodes":[]}}`)
	require.Equal(t, http.StatusCreated, ctx.Response.StatusCode(), string(ctx.Response.Body()))

	ctx = serve(h, http.MethodGet, "/templates/shared-guild", "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	var env struct {
		Data []struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &env))
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Mine", env.Data[0].Name)

	serve(h, http.MethodGet, "/templates/shared", "")
	ctx = serve(h, http.MethodPost, "/templates/g1/unknown", `{}`)
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())
	var errEnv transport.RawEnvelope
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &errEnv))
	assert.Equal(t, "NOT_FOUND", errEnv.Code)

	ctx = serve(h, http.MethodGet, "/metrics", "")
	body := string(ctx.Response.Body())
	assert.Contains(t, body, `designer_http_requests_total{method="GET",route="/templates/shared",status="200"} 1`)
	assert.Contains(t, body, `designer_http_requests_total{method="POST",route="/templates/{guild}/from_structure",status="201"} 1`)
}

func TestBadInputIsRejected(t *testing.T) {
	h := newHandler(t, router.Options{})

	ctx := serve(h, http.MethodPut, "/templates/g1/abc/structure", `{}`)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = serve(h, http.MethodPut, "/templates/g1/1/structure", `{"nodes":`)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())

	ctx = serve(h, http.MethodPost, "/templates/share", `{"guild_id":"g1"}`)
	assert.Equal(t, http.StatusBadRequest, ctx.Response.StatusCode())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHandler(t, router.Options{Metrics: middleware.NewMetrics("designer")})

	serve(h, http.MethodGet, "/templates/g1", "")
	ctx := serve(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.True(t, strings.Contains(body, `designer_http_requests_total{method="GET",route="/templates/{guild}",status="200"} 1`), body)

	ctx = serve(h, http.MethodGet, "/debug/pprof/", "")
	assert.Equal(t, http.StatusNotFound, ctx.Response.StatusCode())
}
