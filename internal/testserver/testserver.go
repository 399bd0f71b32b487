// Package testserver runs the real router over memory repositories on an in-memory
// listener, for tests that need a template server.
package testserver

import (
	"net"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/guild-designer/api/client"
	apiHandler "github.com/fastygo/guild-designer/api/handler"
	"github.com/fastygo/guild-designer/internal/infrastructure/monitor"
	"github.com/fastygo/guild-designer/internal/middleware"
	"github.com/fastygo/guild-designer/internal/router"
	"github.com/fastygo/guild-designer/pkg/httpcontext"
	"github.com/fastygo/guild-designer/repository"
	"github.com/fastygo/guild-designer/repository/memory"
	layoutUC "github.com/fastygo/guild-designer/usecase/layout"
	templateUC "github.com/fastygo/guild-designer/usecase/template"
)

// Server is a running in-memory template server.
type Server struct {
	Templates *templateUC.UseCase
	Active    repository.ActiveRepository
	Metrics   *middleware.Metrics

	ln *fasthttputil.InmemoryListener
}

// Options tweaks the server; the zero value serves without auth.
type Options struct {
	JWTSecret string
}

// Start serves until the test ends.
func Start(t testing.TB, opts Options) *Server {
	t.Helper()

	active := memory.NewActiveRepository()
	templates := templateUC.New(memory.NewTemplateRepository(), active, memory.NewSharedRepository(), nil)
	layouts := layoutUC.New(memory.NewLayoutRepository(), nil)
	adapter := httpcontext.NewAdapter(5 * time.Second)

	mon := monitor.New(monitor.Deps{Storage: "memory", Layouts: layoutCount{}}, time.Hour, nil)
	metrics := middleware.NewMetrics("designer_test")

	r := router.New(router.Handlers{
		Template: apiHandler.NewTemplateHandler(templates, adapter, nil),
		Layout:   apiHandler.NewLayoutHandler(layouts, adapter, nil),
		Health:   apiHandler.NewHealthHandler(mon, adapter, nil),
	}, router.Options{
		Auth:    middleware.JWTAuth(opts.JWTSecret, "", nil),
		Metrics: metrics,
	})

	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: r.Handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		_ = ln.Close()
	})

	return &Server{Templates: templates, Active: active, Metrics: metrics, ln: ln}
}

// URL is the base URL clients should use; any host reaches the listener through Dial.
const URL = "http://designer.test"

// Dial connects to the server. It fits fasthttp.DialFunc.
func (s *Server) Dial(string) (net.Conn, error) {
	return s.ln.Dial()
}

// Client returns a client dialing this server.
func (s *Server) Client(token string) *client.Client {
	return client.New(client.Options{
		BaseURL: URL,
		Token:   token,
		Timeout: 5 * time.Second,
		Dial:    s.Dial,
	})
}

type layoutCount struct{}

func (layoutCount) Size() (int, error) { return 0, nil }
