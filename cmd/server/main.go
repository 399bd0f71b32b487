package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/guild-designer/api/handler"
	"github.com/fastygo/guild-designer/internal/config"
	"github.com/fastygo/guild-designer/internal/infrastructure/layoutstore"
	"github.com/fastygo/guild-designer/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/guild-designer/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/guild-designer/internal/infrastructure/redis"
	"github.com/fastygo/guild-designer/internal/middleware"
	"github.com/fastygo/guild-designer/internal/router"
	"github.com/fastygo/guild-designer/internal/services"
	"github.com/fastygo/guild-designer/internal/services/lifecycle"
	"github.com/fastygo/guild-designer/pkg/httpcontext"
	"github.com/fastygo/guild-designer/pkg/logger"
	"github.com/fastygo/guild-designer/repository"
	"github.com/fastygo/guild-designer/repository/memory"
	"github.com/fastygo/guild-designer/repository/postgres"
	redisRepo "github.com/fastygo/guild-designer/repository/redis"
	layoutUC "github.com/fastygo/guild-designer/usecase/layout"
	templateUC "github.com/fastygo/guild-designer/usecase/template"
)

type stores struct {
	templates repository.TemplateRepository
	active    repository.ActiveRepository
	shared    repository.SharedRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	stopListening := manager.Listen(cancel)
	defer stopListening()

	deps := monitor.Deps{Storage: cfg.Storage}
	var repos stores

	switch cfg.Storage {
	case config.StorageMemory:
		zapLogger.Warn("using in-memory template storage, templates are lost on restart")
		repos = stores{
			templates: memory.NewTemplateRepository(),
			active:    memory.NewActiveRepository(),
			shared:    memory.NewSharedRepository(),
		}

	default:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}

		pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		deps.Database = pool

		repos = stores{
			templates: postgres.NewTemplateRepository(pool),
			active:    postgres.NewActiveRepository(pool),
			shared:    postgres.NewSharedRepository(pool),
		}

		if cfg.Redis.URL != "" {
			redisClient, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger)
			if err != nil {
				zapLogger.Fatal("redis connection failed", zap.Error(err))
			}
			manager.RegisterCloser("redis", redisClient)
			deps.Redis = redisClient
			repos.active = redisRepo.NewActiveCache(redisClient, repos.active, cfg.Redis.ActiveTTL, zapLogger)
		}
	}

	layoutStore, err := layoutstore.Open(cfg.Layouts.Path)
	if err != nil {
		zapLogger.Fatal("failed to open layout store", zap.Error(err), zap.String("path", cfg.Layouts.Path))
	}
	manager.RegisterCloser("layouts", layoutStore)
	deps.Layouts = layoutStore

	mon := monitor.New(deps, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	templateUseCase := templateUC.New(repos.templates, repos.active, repos.shared, zapLogger)
	layoutUseCase := layoutUC.New(layoutStore, zapLogger)

	janitor, err := services.NewShareJanitor(templateUseCase, mon, zapLogger, services.JanitorConfig{
		Schedule:  cfg.Sharing.JanitorSchedule,
		Retention: cfg.Sharing.Retention,
	})
	if err != nil {
		zapLogger.Fatal("invalid share janitor schedule", zap.Error(err), zap.String("schedule", cfg.Sharing.JanitorSchedule))
	}
	janitor.Start()
	manager.Register("share_janitor", func(ctx context.Context) error {
		janitor.Stop(ctx)
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Template: apiHandler.NewTemplateHandler(templateUseCase, ctxAdapter, zapLogger),
		Layout:   apiHandler.NewLayoutHandler(layoutUseCase, ctxAdapter, zapLogger),
		Health:   apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	routerOpts := router.Options{
		Auth:        middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger),
		EnablePprof: cfg.HTTP.EnablePprof,
	}
	if cfg.HTTP.EnableMetrics {
		routerOpts.Metrics = middleware.NewMetrics("guild_designer")
	}
	r := router.New(handlers, routerOpts)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started",
			zap.String("address", cfg.Address()),
			zap.String("storage", cfg.Storage),
			zap.Bool("auth", cfg.JWT.Secret != ""))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
