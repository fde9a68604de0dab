package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scopedrbac/internal/rbac/adapter"
	"scopedrbac/internal/rbac/assignment"
	"scopedrbac/internal/rbac/catalog"
	"scopedrbac/internal/rbac/config"
	"scopedrbac/internal/rbac/handler"
	"scopedrbac/internal/rbac/metrics"
	"scopedrbac/internal/rbac/policy"
	"scopedrbac/internal/rbac/repository"
	"scopedrbac/internal/rbac/resolver"
	"scopedrbac/internal/rbac/rolegraph"
	"scopedrbac/internal/rbac/router"
	"scopedrbac/internal/rbac/scheduler"
	"scopedrbac/internal/rbac/util"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		util.InitLogger()
		util.GetLogger().Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Init Logger
	util.InitLogger(
		util.WithLevel(cfg.LogLevel),
		util.WithFormat(cfg.LogFormat),
		util.WithAttr(slog.String("service", "scopedrbac"), slog.String("env", cfg.AppEnv)),
	)
	logger := util.GetLogger()

	// 3. Init storage
	var (
		repo   repository.Repository
		client *mongo.Client
	)
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("Using in-memory storage; state is lost on exit")
		repo = repository.NewMemoryRepository()
	default:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		cancel()
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		mongoRepo := repository.NewMongoRepository(client.Database(cfg.DBName), repository.CollectionNames{
			Permissions: cfg.PermissionsCollection,
			Roles:       cfg.RolesCollection,
			Assignments: cfg.AssignmentsCollection,
		})
		if err := mongoRepo.Ping(context.Background()); err != nil {
			logger.Error("MongoDB is not reachable", "error", err)
			os.Exit(1)
		}
		// Uniqueness of active assignments relies on these indexes.
		if err := mongoRepo.EnsureIndexes(context.Background()); err != nil {
			logger.Error("Failed to ensure indexes", "error", err)
			os.Exit(1)
		}
		repo = mongoRepo
	}

	// 4. Init Layers
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	cat := catalog.New(repo, catalog.Options{
		CacheSize: cfg.DefinitionCacheSize,
		CacheTTL:  cfg.DefinitionCacheTTL,
		Logger:    logger.With("component", "catalog"),
	})
	graph := rolegraph.New(repo, cat, rolegraph.Options{
		CacheSize: cfg.DefinitionCacheSize,
		CacheTTL:  cfg.DefinitionCacheTTL,
		Logger:    logger.With("component", "rolegraph"),
	})
	assignments := assignment.NewService(repo, graph, cat, assignment.Options{
		Logger:  logger.With("component", "assignment"),
		Metrics: m,
	})
	res := resolver.New(assignments, graph, cat, resolver.Options{
		Logger:       logger.With("component", "resolver"),
		Metrics:      m,
		CheckTimeout: cfg.CheckTimeout,
		Invalidators: []resolver.Invalidator{cat, graph},
	})

	if cfg.SeedOnStart {
		boot := policy.NewBootstrapper(cat, graph, assignments, logger.With("component", "bootstrap"))
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_, err := boot.Seed(ctx)
		if err == nil {
			err = boot.EnsureSuperAdmin(ctx, cfg.BootstrapAdmin)
		}
		cancel()
		if err != nil {
			logger.Error("Failed to seed RBAC definitions", "error", err)
			os.Exit(1)
		}
	}

	sweeps := scheduler.New(assignments, scheduler.Options{
		Schedule: cfg.SweepSchedule,
		Timeout:  cfg.SweepTimeout,
		Logger:   logger.With("component", "scheduler"),
	})
	if err := sweeps.Start(); err != nil {
		logger.Error("Failed to start sweep scheduler", "error", err)
		os.Exit(1)
	}

	engine, err := policy.NewEngine(res)
	if err != nil {
		logger.Error("Failed to load API policies", "error", err)
		os.Exit(1)
	}

	h := handler.NewHandler(handler.Deps{
		Catalog:     cat,
		Roles:       graph,
		Assignments: assignments,
		Resolver:    res,
		Sweeper:     sweeps,
		Relations:   adapter.NewLocalRelationAdapter(assignments),
		Store:       repo,
		Logger:      logger.With("component", "http"),
	})

	// 5. Init Echo & Routes
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogRequestID: true,
		LogLatency:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"request_id", v.RequestID,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	router.RegisterRoutes(e, h, engine, m)

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      e,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "storage", cfg.Storage, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("shutting down the server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server Shutdown Failed", "error", err)
	}
	sweeps.Stop(ctx)

	if client != nil {
		if err := client.Disconnect(ctx); err != nil {
			logger.Error("Failed to disconnect DB", "error", err)
		}
	}

	logger.Info("Server exited properly")
}
