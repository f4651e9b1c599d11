package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"recon-rules/internal/api"
	"recon-rules/internal/cache"
	"recon-rules/internal/config"
	"recon-rules/internal/engine"
	"recon-rules/internal/metrics"
	"recon-rules/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Configuration
		fx.Provide(config.NewConfig),
		fx.Provide(func(cfg *config.Config) *config.MetricsConfig { return &cfg.Metrics }),

		// Logging
		fx.Provide(NewLogger),

		// Database
		fx.Provide(repository.NewPostgresDB),
		fx.Provide(repository.NewRulesRepository),
		fx.Provide(repository.NewLinesRepository),
		fx.Provide(repository.NewReferentialRepository),

		// Cache
		fx.Provide(cache.NewRedisClient),
		fx.Provide(cache.NewReferentialCache),
		fx.Provide(cache.NewEventPublisher),

		// Metrics
		fx.Provide(metrics.NewCollector),

		// Engine
		fx.Provide(engine.NewContextBuilder),
		fx.Provide(engine.NewEvaluator),
		fx.Provide(engine.NewApplier),
		fx.Provide(engine.NewRunner),

		// Interface bindings
		fx.Provide(func(r *repository.RulesRepository) engine.RuleSource { return r }),
		fx.Provide(func(c *cache.ReferentialCache) engine.ReferentialSource { return c }),
		fx.Provide(func(l *repository.LinesRepository) engine.LineSource { return l }),
		fx.Provide(func(p *cache.EventPublisher) engine.Notifier { return p }),
		fx.Provide(func(m *metrics.Collector) engine.RunObserver { return m }),
		fx.Provide(func(m *metrics.Collector) repository.QueryRecorder { return m }),
		fx.Provide(func(m *metrics.Collector) cache.OperationRecorder { return m }),
		fx.Provide(func(r *repository.RulesRepository) api.RuleStore { return r }),
		fx.Provide(func(r *engine.Runner) api.ClassificationService { return r }),

		// API
		fx.Provide(NewGinEngine),
		fx.Provide(api.NewRulesHandler),
		fx.Provide(api.NewHealthHandler),

		// HTTP Server
		fx.Provide(NewHTTPServer),

		// Lifecycle
		fx.Invoke(PrepareStorage),
		fx.Invoke(RegisterRoutes),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if !cfg.Logging.Development {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func NewGinEngine(cfg *config.Config) *gin.Engine {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	return engine
}

func NewHTTPServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
}

// PrepareStorage verifies storage is reachable and the rule schema exists
// before any request is served
func PrepareStorage(lc fx.Lifecycle, rulesRepo *repository.RulesRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := rulesRepo.EnsureSchema(ctx); err != nil {
				logger.Error("rule storage is not ready", zap.Error(err))
				return err
			}
			logger.Info("rule storage ready")
			return nil
		},
	})
}

func RegisterRoutes(
	engine *gin.Engine,
	collector *metrics.Collector,
	rulesHandler *api.RulesHandler,
	healthHandler *api.HealthHandler,
) {
	// Request metrics must be installed before any route is registered
	engine.Use(collector.GinMiddleware())

	// Health endpoints
	engine.GET("/health", healthHandler.Health)
	engine.GET("/health/ready", healthHandler.Ready)
	engine.GET("/health/live", healthHandler.Live)

	// Metrics endpoint
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	// API v1 routes
	v1 := engine.Group("/api/v1")
	{
		// Rule management
		v1.GET("/rules", rulesHandler.List)
		v1.GET("/rules/:ruleId", rulesHandler.Get)
		v1.PUT("/rules/:ruleId", rulesHandler.Upsert)
		v1.DELETE("/rules/:ruleId", rulesHandler.Delete)
		v1.POST("/rules/storage", rulesHandler.PrepareStorage)
		v1.POST("/rules/seed", rulesHandler.SeedDefaults)

		// Classification runs
		v1.POST("/rules/run", rulesHandler.RunNow)
		v1.GET("/rules/debug/:lineId", rulesHandler.Debug)
	}
}

func StartServer(
	lc fx.Lifecycle,
	server *http.Server,
	cfg *config.Config,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting reconciliation rules service",
				zap.String("addr", server.Addr))

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("failed to start server", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down reconciliation rules service")

			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()

			return server.Shutdown(shutdownCtx)
		},
	})

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("received shutdown signal")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}()
}
