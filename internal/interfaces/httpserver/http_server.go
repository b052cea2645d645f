// Package httpserver wires the gin engine: public health and metrics routes,
// the inbound webhook, and the JWT-protected admin API.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	mailagentdocs "mailagent/docs/swagger"
	"mailagent/internal/config"
	"mailagent/internal/domain/agent"
	"mailagent/internal/domain/tokenusage"
	"mailagent/internal/infrastructure/auth"
	"mailagent/internal/infrastructure/objectstore"
	"mailagent/internal/infrastructure/queue"
	"mailagent/internal/interfaces/httpserver/handlers"
	"mailagent/internal/interfaces/httpserver/middlewares"
	"mailagent/internal/interfaces/httpserver/routes"
)

// readinessTimeout bounds the dependency probes behind /readyz.
const readinessTimeout = 5 * time.Second

// HttpServer wraps the gin engine with graceful shutdown helpers.
type HttpServer struct {
	cfg         *config.Config
	engine      *gin.Engine
	log         zerolog.Logger
	handlerProv *handlers.Provider
	routeProv   *routes.Provider
	auth        *auth.Validator
}

// New constructs the HTTP server with default middleware and routes.
func New(
	cfg *config.Config,
	log zerolog.Logger,
	agentService agent.Service,
	usageService *tokenusage.Service,
	jobs queue.JobQueue,
	db *gorm.DB,
	store *objectstore.S3Store,
	authValidator *auth.Validator,
) *HttpServer {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	mailagentdocs.SwaggerInfo.BasePath = "/"

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middlewares.RequestID())
	engine.Use(middlewares.Metrics())
	engine.Use(middlewares.RequestLogger(log))

	handlerProvider := handlers.NewProvider(
		agentService,
		usageService,
		jobs,
		attachmentDownloader(store),
		cfg.MailroomWebhookSecret,
		log,
	)
	routeProvider := routes.NewProvider(handlerProvider, authValidator)

	// Register public routes (health checks, metrics, swagger) without
	// authentication
	registerPublicRoutes(engine, cfg, db, store, authValidator)

	// Register webhook and admin API routes
	routeProvider.Register(engine)

	return &HttpServer{
		cfg:         cfg,
		engine:      engine,
		log:         log,
		handlerProv: handlerProvider,
		routeProv:   routeProvider,
		auth:        authValidator,
	}
}

// Engine exposes the router, mainly for tests.
func (s *HttpServer) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP listener and handles graceful shutdown via context
// cancellation.
func (s *HttpServer) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr()).Msg("HTTP server listening")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("HTTP server error")
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("Context cancelled, shutting down HTTP server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func registerPublicRoutes(
	engine *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	store *objectstore.S3Store,
	authValidator *auth.Validator,
) {
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": cfg.ServiceName,
			"status":  "ok",
		})
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	engine.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
		defer cancel()

		checks := gin.H{}
		ready := true

		if sqlDB, err := db.DB(); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else {
			checks["database"] = "ok"
		}

		if store != nil {
			if err := store.Health(ctx); err != nil {
				checks["objectstore"] = err.Error()
				ready = false
			} else {
				checks["objectstore"] = "ok"
			}
		}

		if authValidator != nil && !authValidator.Ready() {
			checks["auth"] = "initializing"
			ready = false
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
	})

	// Prometheus metrics endpoint
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// attachmentDownloader hides a nil or disabled store behind the handler's
// interface. A typed nil inside a non-nil interface would defeat the
// handler's nil check.
func attachmentDownloader(store *objectstore.S3Store) handlers.AttachmentDownloader {
	if store == nil {
		return nil
	}
	return store
}
