// Package router assembles the gin engine and HTTP server of the sessiond
// API.
package router

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitizen-labs/sessiond/internal/config"
	"github.com/bitizen-labs/sessiond/internal/interfaces/http/handlers"
	"github.com/bitizen-labs/sessiond/internal/interfaces/http/middleware"
	"github.com/bitizen-labs/sessiond/pkg/logger"
)

// Router owns the gin engine and the HTTP server lifecycle.
type Router struct {
	engine         *gin.Engine
	config         *config.Config
	logger         logger.Logger
	healthHandler  *handlers.HealthHandler
	sessionHandler *handlers.SessionHandler
	taskHandler    *handlers.TaskHandler
	authMiddleware gin.HandlerFunc
	observability  gin.HandlerFunc
	server         *http.Server
}

// NewRouter creates the router. observability may be nil when metrics and
// tracing are not wired (tests).
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	healthHandler *handlers.HealthHandler,
	sessionHandler *handlers.SessionHandler,
	taskHandler *handlers.TaskHandler,
	authMiddleware gin.HandlerFunc,
	observability gin.HandlerFunc,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	return &Router{
		engine:         gin.New(),
		config:         cfg,
		logger:         log.WithComponent("Router"),
		healthHandler:  healthHandler,
		sessionHandler: sessionHandler,
		taskHandler:    taskHandler,
		authMiddleware: authMiddleware,
		observability:  observability,
	}
}

// SetupRoutes installs the middleware chain and the route table.
func (r *Router) SetupRoutes() {
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	if r.observability != nil {
		r.engine.Use(r.observability)
	}

	r.engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.engine.GET("/health", r.healthHandler.HealthCheck)
	r.engine.GET("/ready", r.healthHandler.ReadinessCheck)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if r.config.Server.PprofEnabled {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/api/v1")
	if r.authMiddleware != nil {
		v1.Use(r.authMiddleware)
	}
	{
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", r.sessionHandler.Issue)
			sessions.GET("/:id", r.sessionHandler.Get)
			sessions.DELETE("/:id", r.sessionHandler.Revoke)
			sessions.PUT("/:id/spend-limits", r.sessionHandler.UpdateSpendLimits)
			sessions.GET("/:id/tasks", r.taskHandler.Logs)
		}
		v1.GET("/principals/:principal_id/sessions", r.sessionHandler.List)
		v1.POST("/tasks/execute", r.taskHandler.Execute)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "the requested resource was not found",
		})
	})
}

// Start runs the HTTP server until it is shut down.
func (r *Router) Start() error {
	r.SetupRoutes()

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	r.server = &http.Server{
		Addr:           addr,
		Handler:        r.engine,
		ReadTimeout:    time.Duration(r.config.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(r.config.Server.WriteTimeout) * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	r.logger.Info(context.Background(), "starting http server", logger.String("address", addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (r *Router) Stop(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	r.logger.Info(ctx, "stopping http server")
	return r.server.Shutdown(ctx)
}

// Engine exposes the engine for tests.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
