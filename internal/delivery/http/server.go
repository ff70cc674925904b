package http

import (
	"context"
	"github.com/basit-dev-64/notification-system-backend/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"net/http"
	"time"
)

// HealthCheck reports whether the document store is reachable.
type HealthCheck func(ctx context.Context) error

// Server is a wrapper for the HTTP server.
type Server struct {
	*http.Server
	logger zerolog.Logger
}

// NewServer creates and configures a new Gin server.
func NewServer(cfg *config.Config, handlers *Handlers, health HealthCheck, logger *zerolog.Logger) (*Server, error) {
	log := logger.With().Str("layer", "http_server").Logger()

	log.Info().Str("mode", cfg.HTTP.GinMode).Msg("setting gin mode")
	gin.SetMode(cfg.HTTP.GinMode)

	if err := RegisterValidators(); err != nil {
		return nil, err
	}

	router := NewRouter(handlers, health)

	server := &http.Server{
		Addr:              cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}

	return &Server{server, log}, nil
}

// NewRouter builds the gin engine with middleware, API routes and the health endpoint.
func NewRouter(handlers *Handlers, health HealthCheck) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	handlers.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		mongoStatus := "ok"
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				mongoStatus = err.Error()
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "mongo": mongoStatus})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mongo": mongoStatus})
	})

	return router
}
