package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/service"
	"github.com/ifuryst/cadence/pkg/clock"
)

type Server struct {
	Config   *config.Config
	DB       *gorm.DB
	Router   *gin.Engine
	Logger   *zap.Logger
	Server   *http.Server
	Services *service.Services
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	services, err := service.NewServices(cfg, db, clock.System(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return New(cfg, db, services, logger), nil
}

// New builds a server around already wired services.
func New(cfg *config.Config, db *gorm.DB, services *service.Services, logger *zap.Logger) *Server {
	gin.SetMode(cfg.Server.Mode)

	srv := &Server{
		Config:   cfg,
		DB:       db,
		Router:   gin.New(),
		Logger:   logger,
		Services: services,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.Router.Use(gin.Recovery())

	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.Logger.Info("HTTP request",
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("error", c.Errors.ByType(gin.ErrorTypePrivate).String()))
	})

	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+service.TOTPHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   s.Services.Clock.Now().Unix(),
		})
	})

	requireTOTP := s.Services.Auth.RequireTOTP()

	api := s.Router.Group("/api/v1")
	{
		definitions := api.Group("/definitions")
		{
			definitions.GET("", s.handleListDefinitions)
			definitions.GET("/:id", s.handleGetDefinition)
			definitions.PUT("/:id", requireTOTP, s.handlePutDefinition)
			definitions.GET("/:id/next", s.handleNextOccurrence)
			definitions.GET("/:id/occurrences", s.handleOccurrences)
		}

		q := api.Group("/queue")
		{
			q.GET("", s.handleListQueue)
			q.GET("/summary", s.handleQueueSummary)
			q.POST("/build", requireTOTP, s.handleBuildQueue)
			q.POST("/:id/process", requireTOTP, s.handleProcessEntry)
			q.POST("/:id/retry", requireTOTP, s.handleRetryEntry)
		}

		api.GET("/platforms", s.handleListPlatforms)
		api.GET("/errors", s.handleRecentErrors)
		api.POST("/errors/:id/resolve", requireTOTP, s.handleResolveError)
	}
}

func (s *Server) Start(ctx context.Context) error {
	if err := s.Services.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.Services.Stats.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.Services.Scheduler.Stop()
	s.Services.Stats.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
