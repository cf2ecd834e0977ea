package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulsechat/internal/config"
	"pulsechat/internal/handler"
	"pulsechat/internal/middleware"
	"pulsechat/internal/services"
	"pulsechat/internal/transport/httpdto"
	"pulsechat/pkg/database"
	"pulsechat/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	db         *gorm.DB
}

type Handlers struct {
	Auth      *handler.AuthHandler
	Chat      *handler.ChatHandler
	Message   *handler.MessageHandler
	WebSocket *WebSocketHandler
}

func New(cfg *config.Config, l *logger.Logger, db *gorm.DB) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
		db:     db,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(s.db); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	auth := s.engine.Group("/v1/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
	}

	authed := s.engine.Group("/v1", middleware.AuthMiddleware(authService))
	{
		authed.GET("/users/me", handlers.Auth.Me)

		authed.POST("/chats/direct", handlers.Chat.CreateDirect)
		authed.POST("/chats/group", handlers.Chat.CreateGroup)
		authed.GET("/chats", handlers.Chat.List)
		authed.GET("/chats/:id", handlers.Chat.Get)
		authed.PATCH("/chats/:id", handlers.Chat.Rename)
		authed.POST("/chats/:id/members", handlers.Chat.AddMembers)
		authed.POST("/chats/:id/admins", handlers.Chat.PromoteAdmin)
		authed.DELETE("/chats/:id/members/:userId", handlers.Chat.RemoveMember)

		authed.GET("/chats/:id/messages", handlers.Message.History)
		authed.POST("/chats/:id/messages", handlers.Message.Send)
		authed.POST("/messages/:id/reactions", handlers.Message.ToggleReaction)
		authed.GET("/messages/:id/reactions", handlers.Message.Reactions)
	}

	s.engine.GET("/ws", handlers.WebSocket.Handle)
}

func (s *Server) Start() error {
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.Server.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	<-quit

	s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
