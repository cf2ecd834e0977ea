package main

import (
	"os"

	"pulsechat/internal/config"
	"pulsechat/internal/domain/chat"
	"pulsechat/internal/domain/message"
	"pulsechat/internal/domain/user"
	"pulsechat/internal/events"
	"pulsechat/internal/handler"
	"pulsechat/internal/presence"
	"pulsechat/internal/proxy"
	"pulsechat/internal/repository"
	"pulsechat/internal/server"
	"pulsechat/internal/services"
	"pulsechat/pkg/database"
	"pulsechat/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	envMissing := godotenv.Load() != nil

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	l := logger.New(cfg.Server.Environment)
	logger.SetGlobalLogger(l)
	zap.ReplaceGlobals(l.Logger)
	defer l.Logger.Sync()

	if envMissing {
		l.Warnf("No .env file found, relying on environment variables")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		l.Errorf("Failed to connect to database: %s", err)
		os.Exit(1)
	}

	if err := db.AutoMigrate(
		&user.User{},
		&chat.Chat{},
		&chat.Member{},
		&chat.Sequence{},
		&message.Message{},
		&message.Reaction{},
	); err != nil {
		l.Errorf("Failed to run migrations: %s", err)
		os.Exit(1)
	}

	var bus events.Bus
	var redisBus *events.RedisBus
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		redisBus = events.NewRedisBus(client)
		if err := redisBus.Start(); err != nil {
			l.Errorf("Failed to start redis event bus: %s", err)
			os.Exit(1)
		}
		bus = redisBus
		l.Infof("Event bus: redis (%s)", cfg.Redis.Addr)
	} else {
		bus = events.NewLocalBus()
		l.Infof("Event bus: in-process")
	}

	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	access := proxy.NewAccessControl(chatRepo)

	authService := services.NewAuthService(userRepo, cfg)
	chatService := services.NewChatService(chatRepo, userRepo, access, bus)
	messageService := services.NewMessageService(messageRepo, chatRepo, access, bus)
	typing := presence.NewTypingEngine(bus, cfg.Typing.Timeout)

	hub := server.NewHub(chatRepo, messageService, typing, bus)
	go hub.Run()

	handlers := &server.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Chat:      handler.NewChatHandler(chatService),
		Message:   handler.NewMessageHandler(messageService),
		WebSocket: server.NewWebSocketHandler(hub, authService),
	}

	srv := server.New(cfg, l, db)
	srv.SetupRoutes(handlers, authService)

	if err := srv.Start(); err != nil {
		l.Errorf("Server exited with error: %s", err)
	}

	hub.Stop()
	typing.Shutdown()
	if redisBus != nil {
		if err := redisBus.Stop(); err != nil {
			l.Errorf("Failed to stop redis event bus: %s", err)
		}
	}
}
