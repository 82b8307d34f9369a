package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/libren/support-chat/internal/assign"
	"github.com/libren/support-chat/internal/cache"
	"github.com/libren/support-chat/internal/config"
	"github.com/libren/support-chat/internal/events"
	"github.com/libren/support-chat/internal/handler"
	"github.com/libren/support-chat/internal/hub"
	"github.com/libren/support-chat/internal/registry"
	"github.com/libren/support-chat/internal/service"
	"github.com/libren/support-chat/internal/store"
	"github.com/libren/support-chat/pkg/database"
	"github.com/libren/support-chat/pkg/jwt"
	"github.com/libren/support-chat/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting support-chat service")

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	chatStore := store.NewGormStore(db)
	if err := chatStore.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Initialize history cache
	var msgCache cache.MessageCache = cache.NewNoopCache()
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisMessageCache(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		msgCache = redisCache
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
	}
	defer msgCache.Close()

	// Initialize event publisher
	var publisher events.Publisher = events.NewNoopPublisher()
	if cfg.Events.Enabled {
		amqpPub, err := events.NewAMQPPublisher(cfg.Events)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to rabbitmq")
		}
		publisher = amqpPub
		logger.Info().Str("exchange", cfg.Events.Exchange).Msg("connected to rabbitmq")
	}
	defer publisher.Close()

	// Initialize hub
	wsHub := hub.NewHub(cfg.WebSocket)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go wsHub.Run(ctx)

	// Wire the application
	sessionRegistry := registry.New(chatStore, msgCache, wsHub)
	coordinator := assign.NewCoordinator(chatStore, sessionRegistry)
	chatSvc := service.NewChatService(chatStore, sessionRegistry, coordinator, cfg.Redis.TTL, publisher)

	jwtManager := jwt.NewManager([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	// Setup router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), log.GinMiddleware(logger))

	router.GET("/health", handler.Health)

	api := router.Group("/api/v1", handler.Auth(jwtManager))
	handler.NewHTTPHandler(chatSvc).RegisterRoutes(api)
	api.GET("/ws", handler.NewWSHandler(chatSvc, wsHub, cfg.WebSocket).Serve)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("support-chat service stopped")
}
