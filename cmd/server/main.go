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

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tullo/livechat/config"
	"github.com/tullo/livechat/internal/auth"
	"github.com/tullo/livechat/internal/cache"
	"github.com/tullo/livechat/internal/chat"
	"github.com/tullo/livechat/internal/database"
	"github.com/tullo/livechat/internal/demo"
	"github.com/tullo/livechat/internal/handlers"
	"github.com/tullo/livechat/internal/logger"
	"github.com/tullo/livechat/internal/middleware"
	"github.com/tullo/livechat/internal/models"
	"github.com/tullo/livechat/internal/repository"
	"github.com/tullo/livechat/internal/session"
	"github.com/tullo/livechat/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Service: "livechat",
		Env:     cfg.Server.Env,
		Level:   cfg.Log.Level,
		Backend: logger.Backend(cfg.Log.Backend),
	})
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(db.DB, log); err != nil {
		return err
	}

	// Posting window: shared in Redis when available, postgres otherwise
	var limiter chat.RateLimiter = repository.NewRateLimitRepository(db, cfg.RateLimit.Window, cfg.RateLimit.MaxMessages)
	if cfg.Redis.Enabled {
		redis, err := cache.NewRedisClient(cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("running without redis, rate limit window kept in postgres", "error", err)
		} else {
			defer redis.Close()
			limiter = cache.NewRateLimiter(redis, cfg.RateLimit.Window, cfg.RateLimit.MaxMessages)
		}
	}

	service := chat.NewService(chat.Deps{
		Repo:        repository.NewChatStore(db),
		RateLimiter: limiter,
		Queue:       repository.NewModerationRepository(db),
		Audit:       repository.NewAuditRepository(db),
		Tx:          db,
		Log:         log.With("component", "chat"),
	})
	lobby, err := service.EnsureRoom(ctx, models.RoomLobby, uuid.Nil)
	if err != nil {
		return err
	}
	log.Info("lobby ready", "room_id", lobby.ID)

	registry := session.NewRegistry(log.With("component", "session"))
	defer registry.Close()
	go registry.RunSweeper(ctx, cfg.Session.SweepInterval, cfg.Session.IdleTTL)

	actions := demo.NewActions(registry, cfg.Demo.GuardedWork, cfg.Demo.CancellableDelay, log.With("component", "demo"))

	jwtService := auth.NewJWTService(cfg.Session.Secret, cfg.Session.MaxAge)

	requestLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond)
	go requestLimiter.Cleanup(ctx, time.Minute, 10*time.Minute)

	chatHandler := handlers.NewChatHandler(service, registry, log)
	demoHandler := handlers.NewDemoHandler(ctx, actions, log)
	streamHandler := websocket.NewHandler(registry, cfg.CORS.AllowedOrigins, log)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log.With("component", "http")))
	router.Use(middleware.CORSMiddleware(cfg.CORS.AllowedOrigins))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	live := router.Group("/")
	live.Use(middleware.SessionMiddleware(jwtService, cfg.Session.CookieName, cfg.IsProduction(), log))
	{
		live.GET("/events", streamHandler.HandleSSE)
		live.GET("/ws", streamHandler.HandleWebSocket)
	}

	api := router.Group("/api")
	api.Use(middleware.SessionMiddleware(jwtService, cfg.Session.CookieName, cfg.IsProduction(), log))
	api.Use(middleware.RateLimitMiddleware(requestLimiter))
	{
		api.POST("/rooms", chatHandler.CreateRoom)
		api.POST("/rooms/:id/join", chatHandler.JoinRoom)
		api.GET("/rooms/:id/messages", chatHandler.GetMessages)
		api.POST("/rooms/:id/messages", chatHandler.SendMessage)

		api.GET("/moderation", chatHandler.GetModerationQueue)
		api.POST("/moderation/:id", chatHandler.Moderate)

		api.POST("/demo/guarded", demoHandler.Guarded)
		api.POST("/demo/cancellable", demoHandler.Cancellable)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", srv.Addr, "env", cfg.Server.Env)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	// Ends open event streams so Shutdown does not wait on them.
	registry.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
