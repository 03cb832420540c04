package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gopherchat/backend/internal/api/handler"
	"gopherchat/backend/internal/chathub"
	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/storage"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client, error) {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	if err := storage.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, rdb, nil
}

func setupRoutes(r *gin.Engine, h *handler.Handler) {
	r.GET("/health", h.Health)
	r.GET("/ws/:userID", h.ServeWebSocket)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", h.Login)
			auth.POST("/register", h.Registration)
			auth.GET("/check-username/:username", h.IsUsernameAvailable)
		}

		user := api.Group("/user")
		{
			user.GET("/session/:userID", h.UserSessionCheck)
			user.GET("/random/join/:userID", h.JoinRandomChat)
		}

		messages := api.Group("/messages")
		{
			messages.GET("/conversation/:toUserID/:fromUserID", h.GetConversation)
		}

		friends := api.Group("/friends")
		{
			friends.POST("/request/:fromUserID", h.SendFriendRequest)
			friends.POST("/accept/:requesterID/:myUserID", h.AcceptFriendRequest)
			friends.POST("/reject/:requesterID/:myUserID", h.RejectFriendRequest)
			friends.GET("/requests/:userID", h.GetPendingRequests)
			friends.GET("/list/:userID", h.GetFriendList)
		}

		groups := api.Group("/groups")
		{
			groups.POST("/create", h.CreateGroup)
			groups.GET("/user/:userID", h.GetUserGroups)
			groups.GET("/:groupID", h.GetGroupDetails)
			groups.POST("/members/add", h.AddGroupMember)
			groups.DELETE("/:groupID/members/:userID", h.RemoveGroupMember)
			groups.DELETE("/:groupID", h.DeleteGroup)
			groups.GET("/:groupID/messages", h.GetGroupMessages)
			groups.POST("/messages/send", h.SendGroupMessage)
			groups.POST("/video-call/start", h.StartGroupVideoCall)
		}
	}
}

func main() {
	// Optional .env for local dev; system environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log)
	log := logging.L()

	db, rdb, err := setupDependencies(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("dependency setup failed")
	}
	log.Info().Msg("database and redis connections established")

	s := storage.NewService(db, rdb)
	hub := chathub.NewHub(s, cfg.WebSocket)
	go hub.Run()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := handler.NewHandler(hub, s, cfg.Auth)
	setupRoutes(r, h)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("chat server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutdown complete")
}
