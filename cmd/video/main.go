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

	"gopherchat/backend/internal/api/handler"
	"gopherchat/backend/internal/config"
	"gopherchat/backend/internal/logging"
	"gopherchat/backend/internal/videohub"
)

func main() {
	// Optional .env for local dev; system environment still applies.
	_ = godotenv.Load()

	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logCfg := cfg.Log
	logCfg.Service = "gopherchat-video"
	logging.Init(logCfg)
	log := logging.L()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}

	store := videohub.NewRedisRoomStore(rdb, cfg.Video.RoomTTL)
	hub := videohub.NewHub(store)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	h := handler.NewVideoHandler(hub, store, cfg.WebSocket)

	r.GET("/health", h.Health)
	r.GET("/ws/:roomID", h.ServeSignaling)

	api := r.Group("/api")
	{
		api.GET("/rooms", h.ListActiveRooms)
		api.GET("/rooms/:roomID/participants", h.GetRoomParticipants)
		api.POST("/rooms/create", h.CreateRoom)
		api.DELETE("/rooms/:roomID", h.DeleteRoom)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Video.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("video signaling listening")
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
