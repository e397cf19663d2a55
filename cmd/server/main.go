package main

import (
	"context"
	"log"

	"drawboard-backend/internal/cache"
	"drawboard-backend/internal/config"
	"drawboard-backend/internal/database"
	"drawboard-backend/internal/server"
	"drawboard-backend/internal/session"
	"drawboard-backend/internal/store"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	// Redis is optional: chat history falls back to the document log and
	// cross-instance fan-out is simply disabled without it.
	var redisClient *cache.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Printf("Redis unavailable, continuing without cache: %v", err)
			redisClient = nil
		}
	}

	var bcast store.Broadcast
	var mirror session.ChatMirror
	if redisClient != nil {
		bcast = redisClient
		mirror = redisClient
	}

	st := store.NewPostgresStore(db, bcast)
	svc := session.NewService(st, session.Config{
		MaxParticipants: cfg.Session.MaxParticipants,
		MaxSnapshots:    cfg.Session.MaxSnapshots,
	}, mirror)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.ListenRemote(ctx)

	srv := server.New(cfg, db, svc, redisClient)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}

	if redisClient != nil {
		redisClient.Close()
	}
}
