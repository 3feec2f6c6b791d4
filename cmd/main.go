package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"classhub/backend/internal/api/handler"
	"classhub/backend/internal/chathub"
	"classhub/backend/internal/config"
	"classhub/backend/internal/lms"
	"classhub/backend/internal/messagestore"
	"classhub/backend/internal/notify"
	"classhub/backend/internal/presence"
	"classhub/backend/internal/queue"
	"classhub/backend/internal/roster"
	"classhub/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: "",
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func main() {
	log.Println("Starting ClassHub realtime backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.Load()

	// 1. Infrastructure
	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	// 2. Core engine wiring
	registry := roster.NewRegistry(s, lms.NewClient(cfg.LMSBaseURL))
	tracker := presence.NewTracker(s)
	hub := chathub.NewManager(registry, tracker, s)

	notifySvc := notify.NewService(s, registry)
	if qc, err := queue.NewAsynqClient(cfg.RedisURL); err != nil {
		log.Printf("WARNING: task queue unavailable, push hand-off disabled: %v", err)
	} else {
		notifySvc.Queue = qc
		defer qc.Close()
	}

	dispatcher := chathub.NewDispatcher(hub, registry, notifySvc, s)
	notifySvc.Live = dispatcher

	store := messagestore.NewStore(s, registry, tracker)
	store.Dispatcher = dispatcher
	hub.SetMessageStore(store)

	// 3. Background goroutines: the cross-node event bridge and the typing
	// indicator sweep.
	dispatcher.StartBridge()
	go func() {
		ticker := time.NewTicker(config.TypingSweepPeriod)
		defer ticker.Stop()
		for range ticker.C {
			if cleared := tracker.ReapStaleTypingIndicators(); len(cleared) > 0 {
				dispatcher.AnnounceTypingExpired(cleared)
			}
		}
	}()

	// 4. Gin routing
	r := gin.Default()
	h := handler.NewHandler(hub, store, registry, notifySvc, s, cfg.JWTSecret)
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Fatal(server.ListenAndServe())
}
