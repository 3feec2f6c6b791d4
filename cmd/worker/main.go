// The worker binary drains the notification push queue. It is the hand-off
// point to external delivery providers (mobile push, email); this process
// only decides whether a notification is still worth pushing and forwards it.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classhub/backend/internal/config"
	"classhub/backend/internal/localization"
	"classhub/backend/internal/models"
	"classhub/backend/internal/notify"
	"classhub/backend/internal/queue"
	"classhub/backend/internal/storage"
	"classhub/backend/internal/telegram"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const workerConcurrency = 10

func main() {
	log.Println("Starting ClassHub notification worker...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg := config.Load()

	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	s := storage.NewStorageService(db, nil) // no redis cache needed here

	var delivery pusher
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		localesDir := os.Getenv("LOCALES_DIR")
		if localesDir == "" {
			localesDir = "locales"
		}
		loc, err := localization.NewLocalizer(localesDir)
		if err != nil {
			log.Fatalf("failed to load locales: %v", err)
		}
		bot, err := telegram.NewBotService(token, s, loc, cfg.JWTSecret)
		if err != nil {
			log.Fatalf("failed to start Telegram bot: %v", err)
		}
		go bot.Run()
		delivery = bot
	} else {
		log.Println("TELEGRAM_BOT_TOKEN unset, push delivery will be logged only")
	}

	srv, err := queue.NewAsynqServer(cfg.RedisURL, workerConcurrency)
	if err != nil {
		log.Fatalf("failed to connect task queue: %v", err)
	}
	srv.Register(notify.TaskNotificationPush, pushHandler(s, delivery))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("worker stopped: %v", err)
	}
}

// pusher is the delivery side of the worker.
type pusher interface {
	PushNotification(n *models.QueuedNotification) error
}

// pushHandler forwards one queued notification to the delivery channel.
// Reads the durable row rather than trusting the payload: if the recipient
// already caught up, the push is dropped instead of delivered stale.
func pushHandler(s storage.Storage, p pusher) queue.Handler {
	return func(ctx context.Context, task queue.Task) error {
		var payload notify.PushPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			log.Printf("ERROR: malformed push payload: %v", err)
			return nil // retrying cannot fix a bad payload
		}

		n, err := s.GetNotificationByID(payload.NotificationID)
		if err != nil {
			return err // transient until the row is visible
		}
		if n.IsRead {
			return nil
		}

		if p == nil {
			log.Printf("push notification=%d recipient=%s room=%s summary=%q",
				n.ID, n.RecipientID, n.RoomID, n.Summary)
			return nil
		}
		return p.PushNotification(n)
	}
}
