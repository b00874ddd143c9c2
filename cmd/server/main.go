package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"media-task-queue/internal/api"
	"media-task-queue/internal/config"
	"media-task-queue/internal/queue"
	"media-task-queue/internal/status"
	"media-task-queue/internal/storage"
	"media-task-queue/internal/store"
	"media-task-queue/internal/telemetry"
	"media-task-queue/internal/webhook"
	"media-task-queue/internal/worker"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st := store.NewFileStore(func() string { return storage.ResolveRoot(cfg) })

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		q = queue.NewRedisQueue(cfg)
	default:
		q = queue.NewMemoryQueue()
	}

	provider, err := storage.SelectProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("select storage provider: %v", err)
	}

	// One queue id per process lifetime; workers and intake share it.
	queueID := uuid.NewString()
	workerID := worker.ResolveWorkerID()

	notifier := webhook.New(cfg.WebhookTimeout)
	pool := worker.New(q, st, notifier, queueID, workerID, cfg.WorkerCount)
	pool.Register("image:transform", worker.NewImageTransformHandler(cfg, provider).Handle)
	pool.Register("image:thumbnail", worker.NewThumbnailHandler(provider).Handle)

	statusSvc := status.New(st, cfg.BaseURL)
	server := api.New(cfg, st, q, statusSvc, queueID)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	go func() {
		if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("worker pool stopped: %v", err)
		}
	}()

	log.Printf("api listening on :%s workers=%d queue=%s worker_id=%s", cfg.HTTPPort, cfg.WorkerCount, cfg.QueueBackend, workerID)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}
