package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"facegate/internal/config"
	"facegate/internal/faceclient"
	"facegate/internal/facemodel"
	"facegate/internal/queue"
	"facegate/internal/store"
)

// Worker consumes training jobs, calls the face service, and promotes or
// fails the pending model row.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	// The worker consumes only the training list; decision events live on
	// their own list for downstream consumers and must never be popped here.
	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.KeyTraining)
	}

	registry := facemodel.NewRegistry(db.Client)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
			log.Println("worker will retry training when jobs arrive")
		} else {
			log.Println("face service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for training jobs...")
	for msg := range messages {
		if msg.Type != queue.TypeTrain {
			continue
		}

		var job struct {
			ModelID    string `json:"model_id"`
			IdentityID string `json:"identity_id"`
		}
		if err := json.Unmarshal(msg.Body, &job); err != nil || job.ModelID == "" {
			log.Printf("malformed training job: %v", err)
			continue
		}

		log.Printf("training model %s for identity %s", job.ModelID, job.IdentityID)

		result, err := face.Train(ctx, job.IdentityID)
		if err != nil {
			log.Printf("training failed for %s: %v", job.IdentityID, err)
			_ = registry.MarkFailed(ctx, job.ModelID)
			continue
		}

		// Promote supersedes the prior active model; its artifact may only
		// be removed after this commits.
		if err := registry.Promote(ctx, job.ModelID, result.ModelPath, result.SampleCount); err != nil {
			log.Printf("model promote failed for %s: %v", job.ModelID, err)
			_ = registry.MarkFailed(ctx, job.ModelID)
			continue
		}
		log.Printf("model %s active (%d samples)", job.ModelID, result.SampleCount)

		time.Sleep(10 * time.Millisecond) // Small delay between jobs
	}

	log.Println("worker stopped")
}
