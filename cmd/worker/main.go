package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"attendsync/internal/config"
	"attendsync/internal/mlclient"
	"attendsync/internal/queue"
	"attendsync/internal/roster"
	"attendsync/internal/store"
)

// Worker consumes enrollment jobs, registers student photos with the
// face service, and records the outcome on the student row.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendsync:enroll")
	}

	rosterRepo := roster.NewRepository(db.Client)
	face := mlclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
			log.Println("worker will retry enrollment when jobs arrive")
		} else {
			log.Println("face service connected")
		}
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for enrollment jobs...")
	for msg := range messages {
		if msg.Type != "enroll" {
			continue
		}

		var job queue.EnrollJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			log.Printf("malformed enroll job: %v", err)
			continue
		}
		log.Printf("enrolling student %s", job.StudentID)

		student, err := rosterRepo.StudentByID(ctx, job.StudentID)
		if err != nil {
			log.Printf("fetch student %s failed: %v", job.StudentID, err)
			continue
		}
		if student == nil {
			log.Printf("student %s no longer exists, dropping job", job.StudentID)
			continue
		}

		result, err := face.Enroll(ctx, job.StudentID, job.PhotoURL, student.Name)
		switch {
		case err != nil:
			log.Printf("enrollment failed for %s: %v", job.StudentID, err)
			_ = rosterRepo.SetStudentFace(ctx, job.StudentID, false, job.PhotoURL)
			continue
		case !result.Success:
			log.Printf("enrollment rejected for %s: %s", job.StudentID, result.Message)
			_ = rosterRepo.SetStudentFace(ctx, job.StudentID, false, job.PhotoURL)
			continue
		}

		if err := rosterRepo.SetStudentFace(ctx, job.StudentID, true, job.PhotoURL); err != nil {
			log.Printf("mark enrolled failed for %s: %v", job.StudentID, err)
			continue
		}
		log.Printf("student %s enrolled", job.StudentID)
	}

	log.Println("worker stopped")
}
