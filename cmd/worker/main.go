package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/worker"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting worker...", err)
	}

	zlog.InitConsole()
	if err := zlog.SetLevel("info"); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Listening to interruptions through context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiURL := appConfig.GetString("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
		log.Printf("API_URL is empty. Using default value %q...", apiURL)
	}

	client := worker.NewAPIClient(apiURL, appConfig.GetString("WORKER_PASSWORD"), 30*time.Second)
	var w ImageWorker = worker.NewWorkerInstance(client, envDuration(appConfig, "POLL_INTERVAL", time.Second))

	// ждем пока API раздуплится
	if err := w.Connect(ctx, 20, 2*time.Second); err != nil {
		log.Fatalf("Failed to log in to review API: %v\nExiting worker...", err)
	}

	go w.StartWorker(ctx)

	// Waiting for interruption to stop context to start Graceful shutdown
	<-ctx.Done()
	log.Println("Interrupt received!!! Exiting worker...")
}
