package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/wb-go/wbf/config"
)

// ImageWorker - то, что main запускает и останавливает
type ImageWorker interface {
	Connect(ctx context.Context, attempts uint, delay time.Duration) error
	StartWorker(ctx context.Context)
}

func envDuration(cfg *config.Config, key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(cfg.GetString(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Incorrect %s value %q: using default %v", key, raw, def)
		return def
	}
	return v
}
