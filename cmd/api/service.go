package main

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/wb-go/wbf/config"
)

// ReviewAPIService - то, что нужно фоновому циклу от сервиса
type ReviewAPIService interface {
	ReclaimExpired(ctx context.Context) int
}

// Producer - продюсер, который надо закрыть при выходе
type Producer interface {
	Close() error
}

func envInt(cfg *config.Config, key string, def int) int {
	raw := strings.TrimSpace(cfg.GetString(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Incorrect %s value %q: using default %d", key, raw, def)
		return def
	}
	return v
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

func envList(cfg *config.Config, key string) []string {
	raw := cfg.GetString(key)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
