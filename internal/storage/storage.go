// Package storage connects the app to the image storage and wraps it with retries
package storage

import (
	"context"
	"log"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/UnendingLoop/PhotoReview/internal/storage/miniostorage"
	"github.com/avast/retry-go"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

func NewImgStorage(cfg *config.Config, delay time.Duration) *miniostorage.MinioImageStorage {
	success := false
	var client *miniostorage.MinioImageStorage
	var err error

	for !success {
		log.Println("Connecting to IMG-storage...")
		client, err = miniostorage.NewMinioClient(cfg)
		if err != nil {
			log.Printf("Failed to init connection to IMG-storage: %v\nNext retry in %v...", err, delay)
			time.Sleep(delay)
			continue
		}
		log.Println("Successfully connected IMG-storage!")
		success = true
	}

	return client
}

// Uploader - то, что умеет класть артефакт владельцу
type Uploader interface {
	Upload(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error
}

type RetryPolicy struct {
	Attempts uint
	Delay    time.Duration
}

// RetryingUploader повторяет загрузку с экспоненциальной задержкой, прежде чем вернуть ошибку наверх
type RetryingUploader struct {
	next   Uploader
	policy RetryPolicy
}

func WithRetry(next Uploader, policy RetryPolicy) *RetryingUploader {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	return &RetryingUploader{next: next, policy: policy}
}

func (r *RetryingUploader) Upload(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error {
	return retry.Do(
		func() error {
			return r.next.Upload(ctx, ref, b)
		},
		retry.Context(ctx),
		retry.Attempts(r.policy.Attempts),
		retry.Delay(r.policy.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			zlog.Logger.Warn().Err(err).
				Uint("attempt", n+1).
				Str("owner_ref", ref.Owner.String()).
				Str("key", ref.Key).
				Str("kind", string(ref.Kind)).
				Msg("Upload to storage failed, retrying")
		}),
	)
}
