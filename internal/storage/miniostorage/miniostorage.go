// Package miniostorage provides structure to work with minio-storage
package miniostorage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/config"
)

const (
	linkPrefix = "links/"
	slotMarker = ".slot"
)

type MinioImageStorage struct {
	bucket string
	client *minio.Client

	mu       sync.Mutex
	nextSlot uint64 // 0 - еще не считали из бакета
}

func NewMinioClient(cfg *config.Config) (*MinioImageStorage, error) {
	bucket := cfg.GetString("BUCKET_NAME")

	if bucket == "" {
		bucket = "photoreview"
		log.Printf("Bucket name is empty. Using default value %q...", bucket)
	}

	user := cfg.GetString("MINIO_USER")
	pass := cfg.GetString("MINIO_PASS")
	addr := cfg.GetString("MINIO_CONTAINER_NAME")

	// подключаемся к минио - создаем клиента
	strg, err := minio.New(addr+":9000", &minio.Options{
		Creds:  credentials.NewStaticV4(user, pass, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	// создаем бакет если его нет
	if err := ensureBucket(context.Background(), strg, bucket); err != nil {
		log.Println("Failed to create bucket in MinIO:", err)
		return nil, err
	}

	return &MinioImageStorage{bucket: bucket, client: strg}, nil
}

// Name - подпись хранилища на листе с QR-кодами
func (s *MinioImageStorage) Name() string {
	return "minio/" + s.bucket
}

// Upload кладет артефакт под префикс владельца: <slot>/<kind>/<job key>.<ext>.
// Повтор с тем же ref перезаписывает объект, дублей не появляется.
func (s *MinioImageStorage) Upload(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error {
	if b == nil {
		return errors.New("nil blob passed to storage.Upload")
	}
	if ref.Key == "" {
		return errors.New("empty artifact key passed to storage.Upload")
	}

	prefix, err := ownerPrefix(ref.Owner)
	if err != nil {
		return err
	}

	r, err := b.Open()
	if err != nil {
		return fmt.Errorf("open blob: %w", err)
	}
	defer r.Close()

	key := objectKey(prefix, ref.Kind, ref.Key, b.ContentType())
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, b.Size(), minio.PutObjectOptions{
		ContentType: b.ContentType(),
	}); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	return nil
}

// AllocateSlot создает новый пронумерованный слот, номера продолжают максимальный из бакета
func (s *MinioImageStorage) AllocateSlot(ctx context.Context) (model.OwnerRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextSlot == 0 {
		highest, err := s.highestSlot(ctx)
		if err != nil {
			return model.OwnerRef{}, fmt.Errorf("scan existing slots: %w", err)
		}
		s.nextSlot = highest + 1
	}

	slot := s.nextSlot
	key := strconv.FormatUint(slot, 10) + "/" + slotMarker
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(nil), 0, minio.PutObjectOptions{}); err != nil {
		return model.OwnerRef{}, fmt.Errorf("create slot marker %q: %w", key, err)
	}
	s.nextSlot++

	return model.SlotRef(slot), nil
}

func (s *MinioImageStorage) highestSlot(ctx context.Context) (uint64, error) {
	var highest uint64
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: false}) {
		if obj.Err != nil {
			return 0, obj.Err
		}
		if n, ok := parseSlotPrefix(obj.Key); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func parseSlotPrefix(key string) (uint64, bool) {
	name := strings.TrimSuffix(key, "/")
	n, err := strconv.ParseUint(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func ownerPrefix(ref model.OwnerRef) (string, error) {
	switch ref.Kind {
	case model.RefSlot:
		return strconv.FormatUint(ref.Slot, 10) + "/", nil
	case model.RefLink:
		if ref.Link == "" {
			return "", model.ErrEmptyOwnerRef
		}
		return linkPrefix + url.PathEscape(ref.Link) + "/", nil
	default:
		return "", model.ErrEmptyOwnerRef
	}
}

func objectKey(prefix string, kind model.ArtifactKind, jobKey, contentType string) string {
	ext, ok := model.GetImageFileExt[contentType]
	if !ok {
		ext = ".bin"
	}
	return prefix + string(kind) + "/" + jobKey + ext
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
