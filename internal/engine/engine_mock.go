package engine

import (
	"context"
	"sync"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
)

// MOCK STORAGE

type upload struct {
	ref  model.OwnerRef
	kind model.ArtifactKind
	data string
}

type mockStorage struct {
	mu       sync.Mutex
	uploadFn func(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error
	uploads  []upload
	keys     []string
}

func (m *mockStorage) Upload(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error {
	if m.uploadFn != nil {
		if err := m.uploadFn(ctx, ref, b); err != nil {
			return err
		}
	}

	data, err := b.Bytes()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, upload{ref: ref.Owner, kind: ref.Kind, data: string(data)})
	m.keys = append(m.keys, ref.Key)
	return nil
}

func (m *mockStorage) uploadKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keys...)
}

func (m *mockStorage) all() []upload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]upload(nil), m.uploads...)
}
