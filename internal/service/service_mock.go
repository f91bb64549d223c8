package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/disintegration/imaging"
)

// MOCK REPOSITORY

type mockRepo struct {
	createFn  func(ctx context.Context, d *model.Decision) error
	getListFn func(ctx context.Context, req *model.ListRequest) ([]model.Decision, error)
}

func (m *mockRepo) Create(ctx context.Context, d *model.Decision) error {
	return m.createFn(ctx, d)
}

func (m *mockRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Decision, error) {
	return m.getListFn(ctx, req)
}

// MOCK PUBLISHER

type mockPublisher struct {
	publishFn func(ctx context.Context, d *model.Decision) error
}

func (m *mockPublisher) Publish(ctx context.Context, d *model.Decision) error {
	return m.publishFn(ctx, d)
}

// MOCK STORAGE (для настоящего движка)

type mockUploader struct {
	uploadFn func(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error
}

func (m *mockUploader) Upload(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error {
	return m.uploadFn(ctx, ref, b)
}

// MOCK SLOTS

type mockSlots struct {
	allocateFn func(ctx context.Context) (model.OwnerRef, error)
}

func (m *mockSlots) AllocateSlot(ctx context.Context) (model.OwnerRef, error) {
	return m.allocateFn(ctx)
}

// MOCK QR

type mockQR struct {
	startFn func(ctx context.Context, n int) error
	status  model.BatchStatus
	sheet   []byte
}

func (m *mockQR) Start(ctx context.Context, n int) error {
	return m.startFn(ctx, n)
}

func (m *mockQR) Status() model.BatchStatus {
	return m.status
}

func (m *mockQR) Sheet() ([]byte, error) {
	if m.sheet == nil {
		return nil, model.ErrBatchNotReady
	}
	return m.sheet, nil
}

// MOCK TOKENS

type mockTokens struct {
	loginFn func(password string) (string, time.Time, error)
}

func (m *mockTokens) Login(password string) (string, time.Time, error) {
	return m.loginFn(password)
}

// TOOLS

func pngBytes() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
