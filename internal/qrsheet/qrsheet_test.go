package qrsheet

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/stretchr/testify/require"
)

type mockSlots struct {
	mu         sync.Mutex
	next       uint64
	allocateFn func(ctx context.Context) (model.OwnerRef, error)
}

func (m *mockSlots) AllocateSlot(ctx context.Context) (model.OwnerRef, error) {
	if m.allocateFn != nil {
		return m.allocateFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	return model.SlotRef(m.next), nil
}

func refs(n int) []model.OwnerRef {
	res := make([]model.OwnerRef, 0, n)
	for i := 1; i <= n; i++ {
		res = append(res, model.SlotRef(uint64(i)))
	}
	return res
}

func TestRender(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		wantPages int
	}{
		{"single", 1, 1},
		{"full page", perPage, 1},
		{"spills to second page", perPage + 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := 0
			pdf, pages, err := Render(refs(tt.n), time.Now(), "minio", func(d int) { done = d })
			require.NoError(t, err)
			require.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
			require.Equal(t, tt.wantPages, pages)
			require.Equal(t, tt.n, done)
		})
	}

	_, _, err := Render(nil, time.Now(), "minio", nil)
	require.Error(t, err)
}

func TestGenerator_Start_Validation(t *testing.T) {
	g := NewGenerator(&mockSlots{}, "minio")

	require.ErrorIs(t, g.Start(context.Background(), 0), model.ErrIncorrectQuery)
	require.ErrorIs(t, g.Start(context.Background(), MaxBatch+1), model.ErrIncorrectQuery)

	_, err := g.Sheet()
	require.ErrorIs(t, err, model.ErrBatchNotReady)
}

func TestGenerator_Batch(t *testing.T) {
	slots := &mockSlots{}
	g := NewGenerator(slots, "minio")

	require.NoError(t, g.Start(context.Background(), 3))
	require.Eventually(t, func() bool { return g.Status().Ready }, 5*time.Second, 10*time.Millisecond)

	st := g.Status()
	require.Equal(t, model.BatchStatus{Total: 3, Progress: 100, Ready: true}, st)
	require.Equal(t, uint64(3), slots.next)

	pdf, err := g.Sheet()
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
}

func TestGenerator_OneBatchAtATime(t *testing.T) {
	unblock := make(chan struct{})
	g := NewGenerator(&mockSlots{allocateFn: func(ctx context.Context) (model.OwnerRef, error) {
		<-unblock
		return model.SlotRef(1), nil
	}}, "minio")

	require.NoError(t, g.Start(context.Background(), 1))
	require.ErrorIs(t, g.Start(context.Background(), 1), model.ErrBatchRunning)
	require.True(t, g.Status().Running)

	close(unblock)
	require.Eventually(t, func() bool { return g.Status().Ready }, 5*time.Second, 10*time.Millisecond)

	// после завершения можно запускать следующую пачку
	require.NoError(t, g.Start(context.Background(), 1))
	require.Eventually(t, func() bool { return !g.Status().Running }, 5*time.Second, 10*time.Millisecond)
}

func TestGenerator_SlotFailure(t *testing.T) {
	g := NewGenerator(&mockSlots{allocateFn: func(ctx context.Context) (model.OwnerRef, error) {
		return model.OwnerRef{}, errors.New("bucket is gone")
	}}, "minio")

	require.NoError(t, g.Start(context.Background(), 2))
	require.Eventually(t, func() bool { return !g.Status().Running }, 5*time.Second, 10*time.Millisecond)

	st := g.Status()
	require.False(t, st.Ready)
	require.Contains(t, st.Error, "bucket is gone")

	_, err := g.Sheet()
	require.ErrorIs(t, err, model.ErrBatchNotReady)
}
