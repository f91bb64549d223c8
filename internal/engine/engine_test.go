package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, k, carouselSize int) (*Engine, *mockStorage) {
	t.Helper()
	strg := &mockStorage{}
	e, err := New(Config{ResultsPerJob: k, CarouselSize: carouselSize}, strg, blob.Spooler{})
	require.NoError(t, err)
	return e, strg
}

func admit(t *testing.T, e *Engine, name string) uint64 {
	t.Helper()
	b, err := blob.Spooler{}.FromBytes([]byte("original-" + name))
	require.NoError(t, err)
	id, _, err := e.Admit(model.SlotRef(1), b, model.JobMeta{SubjectName: name})
	require.NoError(t, err)
	return id
}

func submit(t *testing.T, e *Engine, id uint64, payload string) {
	t.Helper()
	require.NoError(t, e.Submit(id, strings.NewReader(payload)))
}

// прогоняет полный цикл: k выдач и k результатов
func fullCycle(t *testing.T, e *Engine, id uint64, prefix string) {
	t.Helper()
	for i := 0; i < e.ResultsPerJob(); i++ {
		d, ok := e.Dispatch()
		require.True(t, ok)
		require.Equal(t, id, d.Job.ID)
	}
	for i := 0; i < e.ResultsPerJob(); i++ {
		submit(t, e, id, fmt.Sprintf("%s-%d", prefix, i))
	}
}

func carouselData(t *testing.T, s Snapshot) []string {
	t.Helper()
	res := make([]string, 0, s.Len())
	for _, entry := range s.All() {
		data, err := entry.Accepted.Bytes()
		require.NoError(t, err)
		res = append(res, string(data))
	}
	return res
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{ResultsPerJob: 0, CarouselSize: 1}, &mockStorage{}, blob.Spooler{})
	require.Error(t, err)

	_, err = New(Config{ResultsPerJob: 1, CarouselSize: 0}, &mockStorage{}, blob.Spooler{})
	require.Error(t, err)

	_, err = New(Config{ResultsPerJob: 1, CarouselSize: 1}, nil, blob.Spooler{})
	require.Error(t, err)
}

// DISPATCH - ровно k выдач на задачу
func TestEngine_Dispatch_ExactlyKDraws(t *testing.T) {
	for k := 1; k <= 4; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			e, _ := newTestEngine(t, k, 2)
			id := admit(t, e, "a")

			for i := 0; i < k; i++ {
				d, ok := e.Dispatch()
				require.True(t, ok)
				require.Equal(t, id, d.Job.ID)
				require.Equal(t, k-i-1, d.Remaining)
			}

			_, ok := e.Dispatch()
			require.False(t, ok)

			st, ok := e.State(id)
			require.True(t, ok)
			require.Equal(t, model.StateCollecting, st)
		})
	}
}

func TestEngine_Dispatch_OldestFirst(t *testing.T) {
	e, _ := newTestEngine(t, 1, 2)
	a := admit(t, e, "a")
	b := admit(t, e, "b")

	d, ok := e.Dispatch()
	require.True(t, ok)
	require.Equal(t, a, d.Job.ID)

	d, ok = e.Dispatch()
	require.True(t, ok)
	require.Equal(t, b, d.Job.ID)
}

func TestEngine_Admit(t *testing.T) {
	e, _ := newTestEngine(t, 2, 2)
	b, err := blob.Spooler{}.FromBytes([]byte("img"))
	require.NoError(t, err)

	id1, backlog, err := e.Admit(model.LinkRef("https://x/u/1"), b, model.JobMeta{})
	require.NoError(t, err)
	require.Equal(t, 1, backlog)

	id2, backlog, err := e.Admit(model.SlotRef(3), b, model.JobMeta{})
	require.NoError(t, err)
	require.Equal(t, 2, backlog)
	require.Greater(t, id2, id1)

	_, _, err = e.Admit(model.OwnerRef{}, b, model.JobMeta{})
	require.ErrorIs(t, err, model.ErrEmptyOwnerRef)

	_, _, err = e.Admit(model.SlotRef(1), nil, model.JobMeta{})
	require.ErrorIs(t, err, model.ErrEmptySource)
}

func TestEngine_Admit_CapacityRejected(t *testing.T) {
	e, err := New(Config{ResultsPerJob: 1, CarouselSize: 1, MaxJobs: 1}, &mockStorage{}, blob.Spooler{})
	require.NoError(t, err)

	id := admit(t, e, "a")
	b, _ := blob.Spooler{}.FromBytes([]byte("b"))
	_, _, err = e.Admit(model.SlotRef(1), b, model.JobMeta{})
	require.ErrorIs(t, err, model.ErrCapacityRejected)

	// после принятия место освобождается
	fullCycle(t, e, id, "r")
	_, err = e.Confirm(context.Background(), id, 0)
	require.NoError(t, err)

	_, _, err = e.Admit(model.SlotRef(1), b, model.JobMeta{})
	require.NoError(t, err)
}

// SUBMIT - меньше k результатов не видно в списке
func TestEngine_Submit_InvisibleBelowK(t *testing.T) {
	e, _ := newTestEngine(t, 3, 2)
	id := admit(t, e, "a")
	for i := 0; i < 3; i++ {
		_, ok := e.Dispatch()
		require.True(t, ok)
	}

	submit(t, e, id, "r0")
	submit(t, e, id, "r1")
	require.Empty(t, e.ListAwaiting())

	_, err := e.Confirm(context.Background(), id, 0)
	require.ErrorIs(t, err, model.ErrUnknownJob)
	_, err = e.Reject(id)
	require.ErrorIs(t, err, model.ErrUnknownJob)
	_, err = e.Result(id, 0)
	require.ErrorIs(t, err, model.ErrUnknownJob)

	submit(t, e, id, "r2")
	require.Equal(t, []model.PendingSummary{{JobID: id, Ready: 3}}, e.ListAwaiting())

	st, _ := e.State(id)
	require.Equal(t, model.StateAwaitingDecision, st)
}

func TestEngine_Submit_UnknownJob(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)

	err := e.Submit(999, strings.NewReader("x"))
	require.ErrorIs(t, err, model.ErrUnknownJob)

	// принята, но еще ни разу не выдана
	id := admit(t, e, "a")
	err = e.Submit(id, strings.NewReader("x"))
	require.ErrorIs(t, err, model.ErrUnknownJob)
}

func TestEngine_Submit_EmptyResult(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)
	id := admit(t, e, "a")
	_, ok := e.Dispatch()
	require.True(t, ok)

	err := e.Submit(id, strings.NewReader(""))
	require.ErrorIs(t, err, model.ErrEmptyResult)
}

func TestEngine_Submit_AfterCompletionFails(t *testing.T) {
	e, _ := newTestEngine(t, 2, 1)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	err := e.Submit(id, strings.NewReader("late"))
	require.ErrorIs(t, err, model.ErrUnknownJob)
	require.Equal(t, []model.PendingSummary{{JobID: id, Ready: 2}}, e.ListAwaiting())
}

func TestEngine_Submit_ConcurrentCrossesThresholdOnce(t *testing.T) {
	const k = 8
	e, _ := newTestEngine(t, k, 1)
	id := admit(t, e, "a")
	for i := 0; i < k; i++ {
		_, ok := e.Dispatch()
		require.True(t, ok)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ok      int
		unknown int
	)
	for i := 0; i < 2*k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := e.Submit(id, strings.NewReader(fmt.Sprintf("r%d", i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, model.ErrUnknownJob):
				unknown++
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, k, ok)
	require.Equal(t, k, unknown)
	require.Equal(t, []model.PendingSummary{{JobID: id, Ready: k}}, e.ListAwaiting())
}

// CONFIRM
func TestEngine_Confirm_InvalidChoiceKeepsState(t *testing.T) {
	e, strg := newTestEngine(t, 2, 1)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	for _, choice := range []int{-1, 2, 100} {
		_, err := e.Confirm(context.Background(), id, choice)
		require.ErrorIs(t, err, model.ErrInvalidChoice)
	}
	require.Empty(t, strg.all())
	require.Len(t, e.ListAwaiting(), 1)

	_, err := e.Confirm(context.Background(), id, 1)
	require.NoError(t, err)
}

func TestEngine_Confirm_Twice(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	job, err := e.Confirm(context.Background(), id, 0)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)

	_, err = e.Confirm(context.Background(), id, 0)
	require.ErrorIs(t, err, model.ErrUnknownJob)

	_, ok := e.State(id)
	require.False(t, ok)
}

func TestEngine_Confirm_StorageErrorKeepsAwaiting(t *testing.T) {
	e, strg := newTestEngine(t, 2, 2)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	// оригинал загрузился, результат - нет
	fail := true
	strg.uploadFn = func(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error {
		if fail && ref.Kind == model.KindAccepted {
			return errors.New("remote is down")
		}
		return nil
	}

	_, err := e.Confirm(context.Background(), id, 1)
	require.ErrorIs(t, err, model.ErrStorage)
	require.Equal(t, []model.PendingSummary{{JobID: id, Ready: 2}}, e.ListAwaiting())
	require.Equal(t, 0, e.Carousel().Len())
	st, _ := e.State(id)
	require.Equal(t, model.StateAwaitingDecision, st)

	// повтор без повторного сбора результатов
	fail = false
	_, err = e.Confirm(context.Background(), id, 1)
	require.NoError(t, err)
	require.Empty(t, e.ListAwaiting())
	require.Equal(t, []string{"r-1"}, carouselData(t, e.Carousel()))

	// повторная загрузка оригинала идет под тем же ключом - объект перезаписывается
	keys := strg.uploadKeys()
	require.Len(t, keys, 3)
	require.NotEmpty(t, keys[0])
	require.Equal(t, keys[0], keys[1])
	require.Equal(t, keys[0], keys[2])
}

func TestEngine_Confirm_ReleasesNonChosen(t *testing.T) {
	e, _ := newTestEngine(t, 3, 2)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	results := make([]*blob.Blob, 0, 3)
	for i := 0; i < 3; i++ {
		b, err := e.Result(id, i)
		require.NoError(t, err)
		results = append(results, b)
	}

	_, err := e.Confirm(context.Background(), id, 1)
	require.NoError(t, err)

	_, err = results[0].Open()
	require.ErrorIs(t, err, blob.ErrReleased)
	_, err = results[2].Open()
	require.ErrorIs(t, err, blob.ErrReleased)
	_, err = results[1].Open()
	require.NoError(t, err)
}

func TestEngine_Confirm_ConcurrentDecisionRejected(t *testing.T) {
	e, strg := newTestEngine(t, 1, 1)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	strg.uploadFn = func(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error {
		once.Do(func() {
			close(entered)
			<-unblock
		})
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.Confirm(context.Background(), id, 0)
		done <- err
	}()

	<-entered
	// лок движка не держится во время загрузки
	_, err := e.Reject(id)
	require.ErrorIs(t, err, model.ErrUnknownJob)
	_, err = e.Confirm(context.Background(), id, 0)
	require.ErrorIs(t, err, model.ErrUnknownJob)
	require.Equal(t, 0, e.Stats().Backlog)

	close(unblock)
	require.NoError(t, <-done)
}

func TestEngine_Submit_AfterConfirmFails(t *testing.T) {
	e, strg := newTestEngine(t, 2, 2)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	_, err := e.Confirm(context.Background(), id, 0)
	require.NoError(t, err)
	before := e.Stats()

	err = e.Submit(id, strings.NewReader("late"))
	require.ErrorIs(t, err, model.ErrUnknownJob)

	require.Equal(t, before, e.Stats())
	require.Empty(t, e.ListAwaiting())
	require.Equal(t, []string{"r-0"}, carouselData(t, e.Carousel()))
	require.Len(t, strg.all(), 2)
}

func TestEngine_Submit_DuringConfirmFails(t *testing.T) {
	e, strg := newTestEngine(t, 1, 1)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "r")

	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	strg.uploadFn = func(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error {
		once.Do(func() {
			close(entered)
			<-unblock
		})
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := e.Confirm(context.Background(), id, 0)
		done <- err
	}()

	<-entered
	err := e.Submit(id, strings.NewReader("late"))
	require.ErrorIs(t, err, model.ErrUnknownJob)

	close(unblock)
	require.NoError(t, <-done)

	err = e.Submit(id, strings.NewReader("later"))
	require.ErrorIs(t, err, model.ErrUnknownJob)
	require.Equal(t, []string{"r-0"}, carouselData(t, e.Carousel()))
	require.Equal(t, model.EngineStats{Carousel: 1}, e.Stats())
}

// REJECT
func TestEngine_Reject_ThenFullCycle(t *testing.T) {
	e, strg := newTestEngine(t, 2, 2)
	id := admit(t, e, "a")
	fullCycle(t, e, id, "first")

	first, err := e.Result(id, 0)
	require.NoError(t, err)

	job, err := e.Reject(id)
	require.NoError(t, err)
	require.Equal(t, id, job.ID)
	require.Empty(t, e.ListAwaiting())
	st, _ := e.State(id)
	require.Equal(t, model.StateQueued, st)

	_, err = first.Open()
	require.ErrorIs(t, err, blob.ErrReleased)

	// оригинал не тронут
	orig, err := job.Blob.Bytes()
	require.NoError(t, err)
	require.Equal(t, "original-a", string(orig))

	// поздний результат из прошлого цикла не воскрешает запись
	err = e.Submit(id, strings.NewReader("late"))
	require.ErrorIs(t, err, model.ErrUnknownJob)

	fullCycle(t, e, id, "second")
	_, err = e.Confirm(context.Background(), id, 1)
	require.NoError(t, err)

	uploads := strg.all()
	require.Len(t, uploads, 2)
	require.Equal(t, model.KindOriginal, uploads[0].kind)
	require.Equal(t, "original-a", uploads[0].data)
	require.Equal(t, model.KindAccepted, uploads[1].kind)
	require.Equal(t, "second-1", uploads[1].data)
}

func TestEngine_Reject_GoesToHead(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)
	a := admit(t, e, "a")
	_, ok := e.Dispatch()
	require.True(t, ok)
	submit(t, e, a, "ra")

	b := admit(t, e, "b")
	_, err := e.Reject(a)
	require.NoError(t, err)

	// b старше в очереди, поэтому выдается первым
	d, ok := e.Dispatch()
	require.True(t, ok)
	require.Equal(t, b, d.Job.ID)
	d, ok = e.Dispatch()
	require.True(t, ok)
	require.Equal(t, a, d.Job.ID)
}

func TestEngine_Reject_Unknown(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)
	_, err := e.Reject(42)
	require.ErrorIs(t, err, model.ErrUnknownJob)
}

// CAROUSEL
func TestEngine_Carousel_Bounded(t *testing.T) {
	const size = 3
	e, _ := newTestEngine(t, 1, size)

	for i := 0; i <= size; i++ {
		id := admit(t, e, fmt.Sprint(i))
		fullCycle(t, e, id, fmt.Sprintf("job%d", i))
		_, err := e.Confirm(context.Background(), id, 0)
		require.NoError(t, err)
	}

	snap := e.Carousel()
	require.Equal(t, size, snap.Len())
	require.Equal(t, []string{"job3-0", "job2-0", "job1-0"}, carouselData(t, snap))
}

func TestEngine_Carousel_EvictionKeepsOldSnapshotReadable(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)

	a := admit(t, e, "a")
	fullCycle(t, e, a, "ra")
	_, err := e.Confirm(context.Background(), a, 0)
	require.NoError(t, err)
	old := e.Carousel()

	b := admit(t, e, "b")
	fullCycle(t, e, b, "rb")
	_, err = e.Confirm(context.Background(), b, 0)
	require.NoError(t, err)

	// в карусели только b, но старый снимок по-прежнему читается
	require.Equal(t, []string{"rb-0"}, carouselData(t, e.Carousel()))
	require.Equal(t, []string{"ra-0"}, carouselData(t, old))

	entry, ok := old.At(0)
	require.True(t, ok)
	orig, err := entry.Original.Bytes()
	require.NoError(t, err)
	require.Equal(t, "original-a", string(orig))
}

func TestSnapshot_RestartableAndIndexed(t *testing.T) {
	e, _ := newTestEngine(t, 1, 2)
	for _, name := range []string{"a", "b"} {
		id := admit(t, e, name)
		fullCycle(t, e, id, name)
		_, err := e.Confirm(context.Background(), id, 0)
		require.NoError(t, err)
	}

	snap := e.Carousel()
	require.Equal(t, carouselData(t, snap), carouselData(t, snap))

	// снапшот не меняется после новых вставок
	id := admit(t, e, "c")
	fullCycle(t, e, id, "c")
	_, err := e.Confirm(context.Background(), id, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"b-0", "a-0"}, carouselData(t, snap))

	_, ok := snap.At(2)
	require.False(t, ok)
	_, ok = snap.At(-1)
	require.False(t, ok)

	count := 0
	for range snap.All() {
		count++
		break
	}
	require.Equal(t, 1, count)
}

// полный сценарий: k=3, карусель на 2
func TestEngine_Scenario(t *testing.T) {
	e, strg := newTestEngine(t, 3, 2)
	ctx := context.Background()

	a := admit(t, e, "A")
	for i := 0; i < 3; i++ {
		d, ok := e.Dispatch()
		require.True(t, ok)
		require.Equal(t, a, d.Job.ID)
	}
	_, ok := e.Dispatch()
	require.False(t, ok)

	submit(t, e, a, "resultA0")
	submit(t, e, a, "resultA1")
	require.Empty(t, e.ListAwaiting())

	submit(t, e, a, "resultA2")
	require.Equal(t, []model.PendingSummary{{JobID: a, Ready: 3}}, e.ListAwaiting())

	_, err := e.Confirm(ctx, a, 0)
	require.NoError(t, err)
	require.Equal(t, []upload{
		{ref: model.SlotRef(1), kind: model.KindOriginal, data: "original-A"},
		{ref: model.SlotRef(1), kind: model.KindAccepted, data: "resultA0"},
	}, strg.all())
	require.Equal(t, []string{"resultA0"}, carouselData(t, e.Carousel()))

	for _, name := range []string{"B", "C"} {
		id := admit(t, e, name)
		fullCycle(t, e, id, "result"+name)
		_, err := e.Confirm(ctx, id, 0)
		require.NoError(t, err)
	}

	snap := e.Carousel()
	require.Equal(t, []string{"resultC-0", "resultB-0"}, carouselData(t, snap))
	first, _ := snap.At(0)
	orig, err := first.Original.Bytes()
	require.NoError(t, err)
	require.Equal(t, "original-C", string(orig))
}

// RETURN DRAW
func TestEngine_ReturnDraw(t *testing.T) {
	e, _ := newTestEngine(t, 2, 1)
	id := admit(t, e, "a")

	d1, ok := e.Dispatch()
	require.True(t, ok)
	_, ok = e.Dispatch()
	require.True(t, ok)
	st, _ := e.State(id)
	require.Equal(t, model.StateCollecting, st)

	// выдачу не удалось доставить воркеру - она снова доступна
	require.True(t, e.ReturnDraw(d1))
	st, _ = e.State(id)
	require.Equal(t, model.StateQueued, st)

	d, ok := e.Dispatch()
	require.True(t, ok)
	require.Equal(t, id, d.Job.ID)
	_, ok = e.Dispatch()
	require.False(t, ok)

	submit(t, e, id, "r0")
	submit(t, e, id, "r1")
	require.Equal(t, []model.PendingSummary{{JobID: id, Ready: 2}}, e.ListAwaiting())

	// задача уже собрана - возврат ничего не меняет
	require.False(t, e.ReturnDraw(d))
	require.Equal(t, 0, e.Stats().Backlog)
}

func TestEngine_ReturnDraw_AfterReclaimIgnored(t *testing.T) {
	e, err := New(Config{ResultsPerJob: 1, CarouselSize: 1, LeaseTTL: time.Second}, &mockStorage{}, blob.Spooler{})
	require.NoError(t, err)
	now := time.Now()
	e.now = func() time.Time { return now }

	admit(t, e, "a")
	d, ok := e.Dispatch()
	require.True(t, ok)

	now = now.Add(time.Hour)
	require.Equal(t, 1, e.ReclaimExpired())

	// lease уже вернули в очередь, второй раз не считаем
	require.False(t, e.ReturnDraw(d))
	_, ok = e.Dispatch()
	require.True(t, ok)
	_, ok = e.Dispatch()
	require.False(t, ok)
}

func TestEngine_ReturnDraw_Unknown(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)
	require.False(t, e.ReturnDraw(model.Draw{Job: model.Job{ID: 7}}))
}

// LEASES
func TestEngine_ReclaimExpired(t *testing.T) {
	strg := &mockStorage{}
	e, err := New(Config{ResultsPerJob: 2, CarouselSize: 1, LeaseTTL: time.Minute}, strg, blob.Spooler{})
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	id := admit(t, e, "a")
	d1, ok := e.Dispatch()
	require.True(t, ok)
	require.Equal(t, now.Add(time.Minute), d1.LeaseEnd)
	_, ok = e.Dispatch()
	require.True(t, ok)
	_, ok = e.Dispatch()
	require.False(t, ok)

	// один результат пришел, второй воркер пропал
	submit(t, e, id, "r0")

	require.Equal(t, 0, e.ReclaimExpired())

	now = now.Add(2 * time.Minute)
	require.Equal(t, 1, e.ReclaimExpired())
	st, _ := e.State(id)
	require.Equal(t, model.StateQueued, st)

	d, ok := e.Dispatch()
	require.True(t, ok)
	require.Equal(t, id, d.Job.ID)
	_, ok = e.Dispatch()
	require.False(t, ok)

	submit(t, e, id, "r1")
	require.Equal(t, []model.PendingSummary{{JobID: id, Ready: 2}}, e.ListAwaiting())
}

func TestEngine_ReclaimExpired_CompletionDropsReissue(t *testing.T) {
	e, err := New(Config{ResultsPerJob: 1, CarouselSize: 1, LeaseTTL: time.Second}, &mockStorage{}, blob.Spooler{})
	require.NoError(t, err)
	now := time.Now()
	e.now = func() time.Time { return now }

	id := admit(t, e, "a")
	_, ok := e.Dispatch()
	require.True(t, ok)

	now = now.Add(time.Hour)
	require.Equal(t, 1, e.ReclaimExpired())
	require.Equal(t, 1, e.Stats().Backlog)

	// опоздавший воркер все-таки прислал результат - повторная выдача не нужна
	submit(t, e, id, "late-but-fine")
	require.Equal(t, 0, e.Stats().Backlog)
	_, ok = e.Dispatch()
	require.False(t, ok)
}

func TestEngine_ReclaimExpired_Disabled(t *testing.T) {
	e, _ := newTestEngine(t, 1, 1)
	admit(t, e, "a")
	_, ok := e.Dispatch()
	require.True(t, ok)
	require.Equal(t, 0, e.ReclaimExpired())
}

func TestEngine_Stats(t *testing.T) {
	e, _ := newTestEngine(t, 1, 2)
	a := admit(t, e, "a")
	admit(t, e, "b")
	admit(t, e, "c")

	_, ok := e.Dispatch()
	require.True(t, ok)
	submit(t, e, a, "r")
	_, ok = e.Dispatch()
	require.True(t, ok)

	require.Equal(t, model.EngineStats{Backlog: 1, Collecting: 1, Awaiting: 1, Carousel: 0}, e.Stats())
}
