// Package engine implements the job lifecycle: admission, fan-out of draws to workers,
// fan-in of results, the reviewer's accept/reject decision and the carousel of accepted results.
//
// All state lives in memory behind one mutex. The only blocking call, the storage upload
// during Confirm, runs without the lock held.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"
)

// Storage - контракт для сохранения принятых артефактов
type Storage interface {
	Upload(ctx context.Context, ref model.ArtifactRef, b *blob.Blob) error
}

type Config struct {
	ResultsPerJob int
	CarouselSize  int
	// MaxJobs caps live jobs; zero disables the cap
	MaxJobs int
	// LeaseTTL is how long a draw may stay unsubmitted before ReclaimExpired reissues it; zero disables leases
	LeaseTTL time.Duration
}

type Engine struct {
	mu       sync.Mutex
	cfg      Config
	nextID   uint64
	jobs     map[uint64]*record
	queue    *admissionQueue
	table    *aggregationTable
	carousel *carousel

	storage Storage
	spooler blob.Spooler
	now     func() time.Time
}

func New(cfg Config, strg Storage, spooler blob.Spooler) (*Engine, error) {
	if cfg.ResultsPerJob < 1 {
		return nil, fmt.Errorf("results per job must be positive, got %d", cfg.ResultsPerJob)
	}
	if cfg.CarouselSize < 1 {
		return nil, fmt.Errorf("carousel size must be positive, got %d", cfg.CarouselSize)
	}
	if strg == nil {
		return nil, errors.New("nil storage passed to engine")
	}

	c, err := newCarousel(cfg.CarouselSize)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:      cfg,
		nextID:   1,
		jobs:     make(map[uint64]*record),
		queue:    newAdmissionQueue(),
		table:    newAggregationTable(),
		carousel: c,
		storage:  strg,
		spooler:  spooler,
		now:      time.Now,
	}, nil
}

func (e *Engine) ResultsPerJob() int {
	return e.cfg.ResultsPerJob
}

// Admit assigns an id to the job and puts it at the head of the queue.
// Returns the job id and the backlog depth after insertion.
func (e *Engine) Admit(owner model.OwnerRef, original *blob.Blob, meta model.JobMeta) (uint64, int, error) {
	if owner.IsZero() {
		return 0, 0, model.ErrEmptyOwnerRef
	}
	if original == nil {
		return 0, 0, model.ErrEmptySource
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.MaxJobs > 0 && len(e.jobs) >= e.cfg.MaxJobs {
		return 0, 0, fmt.Errorf("%w: %d live jobs", model.ErrCapacityRejected, len(e.jobs))
	}

	id := e.nextID
	e.nextID++

	r := &record{
		job:       model.Job{ID: id, Key: uuid.NewString(), Owner: owner, Blob: original, Meta: meta},
		state:     model.StateQueued,
		remaining: e.cfg.ResultsPerJob,
	}
	e.jobs[id] = r
	e.queue.pushHead(r)

	return id, e.queue.Len(), nil
}

// Dispatch hands the oldest queued job to a worker. ok is false when nothing is available.
func (e *Engine) Dispatch() (model.Draw, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.queue.tail()
	if r == nil {
		return model.Draw{}, false
	}

	r.remaining--
	if r.remaining <= 0 {
		// все draw выданы - из очереди убираем, ждем результаты
		e.queue.remove(r)
		r.remaining = 0
		r.state = model.StateCollecting
	}

	entry := e.table.ensure(r)
	draw := model.Draw{Job: r.job, Remaining: r.remaining}
	if e.cfg.LeaseTTL > 0 {
		draw.LeaseEnd = e.now().Add(e.cfg.LeaseTTL)
		entry.leases = append(entry.leases, draw.LeaseEnd)
	}

	return draw, true
}

// ReturnDraw puts back a draw that never reached a worker. A draw whose lease was already
// reclaimed, or whose job has moved on, is ignored.
func (e *Engine) ReturnDraw(d model.Draw) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.jobs[d.Job.ID]
	if !ok {
		return false
	}
	entry := e.table.get(d.Job.ID)
	if entry == nil || entry.complete || entry.rec != r {
		return false
	}
	if !d.LeaseEnd.IsZero() && !entry.dropLease(d.LeaseEnd) {
		return false
	}

	r.remaining++
	r.state = model.StateQueued
	if r.elem == nil {
		e.queue.pushTail(r)
	}
	return true
}

// Submit appends one result to the job's current cycle. The k-th result moves the job
// to awaiting decision.
func (e *Engine) Submit(id uint64, r io.Reader) error {
	// читаем байты до лока - это может быть диск
	res, err := e.spooler.New(r)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrEmptyResult, err)
	}

	if err := e.appendResult(id, res); err != nil {
		release(res)
		return err
	}
	return nil
}

func (e *Engine) appendResult(id uint64, res *blob.Blob) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.table.get(id)
	if entry == nil || entry.complete {
		return fmt.Errorf("%w: submit for job %d", model.ErrUnknownJob, id)
	}

	entry.results = append(entry.results, res)
	entry.popLease()

	if len(entry.results) < e.cfg.ResultsPerJob {
		return nil
	}

	entry.complete = true
	entry.leases = nil
	rec := entry.rec
	// после reclaim задача могла вернуться в очередь - лишние draw больше не нужны
	e.queue.remove(rec)
	rec.remaining = 0
	rec.state = model.StateAwaitingDecision

	return nil
}

// ListAwaiting returns jobs whose results are complete, ordered by id
func (e *Engine) ListAwaiting() []model.PendingSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.table.completed()
	res := make([]model.PendingSummary, 0, len(entries))
	for _, entry := range entries {
		res = append(res, model.PendingSummary{JobID: entry.rec.job.ID, Ready: len(entry.results)})
	}
	return res
}

// Result returns the idx-th submitted result of a job awaiting decision
func (e *Engine) Result(id uint64, idx int) (*blob.Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry := e.table.get(id)
	if entry == nil || !entry.complete {
		return nil, fmt.Errorf("%w: result of job %d", model.ErrUnknownJob, id)
	}
	if idx < 0 || idx >= len(entry.results) {
		return nil, fmt.Errorf("%w: %d of %d", model.ErrInvalidChoice, idx, len(entry.results))
	}
	return entry.results[idx], nil
}

// State reports where a live job is; accepted jobs are dropped, so ok is false for them
func (e *Engine) State(id uint64) (model.State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.jobs[id]
	if !ok {
		return "", false
	}
	return r.state, true
}

// Confirm persists the original and the chosen result, pushes them to the carousel and
// finishes the job. A storage failure leaves the job awaiting decision.
func (e *Engine) Confirm(ctx context.Context, id uint64, choice int) (model.Job, error) {
	job, chosen, err := e.beginConfirm(id, choice)
	if err != nil {
		return model.Job{}, err
	}

	if err := e.persist(ctx, job, chosen); err != nil {
		e.mu.Lock()
		e.jobs[id].deciding = false
		e.mu.Unlock()
		return model.Job{}, err
	}

	e.mu.Lock()
	entry := e.table.get(id)
	e.table.delete(id)
	delete(e.jobs, id)
	// вытесненная запись может еще читаться из старых снимков - не освобождаем,
	// память заберет GC, temp-файл удалит cleanup блоба
	e.carousel.push(model.CarouselEntry{Accepted: chosen, Original: job.Blob})
	e.mu.Unlock()

	for i, res := range entry.results {
		if i != choice {
			release(res)
		}
	}

	return job, nil
}

func (e *Engine) beginConfirm(id uint64, choice int) (model.Job, *blob.Blob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, err := e.decidable(id)
	if err != nil {
		return model.Job{}, nil, err
	}
	if choice < 0 || choice >= len(entry.results) {
		return model.Job{}, nil, fmt.Errorf("%w: %d of %d", model.ErrInvalidChoice, choice, len(entry.results))
	}

	// пока идет загрузка, повторные confirm/reject по этой задаче отклоняем
	entry.rec.deciding = true
	return entry.rec.job, entry.results[choice], nil
}

func (e *Engine) persist(ctx context.Context, job model.Job, chosen *blob.Blob) error {
	if err := e.storage.Upload(ctx, job.Artifact(model.KindOriginal), job.Blob); err != nil {
		return fmt.Errorf("%w: upload original of job %d: %v", model.ErrStorage, job.ID, err)
	}
	if err := e.storage.Upload(ctx, job.Artifact(model.KindAccepted), chosen); err != nil {
		return fmt.Errorf("%w: upload accepted result of job %d: %v", model.ErrStorage, job.ID, err)
	}
	return nil
}

// Reject drops all results and puts the job back at the head of the queue for a new cycle
func (e *Engine) Reject(id uint64) (model.Job, error) {
	e.mu.Lock()
	entry, err := e.decidable(id)
	if err != nil {
		e.mu.Unlock()
		return model.Job{}, err
	}

	e.table.delete(id)
	rec := entry.rec
	rec.remaining = e.cfg.ResultsPerJob
	rec.state = model.StateQueued
	e.queue.pushHead(rec)
	job := rec.job
	e.mu.Unlock()

	for _, res := range entry.results {
		release(res)
	}
	return job, nil
}

func (e *Engine) decidable(id uint64) (*pendingEntry, error) {
	entry := e.table.get(id)
	if entry == nil || !entry.complete || entry.rec.deciding {
		return nil, fmt.Errorf("%w: decision for job %d", model.ErrUnknownJob, id)
	}
	return entry, nil
}

// Carousel returns a snapshot of accepted results, most recent first
func (e *Engine) Carousel() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.carousel.snapshot()
}

// ReclaimExpired returns draws whose lease ran out to the queue so they are issued again.
// Returns the number of reissued draws.
func (e *Engine) ReclaimExpired() int {
	if e.cfg.LeaseTTL <= 0 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	total := 0
	for _, entry := range e.table.entries {
		if entry.complete {
			continue
		}
		n := entry.expire(now)
		if n == 0 {
			continue
		}
		total += n

		rec := entry.rec
		rec.remaining += n
		rec.state = model.StateQueued
		if rec.elem == nil {
			e.queue.pushTail(rec)
		}
	}
	return total
}

func (e *Engine) Stats() model.EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	collecting, awaiting := e.table.counts()
	return model.EngineStats{
		Backlog:    e.queue.Len(),
		Collecting: collecting,
		Awaiting:   awaiting,
		Carousel:   e.carousel.Len(),
	}
}

func release(b *blob.Blob) {
	if err := b.Release(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Failed to release blob")
	}
}
