// Package worker is the reference image worker: it polls the review API for draws,
// produces one candidate per draw and posts it back
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/imageproc"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/avast/retry-go"
	"github.com/wb-go/wbf/zlog"
)

// ReviewAPI - контракт API, с которым работает воркер
type ReviewAPI interface {
	Login(ctx context.Context) error
	FetchTask(ctx context.Context) (*Task, error)
	SubmitResult(ctx context.Context, jobID uint64, data []byte, ctype string) error
}

type Worker struct {
	api      ReviewAPI
	interval time.Duration
}

func NewWorkerInstance(api ReviewAPI, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{api: api, interval: pollInterval}
}

// Connect логинится, пока API не поднимется или не кончатся попытки
func (w *Worker) Connect(ctx context.Context, attempts uint, delay time.Duration) error {
	return retry.Do(
		func() error { return w.api.Login(ctx) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Printf("Failed to log in to review API (attempt %d): %v", n+1, err)
		}),
	)
}

// StartWorker работает до отмены контекста; пустая очередь - ждем interval
func (w *Worker) StartWorker(ctx context.Context) {
	for {
		done, err := w.processNext(ctx)
		if err != nil {
			zlog.Logger.Error().Err(err).Msg("Worker iteration failed")
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			log.Println("Worker context canceled, stopping...")
			return
		case <-time.After(w.interval):
		}
	}
}

// processNext returns true if a task was taken from the queue
func (w *Worker) processNext(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	task, err := w.api.FetchTask(ctx)
	if err != nil {
		return false, fmt.Errorf("fetch task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	data, ctype, err := render(task)
	if err != nil {
		return true, fmt.Errorf("render job %d: %w", task.JobID, err)
	}

	if err := w.api.SubmitResult(ctx, task.JobID, data, ctype); err != nil {
		if errors.Is(err, model.ErrUnknownJob) {
			zlog.Logger.Warn().Uint64("job_id", task.JobID).Msg("Job closed before result was submitted")
			return true, nil
		}
		return true, fmt.Errorf("submit job %d: %w", task.JobID, err)
	}

	zlog.Logger.Info().Uint64("job_id", task.JobID).Int("draw", task.DrawIndex).Msg("Result submitted")
	return true, nil
}

// render - вариант выбирается по номеру выдачи, так k выдач дают k разных кандидатов
func render(task *Task) ([]byte, string, error) {
	format, err := imageproc.DetectFormat(task.Image)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)
	}

	r, _, err := imageproc.Apply(bytes.NewReader(task.Image), imageproc.ForDraw(task.DrawIndex), format)
	if err != nil {
		return nil, "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", err
	}
	return data, model.GetCType[format], nil
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}

	if err := res.Close(); err != nil {
		log.Println("Worker failed to close fileflow:", err)
	}
}
