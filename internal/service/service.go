// Package service provides business-logic for the app
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/engine"
	"github.com/UnendingLoop/PhotoReview/internal/imageproc"
	"github.com/UnendingLoop/PhotoReview/internal/metrics"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/UnendingLoop/PhotoReview/internal/mwlogger"
	"github.com/UnendingLoop/PhotoReview/internal/repository"
)

// JobEngine - контракт движка жизненного цикла задач
type JobEngine interface {
	ResultsPerJob() int
	Admit(owner model.OwnerRef, original *blob.Blob, meta model.JobMeta) (uint64, int, error)
	Dispatch() (model.Draw, bool)
	ReturnDraw(d model.Draw) bool
	Submit(id uint64, r io.Reader) error
	ListAwaiting() []model.PendingSummary
	Result(id uint64, idx int) (*blob.Blob, error)
	Confirm(ctx context.Context, id uint64, choice int) (model.Job, error)
	Reject(id uint64) (model.Job, error)
	Carousel() engine.Snapshot
	ReclaimExpired() int
}

// DecisionPublisher - контракт для отправки решений в очередь
type DecisionPublisher interface {
	Publish(ctx context.Context, d *model.Decision) error
}

// SlotProvisioner - контракт для выделения новых слотов хранилища
type SlotProvisioner interface {
	AllocateSlot(ctx context.Context) (model.OwnerRef, error)
}

// QRBatcher - контракт фоновой генерации листа с QR-кодами новых слотов
type QRBatcher interface {
	Start(ctx context.Context, n int) error
	Status() model.BatchStatus
	Sheet() ([]byte, error)
}

// TokenIssuer - контракт выдачи токенов
type TokenIssuer interface {
	Login(password string) (string, time.Time, error)
}

type ReviewService struct {
	engine     JobEngine
	repo       repository.DecisionRepo
	publisher  DecisionPublisher
	slots      SlotProvisioner
	qr         QRBatcher
	tokens     TokenIssuer
	metrics    *metrics.Recorder
	spooler    blob.Spooler
	categories []string
	now        func() time.Time
}

type Deps struct {
	Engine     JobEngine
	Repo       repository.DecisionRepo
	Publisher  DecisionPublisher
	Slots      SlotProvisioner
	QR         QRBatcher
	Tokens     TokenIssuer
	Metrics    *metrics.Recorder
	Spooler    blob.Spooler
	Categories []string
}

func NewReviewService(d Deps) *ReviewService {
	return &ReviewService{
		engine:     d.Engine,
		repo:       d.Repo,
		publisher:  d.Publisher,
		slots:      d.Slots,
		qr:         d.QR,
		tokens:     d.Tokens,
		metrics:    d.Metrics,
		spooler:    d.Spooler,
		categories: normalizeCategories(d.Categories),
		now:        time.Now,
	}
}

func (s *ReviewService) IssueToken(ctx context.Context, password string) (string, time.Time, error) {
	token, exp, err := s.tokens.Login(password)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Msg("Login attempt with wrong password")
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (s *ReviewService) Categories() []string {
	return append([]string(nil), s.categories...)
}

func (s *ReviewService) ResultsPerJob() int {
	return s.engine.ResultsPerJob()
}

// Admit validates the uploaded photo and its metadata and queues a new job
func (s *ReviewService) Admit(ctx context.Context, data *model.AdmitData) (*model.AdmitResult, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	owner, meta, err := s.validateAdmitData(data)
	if err != nil {
		return nil, err
	}

	// крупные файлы уходят на диск, в память целиком не читаем
	original, err := s.spooler.New(data.Image)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to buffer uploaded image")
		return nil, model.ErrCommon500
	}

	id, backlog, err := s.engine.Admit(owner, original, meta)
	if err != nil {
		if rErr := original.Release(); rErr != nil {
			logger.Warn().Err(rErr).Msg("Failed to release rejected upload")
		}
		if errors.Is(err, model.ErrCapacityRejected) {
			logger.Warn().Err(err).Msg("Admission refused")
			return nil, model.ErrCapacityRejected
		}
		logger.Error().Err(err).Msg("Failed to admit job")
		return nil, model.ErrCommon500
	}

	logger.Info().Uint64("job_id", id).Str("owner_ref", owner.String()).Int("backlog", backlog).Msg("Job admitted")
	return &model.AdmitResult{JobID: id, Backlog: backlog}, nil
}

// Dispatch returns the next draw; ok=false means nothing to do
func (s *ReviewService) Dispatch(ctx context.Context) (*model.Draw, bool) {
	draw, ok := s.engine.Dispatch()
	if !ok {
		return nil, false
	}
	s.metrics.Draw()
	logger := mwlogger.LoggerFromContext(ctx)
	logger.Debug().Uint64("job_id", draw.Job.ID).Int("remaining", draw.Remaining).Msg("Draw issued")
	return &draw, true
}

// ReturnDraw отдает выдачу обратно в очередь, если воркер ее так и не получил
func (s *ReviewService) ReturnDraw(ctx context.Context, draw *model.Draw) {
	if draw == nil {
		return
	}
	if s.engine.ReturnDraw(*draw) {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Uint64("job_id", draw.Job.ID).Msg("Undelivered draw returned to queue")
	}
}

// OpenDraw opens the original image of a draw. ErrUnknownJob means the job was finished
// by other draws meanwhile and the worker has nothing to do.
func (s *ReviewService) OpenDraw(ctx context.Context, draw *model.Draw) (blob.ReadSeekCloser, error) {
	rc, err := draw.Job.Blob.Open()
	if err != nil {
		if errors.Is(err, blob.ErrReleased) {
			return nil, model.ErrUnknownJob
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Uint64("job_id", draw.Job.ID).Msg("Failed to open original image")
		return nil, model.ErrCommon500
	}
	return rc, nil
}

func (s *ReviewService) SubmitResult(ctx context.Context, id uint64, r io.Reader) error {
	if r == nil {
		return model.ErrEmptyResult
	}

	if err := s.engine.Submit(id, r); err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownJob):
			return model.ErrUnknownJob // 404
		case errors.Is(err, model.ErrEmptyResult):
			return model.ErrEmptyResult // 400
		default:
			logger := mwlogger.LoggerFromContext(ctx)
			logger.Error().Err(err).Uint64("job_id", id).Msg("Failed to accept result")
			return model.ErrCommon500
		}
	}
	s.metrics.Result()
	return nil
}

func (s *ReviewService) ListAwaiting(ctx context.Context) []model.PendingSummary {
	return s.engine.ListAwaiting()
}

// LoadResult opens one candidate of a job awaiting decision; caller closes the reader
func (s *ReviewService) LoadResult(ctx context.Context, id uint64, option int) (blob.ReadSeekCloser, string, error) {
	res, err := s.engine.Result(id, option)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidChoice):
			return nil, "", model.ErrInvalidChoice
		default:
			return nil, "", model.ErrUnknownJob
		}
	}

	rc, err := res.Open()
	if err != nil {
		// результат успели освободить решением ревьюера
		if errors.Is(err, blob.ErrReleased) {
			return nil, "", model.ErrUnknownJob
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Uint64("job_id", id).Msg("Failed to open result")
		return nil, "", model.ErrCommon500
	}
	return rc, res.ContentType(), nil
}

// Confirm accepts the choice-th result; the decision is then recorded in the ledger and published
func (s *ReviewService) Confirm(ctx context.Context, id uint64, choice int) error {
	logger := mwlogger.LoggerFromContext(ctx)

	job, err := s.engine.Confirm(ctx, id, choice)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrUnknownJob):
			return model.ErrUnknownJob
		case errors.Is(err, model.ErrInvalidChoice):
			return model.ErrInvalidChoice
		case errors.Is(err, model.ErrStorage):
			logger.Error().Err(err).Uint64("job_id", id).Msg("Failed to persist accepted artifacts")
			return model.ErrStorage
		default:
			logger.Error().Err(err).Uint64("job_id", id).Msg("Failed to confirm job")
			return model.ErrCommon500
		}
	}

	logger.Info().Uint64("job_id", id).Int("choice", choice).Msg("Job accepted")
	s.record(ctx, job, model.VerdictAccepted, &choice)
	return nil
}

// Reject drops the results and requeues the job for another cycle
func (s *ReviewService) Reject(ctx context.Context, id uint64) error {
	logger := mwlogger.LoggerFromContext(ctx)

	job, err := s.engine.Reject(id)
	if err != nil {
		if errors.Is(err, model.ErrUnknownJob) {
			return model.ErrUnknownJob
		}
		logger.Error().Err(err).Uint64("job_id", id).Msg("Failed to reject job")
		return model.ErrCommon500
	}

	logger.Info().Uint64("job_id", id).Msg("Job rejected and requeued")
	s.record(ctx, job, model.VerdictRejected, nil)
	return nil
}

// record - решение в памяти уже принято, ошибки журнала и очереди только логируем
func (s *ReviewService) record(ctx context.Context, job model.Job, v model.Verdict, choice *int) {
	logger := mwlogger.LoggerFromContext(ctx)
	s.metrics.Decision(v)

	now := s.now().UTC()
	d := &model.Decision{
		JobID:     job.ID,
		OwnerRef:  job.Owner.String(),
		Verdict:   v,
		Choice:    choice,
		Meta:      job.Meta,
		DecidedAt: &now,
	}

	if s.repo != nil {
		if err := s.repo.Create(ctx, d); err != nil {
			logger.Error().Err(err).Uint64("job_id", job.ID).Msg("Failed to write decision to ledger")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, d); err != nil {
			logger.Error().Err(err).Uint64("job_id", job.ID).Msg("Failed to publish decision")
		}
	}
}

func (s *ReviewService) CarouselLen(ctx context.Context) int {
	return s.engine.Carousel().Len()
}

// CarouselItem returns the accepted result and original at position index
func (s *ReviewService) CarouselItem(ctx context.Context, index int) (accepted, original []byte, err error) {
	entry, ok := s.engine.Carousel().At(index)
	if !ok {
		return nil, nil, model.ErrCarouselIndex
	}

	if accepted, err = entry.Accepted.Bytes(); err == nil {
		original, err = entry.Original.Bytes()
	}
	if err != nil {
		// запись вытеснили между снимком и чтением
		if errors.Is(err, blob.ErrReleased) {
			return nil, nil, model.ErrCarouselIndex
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Int("index", index).Msg("Failed to read carousel entry")
		return nil, nil, model.ErrCommon500
	}
	return accepted, original, nil
}

func (s *ReviewService) AllocateSlot(ctx context.Context) (model.OwnerRef, error) {
	ref, err := s.slots.AllocateSlot(ctx)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to allocate storage slot")
		return model.OwnerRef{}, model.ErrStorage
	}
	return ref, nil
}

// StartQRBatch запускает генерацию n QR-кодов; работа переживает запрос, который ее начал
func (s *ReviewService) StartQRBatch(ctx context.Context, n int) error {
	logger := mwlogger.LoggerFromContext(ctx)

	if err := s.qr.Start(context.WithoutCancel(ctx), n); err != nil {
		switch {
		case errors.Is(err, model.ErrIncorrectQuery):
			return model.ErrIncorrectQuery
		case errors.Is(err, model.ErrBatchRunning):
			return model.ErrBatchRunning
		default:
			logger.Error().Err(err).Int("total", n).Msg("Failed to start QR batch")
			return model.ErrCommon500
		}
	}
	logger.Info().Int("total", n).Msg("QR batch started")
	return nil
}

func (s *ReviewService) QRStatus(ctx context.Context) model.BatchStatus {
	return s.qr.Status()
}

func (s *ReviewService) QRSheet(ctx context.Context) ([]byte, error) {
	return s.qr.Sheet()
}

func (s *ReviewService) Decisions(ctx context.Context, req *model.ListRequest) ([]model.Decision, error) {
	validateQueryParams(req)

	res, err := s.repo.GetList(ctx, req)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to fetch decisions list from DB")
		return nil, model.ErrCommon500
	}
	return res, nil
}

// ReclaimExpired - вызывается из фонового цикла в main
func (s *ReviewService) ReclaimExpired(ctx context.Context) int {
	n := s.engine.ReclaimExpired()
	if n > 0 {
		s.metrics.Reclaimed(n)
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Int("draws", n).Msg("Expired draws returned to queue")
	}
	return n
}

func (s *ReviewService) validateAdmitData(data *model.AdmitData) (model.OwnerRef, model.JobMeta, error) {
	if data == nil || data.Image == nil {
		return model.OwnerRef{}, model.JobMeta{}, model.ErrEmptySource
	}
	if _, err := imageproc.DetectFormatReader(data.Image); err != nil {
		return model.OwnerRef{}, model.JobMeta{}, fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)
	}

	owner, err := model.ParseOwnerRef(data.OwnerRaw)
	if err != nil {
		return model.OwnerRef{}, model.JobMeta{}, err
	}

	meta := data.Meta
	meta.FirstName = strings.TrimSpace(meta.FirstName)
	meta.LastName = strings.TrimSpace(meta.LastName)
	meta.SubjectName = strings.TrimSpace(meta.SubjectName)
	meta.Category, err = s.normalizeCategory(meta.Category)
	if err != nil {
		return model.OwnerRef{}, model.JobMeta{}, err
	}
	return owner, meta, nil
}
