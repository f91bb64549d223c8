// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/wb-go/wbf/ginext"
)

// Заголовки ответа GET /job - метаданные задачи для воркера
const (
	HeaderJobID       = "X-Job-Id"
	HeaderDrawIndex   = "X-Draw-Index"
	HeaderRemaining   = "X-Remaining-Draws"
	HeaderLeaseEnd    = "X-Lease-Expires"
	HeaderFirstName   = "X-First-Name"
	HeaderLastName    = "X-Last-Name"
	HeaderSubjectName = "X-Subject-Name"
	HeaderCategory    = "X-Category"
)

type ReviewHandler struct {
	service ReviewService
}

type ReviewService interface {
	IssueToken(ctx context.Context, password string) (string, time.Time, error)
	Categories() []string
	ResultsPerJob() int
	Admit(ctx context.Context, data *model.AdmitData) (*model.AdmitResult, error)
	AllocateSlot(ctx context.Context) (model.OwnerRef, error)
	StartQRBatch(ctx context.Context, n int) error
	QRStatus(ctx context.Context) model.BatchStatus
	QRSheet(ctx context.Context) ([]byte, error)
	Dispatch(ctx context.Context) (*model.Draw, bool)
	ReturnDraw(ctx context.Context, draw *model.Draw)
	OpenDraw(ctx context.Context, draw *model.Draw) (blob.ReadSeekCloser, error)
	SubmitResult(ctx context.Context, id uint64, r io.Reader) error
	ListAwaiting(ctx context.Context) []model.PendingSummary
	LoadResult(ctx context.Context, id uint64, option int) (blob.ReadSeekCloser, string, error)
	Confirm(ctx context.Context, id uint64, choice int) error
	Reject(ctx context.Context, id uint64) error
	CarouselLen(ctx context.Context) int
	CarouselItem(ctx context.Context, index int) (accepted, original []byte, err error)
	Decisions(ctx context.Context, req *model.ListRequest) ([]model.Decision, error)
}

func NewReviewHandler(svc ReviewService) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
	}
}

func (h ReviewHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h ReviewHandler) IssueToken(ctx *ginext.Context) {
	token, exp, err := h.service.IssueToken(ctx.Request.Context(), ctx.PostForm("password"))
	if err != nil {
		ctx.Header("WWW-Authenticate", "Bearer")
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   exp.UTC(),
	})
}

func (h ReviewHandler) Categories(ctx *ginext.Context) {
	ctx.JSON(200, map[string][]string{"categories": h.service.Categories()})
}

func (h ReviewHandler) Upload(ctx *ginext.Context) {
	imageFile, _, err := ctx.Request.FormFile("file")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "file is required"})
		return
	}
	defer closeFileFlow(imageFile)

	flag, err := parseFlag(formValue(ctx, "flag", "broken_bone"))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "flag must be a boolean"})
		return
	}

	res, err := h.service.Admit(ctx.Request.Context(), &model.AdmitData{
		Image:    imageFile,
		OwnerRaw: ctx.PostForm("qr_content"),
		Meta: model.JobMeta{
			FirstName:   ctx.PostForm("first_name"),
			LastName:    ctx.PostForm("last_name"),
			SubjectName: formValue(ctx, "subject_name", "animal_name"),
			Category:    formValue(ctx, "category", "animal_type"),
			Flag:        flag,
		},
	})
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(201, res)
}

func (h ReviewHandler) AllocateSlot(ctx *ginext.Context) {
	ref, err := h.service.AllocateSlot(ctx.Request.Context())
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(201, map[string]string{"owner_ref": ref.String()})
}

// StartQRBatch - GET /qr?n=: слоты и лист с кодами готовятся в фоне, прогресс в /qr/progress
func (h ReviewHandler) StartQRBatch(ctx *ginext.Context) {
	n, err := strconv.Atoi(ctx.Query("n"))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectQuery.Error()})
		return
	}

	if err := h.service.StartQRBatch(ctx.Request.Context(), n); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.String(202, "Generating %d QR codes, this may take a while. Check the progress at /qr/progress", n)
}

func (h ReviewHandler) QRProgress(ctx *ginext.Context) {
	ctx.JSON(200, h.service.QRStatus(ctx.Request.Context()))
}

func (h ReviewHandler) QRDownload(ctx *ginext.Context) {
	sheet, err := h.service.QRSheet(ctx.Request.Context())
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Header("Content-Disposition", "attachment; filename=qr.pdf")
	ctx.Data(200, "application/pdf", sheet)
}

// GetJob отдает воркеру исходник и метаданные в заголовках; 204 - работы нет
func (h ReviewHandler) GetJob(ctx *ginext.Context) {
	draw, ok := h.service.Dispatch(ctx.Request.Context())
	if !ok {
		ctx.Status(204)
		return
	}

	src, err := h.service.OpenDraw(ctx.Request.Context(), draw)
	if err != nil {
		h.service.ReturnDraw(ctx.Request.Context(), draw)
		// задачу уже закрыли другие выдачи - работы нет
		if errors.Is(err, model.ErrUnknownJob) {
			ctx.Status(204)
			return
		}
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(src)

	job := draw.Job
	header := ctx.Writer.Header()
	header.Set("Content-Type", job.Blob.ContentType())
	header.Set("Content-Length", strconv.FormatInt(job.Blob.Size(), 10))
	header.Set(HeaderJobID, strconv.FormatUint(job.ID, 10))
	header.Set(HeaderDrawIndex, strconv.Itoa(h.service.ResultsPerJob()-draw.Remaining-1))
	header.Set(HeaderRemaining, strconv.Itoa(draw.Remaining))
	header.Set(HeaderFirstName, job.Meta.FirstName)
	header.Set(HeaderLastName, job.Meta.LastName)
	header.Set(HeaderSubjectName, job.Meta.SubjectName)
	header.Set(HeaderCategory, job.Meta.Category)
	if !draw.LeaseEnd.IsZero() {
		header.Set(HeaderLeaseEnd, draw.LeaseEnd.UTC().Format(time.RFC3339))
	}

	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, src); err != nil {
		log.Printf("Failed to write response at byte %d for job %d: %v", n, job.ID, err)
	}
}

func (h ReviewHandler) SubmitJob(ctx *ginext.Context) {
	id, err := parseJobID(formValue(ctx, "image_id", "job_id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	result, _, err := ctx.Request.FormFile("result")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrEmptyResult.Error()})
		return
	}
	defer closeFileFlow(result)

	if err := h.service.SubmitResult(ctx.Request.Context(), id, result); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, map[string]string{"status": "success"})
}

// ListResults - по каждой задаче, ждущей решения, ссылки на все ее результаты
func (h ReviewHandler) ListResults(ctx *ginext.Context) {
	base := baseURL(ctx)
	pending := h.service.ListAwaiting(ctx.Request.Context())

	results := make(map[string][]string, len(pending))
	for _, p := range pending {
		id := strconv.FormatUint(p.JobID, 10)
		links := make([]string, 0, p.Ready)
		for option := 0; option < p.Ready; option++ {
			links = append(links, fmt.Sprintf("%s/results/%s/%d", base, id, option))
		}
		results[id] = links
	}

	ctx.JSON(200, map[string]any{
		"results":         results,
		"results_per_job": h.service.ResultsPerJob(),
	})
}

func (h ReviewHandler) LoadResult(ctx *ginext.Context) {
	id, err := parseJobID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	option, err := strconv.Atoi(ctx.Param("option"))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrInvalidChoice.Error()})
		return
	}

	res, cType, err := h.service.LoadResult(ctx.Request.Context(), id, option)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	defer closeFileFlow(res)

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		log.Printf("Failed to write response at byte %d for result %d/%d: %v", n, id, option, err)
	}
}

func (h ReviewHandler) Confirm(ctx *ginext.Context) {
	id, err := parseJobID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}
	choice, err := strconv.Atoi(ctx.PostForm("choice"))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrInvalidChoice.Error()})
		return
	}

	if err := h.service.Confirm(ctx.Request.Context(), id, choice); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, map[string]string{"status": "success"})
}

func (h ReviewHandler) Reject(ctx *ginext.Context) {
	id, err := parseJobID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	if err := h.service.Reject(ctx.Request.Context(), id); err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, map[string]string{"status": "success"})
}

func (h ReviewHandler) CarouselList(ctx *ginext.Context) {
	base := baseURL(ctx)
	n := h.service.CarouselLen(ctx.Request.Context())

	links := make([]string, 0, n)
	for i := 0; i < n; i++ {
		links = append(links, fmt.Sprintf("%s/carousel/%d", base, i))
	}
	ctx.JSON(200, links)
}

// CarouselItem отдает zip из принятого результата и исходника
func (h ReviewHandler) CarouselItem(ctx *ginext.Context) {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil {
		ctx.JSON(404, map[string]string{"error": model.ErrCarouselIndex.Error()})
		return
	}

	accepted, original, err := h.service.CarouselItem(ctx.Request.Context(), index)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	archive, err := zipPair(accepted, original)
	if err != nil {
		log.Printf("Failed to build zip for carousel item %d: %v", index, err)
		ctx.JSON(500, map[string]string{"error": model.ErrCommon500.Error()})
		return
	}

	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=carousel_%d.zip", index))
	ctx.Data(200, "application/zip", archive)
}

func (h ReviewHandler) Decisions(ctx *ginext.Context) {
	var req model.ListRequest

	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse query-params"})
		return
	}

	res, err := h.service.Decisions(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}
