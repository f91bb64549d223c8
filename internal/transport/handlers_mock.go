package transport

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/gin-gonic/gin"
)

type mockReviewService struct {
	issueTokenFn   func(ctx context.Context, password string) (string, time.Time, error)
	categoriesFn   func() []string
	resultsPerJob  int
	admitFn        func(ctx context.Context, d *model.AdmitData) (*model.AdmitResult, error)
	allocateSlotFn func(ctx context.Context) (model.OwnerRef, error)
	startQRFn      func(ctx context.Context, n int) error
	qrStatus       model.BatchStatus
	qrSheetFn      func(ctx context.Context) ([]byte, error)
	dispatchFn     func(ctx context.Context) (*model.Draw, bool)
	returnDrawFn   func(ctx context.Context, d *model.Draw)
	openDrawFn     func(ctx context.Context, d *model.Draw) (blob.ReadSeekCloser, error)
	submitFn       func(ctx context.Context, id uint64, r io.Reader) error
	listAwaitingFn func(ctx context.Context) []model.PendingSummary
	loadResultFn   func(ctx context.Context, id uint64, option int) (blob.ReadSeekCloser, string, error)
	confirmFn      func(ctx context.Context, id uint64, choice int) error
	rejectFn       func(ctx context.Context, id uint64) error
	carouselLenFn  func(ctx context.Context) int
	carouselItemFn func(ctx context.Context, index int) ([]byte, []byte, error)
	decisionsFn    func(ctx context.Context, req *model.ListRequest) ([]model.Decision, error)
}

func (m *mockReviewService) IssueToken(ctx context.Context, password string) (string, time.Time, error) {
	return m.issueTokenFn(ctx, password)
}

func (m *mockReviewService) Categories() []string {
	return m.categoriesFn()
}

func (m *mockReviewService) ResultsPerJob() int {
	return m.resultsPerJob
}

func (m *mockReviewService) Admit(ctx context.Context, d *model.AdmitData) (*model.AdmitResult, error) {
	return m.admitFn(ctx, d)
}

func (m *mockReviewService) AllocateSlot(ctx context.Context) (model.OwnerRef, error) {
	return m.allocateSlotFn(ctx)
}

func (m *mockReviewService) StartQRBatch(ctx context.Context, n int) error {
	return m.startQRFn(ctx, n)
}

func (m *mockReviewService) QRStatus(ctx context.Context) model.BatchStatus {
	return m.qrStatus
}

func (m *mockReviewService) QRSheet(ctx context.Context) ([]byte, error) {
	return m.qrSheetFn(ctx)
}

func (m *mockReviewService) Dispatch(ctx context.Context) (*model.Draw, bool) {
	return m.dispatchFn(ctx)
}

func (m *mockReviewService) ReturnDraw(ctx context.Context, d *model.Draw) {
	m.returnDrawFn(ctx, d)
}

func (m *mockReviewService) OpenDraw(ctx context.Context, d *model.Draw) (blob.ReadSeekCloser, error) {
	return m.openDrawFn(ctx, d)
}

func (m *mockReviewService) SubmitResult(ctx context.Context, id uint64, r io.Reader) error {
	return m.submitFn(ctx, id, r)
}

func (m *mockReviewService) ListAwaiting(ctx context.Context) []model.PendingSummary {
	return m.listAwaitingFn(ctx)
}

func (m *mockReviewService) LoadResult(ctx context.Context, id uint64, option int) (blob.ReadSeekCloser, string, error) {
	return m.loadResultFn(ctx, id, option)
}

func (m *mockReviewService) Confirm(ctx context.Context, id uint64, choice int) error {
	return m.confirmFn(ctx, id, choice)
}

func (m *mockReviewService) Reject(ctx context.Context, id uint64) error {
	return m.rejectFn(ctx, id)
}

func (m *mockReviewService) CarouselLen(ctx context.Context) int {
	return m.carouselLenFn(ctx)
}

func (m *mockReviewService) CarouselItem(ctx context.Context, index int) ([]byte, []byte, error) {
	return m.carouselItemFn(ctx, index)
}

func (m *mockReviewService) Decisions(ctx context.Context, req *model.ListRequest) ([]model.Decision, error) {
	return m.decisionsFn(ctx, req)
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

func newReadSeekCloser(data string) blob.ReadSeekCloser {
	return readSeekNopCloser{bytes.NewReader([]byte(data))}
}

func init() {
	gin.SetMode(gin.TestMode)
}
