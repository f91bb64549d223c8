// Package qrsheet mints batches of storage slots and prints their QR codes on an A4 sheet.
// One batch runs at a time; the last finished sheet stays available for download.
package qrsheet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
	"github.com/wb-go/wbf/zlog"
)

const MaxBatch = 1000

// раскладка листа в мм
const (
	cols    = 5
	rows    = 7
	perPage = cols * rows
	cell    = 36.0
	qrSize  = 30.0
	marginX = 15.0
	marginY = 30.0
	qrPx    = 256
)

// SlotProvisioner - контракт выделения слота под один QR-код
type SlotProvisioner interface {
	AllocateSlot(ctx context.Context) (model.OwnerRef, error)
}

type Generator struct {
	slots   SlotProvisioner
	storage string
	now     func() time.Time

	mu     sync.Mutex
	status model.BatchStatus
	sheet  []byte
}

func NewGenerator(slots SlotProvisioner, storageName string) *Generator {
	return &Generator{slots: slots, storage: storageName, now: time.Now}
}

// Start запускает генерацию в фоне. Отмена ctx прерывает выделение слотов.
func (g *Generator) Start(ctx context.Context, n int) error {
	if n < 1 || n > MaxBatch {
		return fmt.Errorf("%w: batch size must be within 1..%d, got %d", model.ErrIncorrectQuery, MaxBatch, n)
	}

	g.mu.Lock()
	if g.status.Running {
		g.mu.Unlock()
		return model.ErrBatchRunning
	}
	g.status = model.BatchStatus{Total: n, Running: true}
	g.mu.Unlock()

	go g.run(ctx, n)
	return nil
}

func (g *Generator) Status() model.BatchStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Sheet returns the PDF of the last finished batch
func (g *Generator) Sheet() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sheet == nil {
		return nil, model.ErrBatchNotReady
	}
	return g.sheet, nil
}

func (g *Generator) run(ctx context.Context, n int) {
	sheet, err := g.build(ctx, n)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.status.Running = false
	if err != nil {
		zlog.Logger.Error().Err(err).Int("total", n).Msg("QR batch failed")
		g.status.Error = err.Error()
		return
	}
	g.sheet = sheet
	g.status.Progress = 100
	g.status.Ready = true
	zlog.Logger.Info().Int("total", n).Msg("QR batch ready")
}

// build: первая половина прогресса - выделение слотов, вторая - отрисовка
func (g *Generator) build(ctx context.Context, n int) ([]byte, error) {
	refs := make([]model.OwnerRef, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref, err := g.slots.AllocateSlot(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocate slot %d of %d: %w", i+1, n, err)
		}
		refs = append(refs, ref)
		g.setProgress(float64(i+1) / float64(n) * 50)
	}

	sheet, _, err := Render(refs, g.now(), g.storage, func(done int) {
		g.setProgress(50 + float64(done)/float64(n)*50)
	})
	return sheet, err
}

func (g *Generator) setProgress(p float64) {
	g.mu.Lock()
	g.status.Progress = p
	g.mu.Unlock()
}

// Render prints one QR code per ref, returns the PDF and the number of pages
func Render(refs []model.OwnerRef, date time.Time, storage string, onItem func(done int)) ([]byte, int, error) {
	if len(refs) == 0 {
		return nil, 0, errors.New("nothing to render")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Storage slots", true)
	pdf.SetCreationDate(date)
	pdf.SetFont("Helvetica", "", 9)

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	for i, ref := range refs {
		if i%perPage == 0 {
			pdf.AddPage()
			drawHeader(pdf, date, storage)
		}

		png, err := qrcode.Encode(ref.String(), qrcode.Low, qrPx)
		if err != nil {
			return nil, 0, fmt.Errorf("encode qr for %q: %w", ref.String(), err)
		}
		name := "qr-" + strconv.Itoa(i)
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(png))

		pos := i % perPage
		x := marginX + float64(pos%cols)*cell
		y := marginY + float64(pos/cols)*cell
		pdf.Rect(x, y, cell, cell, "D")
		pdf.ImageOptions(name, x+(cell-qrSize)/2, y+1, qrSize, qrSize, false, opts, 0, "")
		pdf.SetXY(x, y+qrSize+1)
		pdf.CellFormat(cell, 4, ref.String(), "", 0, "C", false, 0, "")

		if onItem != nil {
			onItem(i + 1)
		}
	}

	pages := pdf.PageNo()
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), pages, nil
}

func drawHeader(pdf *fpdf.Fpdf, date time.Time, storage string) {
	pdf.SetXY(marginX, 10)
	pdf.CellFormat(cols*cell, 5, "Each QR code below points at an individual storage location", "", 1, "C", false, 0, "")
	pdf.SetX(marginX)
	pdf.CellFormat(cols*cell, 5, "where the owners can view and download their results.", "", 1, "C", false, 0, "")
	pdf.SetX(marginX)
	pdf.CellFormat(cols*cell/2, 5, "Date: "+date.Format("2006-01-02"), "", 0, "L", false, 0, "")
	pdf.CellFormat(cols*cell/2, 5, "Storage: "+storage, "", 1, "R", false, 0, "")
}
