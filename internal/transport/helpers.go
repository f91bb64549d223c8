package transport

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/wb-go/wbf/ginext"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrUnknownJob),
		errors.Is(err, model.ErrCarouselIndex),
		errors.Is(err, model.ErrBatchNotReady):
		return 404
	case errors.Is(err, model.ErrBatchRunning):
		return 409
	case errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrWrongPassword):
		return 401
	case errors.Is(err, model.ErrCapacityRejected):
		return 429
	case errors.Is(err, model.ErrStorage):
		return 503
	case errors.Is(err, model.ErrInvalidChoice),
		errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrEmptyResult),
		errors.Is(err, model.ErrEmptyOwnerRef),
		errors.Is(err, model.ErrUnknownCategory),
		errors.Is(err, model.ErrUnsupportedFormat):
		return 400
	default:
		return 500
	}
}

func closeFileFlow(res io.Closer) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		log.Println("Handler failed to close fileflow:", err)
	}
}

func parseJobID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, model.ErrIncorrectID
	}
	return id, nil
}

// formValue - старые клиенты шлют поля под прежними именами
func formValue(ctx *ginext.Context, name, legacy string) string {
	if v := ctx.PostForm(name); v != "" {
		return v
	}
	return ctx.PostForm(legacy)
}

func parseFlag(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func baseURL(ctx *ginext.Context) string {
	scheme := "http"
	if ctx.Request.TLS != nil {
		scheme = "https"
	}
	if p := ctx.GetHeader("X-Forwarded-Proto"); p != "" {
		scheme = p
	}
	return scheme + "://" + ctx.Request.Host
}

func zipPair(accepted, original []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, f := range []struct {
		name string
		data []byte
	}{
		{"accepted.png", accepted},
		{"original.png", original},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
