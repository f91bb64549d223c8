// Package imageproc provides the candidate transforms the reference worker produces for one draw
package imageproc

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

type Variant string

const (
	FlipVertical   Variant = "flip_v"
	FlipHorizontal Variant = "flip_h"
	Rotate90       Variant = "rotate_90"
	Invert         Variant = "invert"
)

var variantOrder = []Variant{FlipVertical, FlipHorizontal, Rotate90, Invert}

// ForDraw выбирает вариант для n-й выдачи задачи, по кругу
func ForDraw(n int) Variant {
	if n < 0 {
		n = -n
	}
	return variantOrder[n%len(variantOrder)]
}

// Apply decodes r, applies v and encodes the result in format
func Apply(r io.Reader, v Variant, format imaging.Format) (io.Reader, int64, error) {
	if r == nil {
		return nil, 0, errors.New("nil-reader provided")
	}

	img, err := imaging.Decode(r)
	if err != nil {
		return nil, 0, fmt.Errorf("decode image: %w", err)
	}

	var out image.Image
	switch v {
	case FlipVertical:
		out = imaging.FlipV(img)
	case FlipHorizontal:
		out = imaging.FlipH(img)
	case Rotate90:
		out = imaging.Rotate90(img)
	case Invert:
		out = imaging.Invert(img)
	default:
		return nil, 0, fmt.Errorf("unknown variant %q", v)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format); err != nil {
		return nil, 0, fmt.Errorf("encode result image: %w", err)
	}
	return &buf, int64(buf.Len()), nil
}

// DetectFormat проверяет, что байты - картинка поддерживаемого формата
func DetectFormat(data []byte) (imaging.Format, error) {
	return DetectFormatReader(bytes.NewReader(data))
}

// DetectFormatReader читает только заголовок картинки и возвращает r в начало
func DetectFormatReader(r io.ReadSeeker) (imaging.Format, error) {
	if r == nil {
		return -1, errors.New("nil-reader provided")
	}

	_, f, err := image.DecodeConfig(r)
	if _, sErr := r.Seek(0, io.SeekStart); sErr != nil && err == nil {
		err = fmt.Errorf("rewind image: %w", sErr)
	}
	if err != nil {
		return -1, err
	}

	format, err := imaging.FormatFromExtension(f)
	if err != nil {
		return -1, err
	}

	switch format {
	case imaging.PNG, imaging.JPEG, imaging.GIF:
		return format, nil
	default:
		return -1, fmt.Errorf("unsupported format %q", f)
	}
}
