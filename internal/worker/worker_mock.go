package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

type mockAPI struct {
	loginFn  func(ctx context.Context) error
	fetchFn  func(ctx context.Context) (*Task, error)
	submitFn func(ctx context.Context, jobID uint64, data []byte, ctype string) error
}

func (m *mockAPI) Login(ctx context.Context) error {
	return m.loginFn(ctx)
}

func (m *mockAPI) FetchTask(ctx context.Context) (*Task, error) {
	return m.fetchFn(ctx)
}

func (m *mockAPI) SubmitResult(ctx context.Context, jobID uint64, data []byte, ctype string) error {
	return m.submitFn(ctx, jobID, data, ctype)
}

func testPNG() []byte {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
