// Package blob provides an immutable image buffer kept in memory or spooled to a temp file
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"sync"
)

var ErrReleased = errors.New("blob already released")

// ReadSeekCloser - то, что отдаем наружу для чтения
type ReadSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// Blob - неизменяемый буфер с картинкой. Данные либо в памяти, либо в temp-файле,
// если размер превысил порог Spooler'а.
type Blob struct {
	mu          sync.RWMutex
	data        []byte
	path        string
	size        int64
	contentType string
	released    bool
}

// Spooler creates blobs, keeping at most Threshold bytes in memory per blob
type Spooler struct {
	Threshold int64
	Dir       string
}

const DefaultThreshold int64 = 1 << 20

func (s Spooler) threshold() int64 {
	if s.Threshold <= 0 {
		return DefaultThreshold
	}
	return s.Threshold
}

// New reads r until EOF
func (s Spooler) New(r io.Reader) (*Blob, error) {
	if r == nil {
		return nil, errors.New("nil reader passed to blob.New")
	}

	limit := s.threshold()
	head, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read blob head: %w", err)
	}
	if len(head) == 0 {
		return nil, errors.New("empty blob")
	}

	b := &Blob{contentType: http.DetectContentType(head)}

	// влезло в память - на диск не пишем
	if int64(len(head)) <= limit {
		b.data = head
		b.size = int64(len(head))
		return b, nil
	}

	f, err := os.CreateTemp(s.Dir, "blob-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	n, err := io.Copy(f, io.MultiReader(bytes.NewReader(head), r))
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("spool blob to disk: %w", err)
	}

	b.path = f.Name()
	b.size = n
	// без явного Release файл удаляется, когда на блоб больше никто не ссылается
	runtime.AddCleanup(b, removeSpoolFile, b.path)
	return b, nil
}

// FromBytes - то же, что New, для уже прочитанных байтов
func (s Spooler) FromBytes(data []byte) (*Blob, error) {
	return s.New(bytes.NewReader(data))
}

func (b *Blob) Size() int64 {
	return b.size
}

func (b *Blob) ContentType() string {
	return b.contentType
}

// Spooled reports whether the bytes live on disk
func (b *Blob) Spooled() bool {
	return b.path != ""
}

// Open returns an independent reader positioned at the start. Readers opened
// before Release keep working until closed.
func (b *Blob) Open() (ReadSeekCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.released {
		return nil, ErrReleased
	}
	if b.path == "" {
		return nopCloser{bytes.NewReader(b.data)}, nil
	}
	f, err := os.Open(b.path)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Bytes reads the whole blob into memory
func (b *Blob) Bytes() ([]byte, error) {
	r, err := b.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Release drops the bytes right away. Repeated calls are no-ops. Blobs that are never
// released are reclaimed once unreachable.
func (b *Blob) Release() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return nil
	}
	b.released = true
	b.data = nil
	if b.path != "" {
		if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove spool file %q: %w", b.path, err)
		}
	}
	return nil
}

func removeSpoolFile(path string) {
	_ = os.Remove(path)
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
