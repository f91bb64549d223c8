// Package model provides data-structs for internal app-usage
package model

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
	"github.com/disintegration/imaging"
)

type State string

const (
	StateQueued           State = "queued"
	StateCollecting       State = "collecting"
	StateAwaitingDecision State = "awaiting_decision"
)

//---------------------

// RefKind - тип ссылки на место хранения результатов
type RefKind uint8

const (
	RefSlot RefKind = iota + 1
	RefLink
)

// OwnerRef points at the place accepted artifacts are persisted:
// either a numbered storage slot or an opaque upload link.
type OwnerRef struct {
	Kind RefKind
	Slot uint64
	Link string
}

func SlotRef(n uint64) OwnerRef { return OwnerRef{Kind: RefSlot, Slot: n} }

func LinkRef(link string) OwnerRef { return OwnerRef{Kind: RefLink, Link: link} }

func (r OwnerRef) IsZero() bool { return r.Kind == 0 }

func (r OwnerRef) String() string {
	switch r.Kind {
	case RefSlot:
		return strconv.FormatUint(r.Slot, 10)
	case RefLink:
		return r.Link
	default:
		return ""
	}
}

// ParseOwnerRef - QR-код несет либо номер слота, либо ссылку на загрузку
func ParseOwnerRef(raw string) (OwnerRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return OwnerRef{}, ErrEmptyOwnerRef
	}
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return SlotRef(n), nil
	}
	return LinkRef(raw), nil
}

type ArtifactKind string

const (
	KindOriginal ArtifactKind = "original"
	KindAccepted ArtifactKind = "accepted"
)

// ArtifactRef - куда ложится артефакт. Key выдается задаче один раз, повторная загрузка перезаписывает тот же объект
type ArtifactRef struct {
	Owner OwnerRef
	Key   string
	Kind  ArtifactKind
}

//---------------------

type JobMeta struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	SubjectName string `json:"subject_name"`
	Category    string `json:"category"`
	Flag        bool   `json:"flag"`
}

// Job - сам объект задачи; счетчики и состояние держит движок
type Job struct {
	ID    uint64
	Key   string
	Owner OwnerRef
	Blob  *blob.Blob
	Meta  JobMeta
}

func (j Job) Artifact(kind ArtifactKind) ArtifactRef {
	return ArtifactRef{Owner: j.Owner, Key: j.Key, Kind: kind}
}

// Draw - одна выдача задачи воркеру
type Draw struct {
	Job       Job
	Remaining int
	LeaseEnd  time.Time
}

type PendingSummary struct {
	JobID uint64 `json:"job_id"`
	Ready int    `json:"ready"`
}

type CarouselEntry struct {
	Accepted *blob.Blob
	Original *blob.Blob
}

type EngineStats struct {
	Backlog    int
	Collecting int
	Awaiting   int
	Carousel   int
}

//---------------------

// AdmitData - Image читается один раз целиком; Seek нужен, чтобы проверить формат до буферизации
type AdmitData struct {
	Image    io.ReadSeeker
	OwnerRaw string
	Meta     JobMeta
}

type AdmitResult struct {
	JobID   uint64 `json:"job_id"`
	Backlog int    `json:"current_jobs"`
}

//---------------------

type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
)

// Decision - запись в журнале решений ревьюера
type Decision struct {
	ID        int64      `json:"id"`
	JobID     uint64     `json:"job_id"`
	OwnerRef  string     `json:"owner_ref"`
	Verdict   Verdict    `json:"verdict"`
	Choice    *int       `json:"choice,omitempty"`
	Meta      JobMeta    `json:"meta"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// BatchStatus - состояние фоновой генерации листа с QR-кодами
type BatchStatus struct {
	Total    int     `json:"total"`
	Progress float64 `json:"progress"`
	Running  bool    `json:"running"`
	Ready    bool    `json:"ready"`
	Error    string  `json:"error,omitempty"`
}

type ListRequest struct {
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
	Order string `form:"order"`
}

const (
	OrderASC  = "ascend"
	OrderDESC = "descend"
)

// ------------------

var (
	ErrUnknownJob        error = errors.New("job is unknown or not in the expected state")     // 404
	ErrInvalidChoice     error = errors.New("choice is out of the submitted results range")    // 400
	ErrStorage           error = errors.New("storage failed to persist accepted artifacts")    // 503
	ErrCapacityRejected  error = errors.New("job capacity reached, admission refused")         // 429
	ErrCommon500         error = errors.New("something went wrong. Try again later")           // 500
	ErrIncorrectQuery    error = errors.New("incorrect query parameters")                      // 400
	ErrIncorrectID       error = errors.New("incorrect job id")                                // 400
	ErrEmptySource       error = errors.New("empty/incorrect source image provided")           // 400
	ErrEmptyResult       error = errors.New("empty/incorrect result image provided")           // 400
	ErrUnsupportedFormat error = errors.New("unsupported image format")                        // 400
	ErrEmptyOwnerRef     error = errors.New("owner reference (qr content) is required")        // 400
	ErrUnknownCategory   error = errors.New("category is not supported")                       // 400
	ErrCarouselIndex     error = errors.New("carousel position doesn't exist")                 // 404
	ErrUnauthorized      error = errors.New("invalid or missing token")                        // 401
	ErrWrongPassword     error = errors.New("incorrect password")                              // 401
	ErrBatchRunning      error = errors.New("qr batch is already being generated")             // 409
	ErrBatchNotReady     error = errors.New("no generated qr sheet yet")                       // 404
)

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
)

var GetImageFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	GIF:  ".gif",
}

var GetCType = map[imaging.Format]string{
	imaging.JPEG: JPEG,
	imaging.GIF:  GIF,
	imaging.PNG:  PNG,
}
