package engine

import (
	"container/list"

	"github.com/UnendingLoop/PhotoReview/internal/model"
)

// record - живая задача движка; elem не nil, пока задача стоит в очереди
type record struct {
	job       model.Job
	state     model.State
	remaining int
	elem      *list.Element
	deciding  bool
}

// admissionQueue - новые задачи кладем в голову, выдаем с хвоста (самые старые)
type admissionQueue struct {
	l *list.List
}

func newAdmissionQueue() *admissionQueue {
	return &admissionQueue{l: list.New()}
}

func (q *admissionQueue) pushHead(r *record) {
	r.elem = q.l.PushFront(r)
}

// pushTail ставит задачу первой на выдачу
func (q *admissionQueue) pushTail(r *record) {
	r.elem = q.l.PushBack(r)
}

func (q *admissionQueue) tail() *record {
	e := q.l.Back()
	if e == nil {
		return nil
	}
	return e.Value.(*record)
}

func (q *admissionQueue) remove(r *record) {
	if r.elem == nil {
		return
	}
	q.l.Remove(r.elem)
	r.elem = nil
}

func (q *admissionQueue) Len() int {
	return q.l.Len()
}
