package engine

import (
	"sort"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/blob"
)

// pendingEntry накапливает результаты одного цикла задачи
type pendingEntry struct {
	rec      *record
	results  []*blob.Blob
	leases   []time.Time // дедлайны выданных, но еще не сданных draw, по порядку выдачи
	complete bool
}

type aggregationTable struct {
	entries map[uint64]*pendingEntry
}

func newAggregationTable() *aggregationTable {
	return &aggregationTable{entries: make(map[uint64]*pendingEntry)}
}

func (t *aggregationTable) get(id uint64) *pendingEntry {
	return t.entries[id]
}

// ensure создает запись при первой выдаче задачи в текущем цикле
func (t *aggregationTable) ensure(r *record) *pendingEntry {
	e, ok := t.entries[r.job.ID]
	if !ok {
		e = &pendingEntry{rec: r}
		t.entries[r.job.ID] = e
	}
	return e
}

func (t *aggregationTable) delete(id uint64) {
	delete(t.entries, id)
}

// completed returns entries awaiting a decision ordered by job id
func (t *aggregationTable) completed() []*pendingEntry {
	res := make([]*pendingEntry, 0)
	for _, e := range t.entries {
		if e.complete {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].rec.job.ID < res[j].rec.job.ID })
	return res
}

func (t *aggregationTable) counts() (collecting, awaiting int) {
	for _, e := range t.entries {
		if e.complete {
			awaiting++
		} else {
			collecting++
		}
	}
	return collecting, awaiting
}

// popLease снимает самый старый lease: какой именно draw прислал результат, неизвестно
func (e *pendingEntry) popLease() {
	if len(e.leases) > 0 {
		e.leases = e.leases[1:]
	}
}

// dropLease снимает lease конкретной выдачи; false - его уже нет (истек и возвращен)
func (e *pendingEntry) dropLease(deadline time.Time) bool {
	for i, d := range e.leases {
		if d.Equal(deadline) {
			e.leases = append(e.leases[:i], e.leases[i+1:]...)
			return true
		}
	}
	return false
}

// expire drops leases with deadline before now and returns how many were dropped
func (e *pendingEntry) expire(now time.Time) int {
	kept := e.leases[:0]
	expired := 0
	for _, d := range e.leases {
		if d.Before(now) {
			expired++
			continue
		}
		kept = append(kept, d)
	}
	e.leases = kept
	return expired
}
