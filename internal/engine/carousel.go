package engine

import (
	"fmt"
	"iter"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/hashicorp/golang-lru/simplelru"
)

// carousel держит последние принятые результаты. Ключи - возрастающий номер вставки,
// поэтому порядок LRU совпадает с порядком принятия. Не потокобезопасен, защищается локом движка.
// Вытесненные записи просто забываются: снимки, сделанные раньше, продолжают их читать.
type carousel struct {
	lru *simplelru.LRU
	seq uint64
}

func newCarousel(size int) (*carousel, error) {
	lru, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, fmt.Errorf("create carousel: %w", err)
	}
	return &carousel{lru: lru}, nil
}

func (c *carousel) push(e model.CarouselEntry) {
	c.seq++
	c.lru.Add(c.seq, e)
}

func (c *carousel) snapshot() Snapshot {
	keys := c.lru.Keys() // от старых к новым
	entries := make([]model.CarouselEntry, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		v, ok := c.lru.Peek(keys[i])
		if !ok {
			continue
		}
		entries = append(entries, v.(model.CarouselEntry))
	}
	return Snapshot{entries: entries}
}

func (c *carousel) Len() int {
	return c.lru.Len()
}

// Snapshot is a fixed view of the carousel, most recent first.
// Positions are only meaningful within one snapshot.
type Snapshot struct {
	entries []model.CarouselEntry
}

func (s Snapshot) Len() int {
	return len(s.entries)
}

func (s Snapshot) At(i int) (model.CarouselEntry, bool) {
	if i < 0 || i >= len(s.entries) {
		return model.CarouselEntry{}, false
	}
	return s.entries[i], true
}

// All iterates head to tail; the sequence can be ranged over any number of times
func (s Snapshot) All() iter.Seq2[int, model.CarouselEntry] {
	return func(yield func(int, model.CarouselEntry) bool) {
		for i, e := range s.entries {
			if !yield(i, e) {
				return
			}
		}
	}
}
