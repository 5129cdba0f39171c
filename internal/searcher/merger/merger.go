// Package merger combines hit lists that are each already ordered by score
// descending and doc id ascending.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/executor"
)

// Merge performs a k-way merge of sorted hit lists. The result keeps the
// same order. A limit <= 0 returns every hit.
func Merge(lists [][]executor.Hit, limit int) []executor.Hit {
	return MergeFunc(lists, limit, func(h executor.Hit) executor.Hit { return h })
}

// MergeFunc merges lists of any element that carries a hit, so callers can
// keep per-list data attached to each hit through the merge.
func MergeFunc[T any](lists [][]T, limit int, hit func(T) executor.Hit) []T {
	total := 0
	h := &cursorHeap[T]{lists: lists, hit: hit}
	for i, list := range lists {
		total += len(list)
		if len(list) > 0 {
			h.cursors = append(h.cursors, cursor{list: i})
		}
	}
	if limit <= 0 || limit > total {
		limit = total
	}
	heap.Init(h)

	result := make([]T, 0, limit)
	for h.Len() > 0 && len(result) < limit {
		top := &h.cursors[0]
		result = append(result, lists[top.list][top.pos])
		top.pos++
		if top.pos == len(lists[top.list]) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return result
}

// Before reports whether a ranks ahead of b.
func Before(a, b executor.Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DocID != b.DocID {
		return a.DocID < b.DocID
	}
	return a.Key < b.Key
}

type cursor struct {
	list int
	pos  int
}

type cursorHeap[T any] struct {
	cursors []cursor
	lists   [][]T
	hit     func(T) executor.Hit
}

func (h cursorHeap[T]) Len() int { return len(h.cursors) }

func (h cursorHeap[T]) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	return Before(h.hit(h.lists[a.list][a.pos]), h.hit(h.lists[b.list][b.pos]))
}

func (h cursorHeap[T]) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *cursorHeap[T]) Push(x any) {
	h.cursors = append(h.cursors, x.(cursor))
}

func (h *cursorHeap[T]) Pop() any {
	old := h.cursors
	n := len(old)
	item := old[n-1]
	h.cursors = old[:n-1]
	return item
}

// Page slices hits to the window [offset, offset+limit). A limit <= 0 means
// no upper bound. The result is never nil.
func Page(hits []executor.Hit, offset, limit int) []executor.Hit {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(hits) {
		return []executor.Hit{}
	}
	end := len(hits)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return hits[offset:end]
}
