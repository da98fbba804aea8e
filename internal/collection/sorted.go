package collection

import (
	"slices"
	"sort"
)

// Sorted is an identity-keyed collection that additionally maintains its
// members in the order defined by a caller-supplied comparator. The order
// index holds identifiers and is kept current incrementally: inserts use
// binary search, so All never re-sorts. The comparator must define a total
// order over members (break ties on identity) or relative order of equal
// members is unspecified.
type Sorted[T any] struct {
	order []string
	items map[string]T
	id    func(T) string
	cmp   func(a, b T) int
}

// NewSorted creates a sorted collection keyed by id and ordered by cmp.
func NewSorted[T any](id func(T) string, cmp func(a, b T) int) *Sorted[T] {
	return &Sorted[T]{
		items: make(map[string]T),
		id:    id,
		cmp:   cmp,
	}
}

// Get returns the member stored under id.
func (s *Sorted[T]) Get(id string) (T, bool) {
	v, ok := s.items[id]
	return v, ok
}

// InsertIfAbsent inserts only items whose identity is not already present
// and returns the subset actually inserted.
func (s *Sorted[T]) InsertIfAbsent(items ...T) []T {
	var inserted []T
	for _, item := range items {
		id := s.id(item)
		if _, ok := s.items[id]; ok {
			continue
		}
		s.items[id] = item
		s.insertOrdered(id, item)
		inserted = append(inserted, item)
	}
	return inserted
}

// Upsert inserts or replaces items, repositioning replaced members as
// needed.
func (s *Sorted[T]) Upsert(items ...T) {
	for _, item := range items {
		id := s.id(item)
		if _, ok := s.items[id]; ok {
			s.removeFromOrder(id)
		}
		s.items[id] = item
		s.insertOrdered(id, item)
	}
}

// Update applies an in-place mutation to the member stored under id and
// re-derives its sort position. Returns the mutated member.
func (s *Sorted[T]) Update(id string, fn func(*T)) (T, bool) {
	item, ok := s.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	s.removeFromOrder(id)
	fn(&item)
	s.items[id] = item
	s.insertOrdered(id, item)
	return item, true
}

// Delete removes the member stored under id.
func (s *Sorted[T]) Delete(id string) bool {
	if _, ok := s.items[id]; !ok {
		return false
	}
	s.removeFromOrder(id)
	delete(s.items, id)
	return true
}

// All returns the members in comparator order.
func (s *Sorted[T]) All() []T {
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Len returns the number of members.
func (s *Sorted[T]) Len() int { return len(s.items) }

// Clear empties the collection.
func (s *Sorted[T]) Clear() {
	s.order = nil
	s.items = make(map[string]T)
}

// Snapshot returns the members in comparator order for serialization.
func (s *Sorted[T]) Snapshot() []T { return s.All() }

// Restore replaces the contents with items and re-sorts from scratch
// rather than trusting the snapshot's order. Later duplicates of an
// identity are dropped.
func (s *Sorted[T]) Restore(items []T) {
	s.items = make(map[string]T, len(items))
	s.order = s.order[:0]
	for _, item := range items {
		id := s.id(item)
		if _, ok := s.items[id]; ok {
			continue
		}
		s.items[id] = item
		s.order = append(s.order, id)
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		return s.cmp(s.items[s.order[i]], s.items[s.order[j]]) < 0
	})
}

func (s *Sorted[T]) insertOrdered(id string, item T) {
	i := sort.Search(len(s.order), func(i int) bool {
		return s.cmp(s.items[s.order[i]], item) >= 0
	})
	s.order = slices.Insert(s.order, i, id)
}

func (s *Sorted[T]) removeFromOrder(id string) {
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
}
