// Package collection provides the keyed in-memory containers backing the
// sync store: a bounded repository, an ordered dictionary and a sorted
// keyed collection. Entity data lives only in each container's identity
// map; positional and sorted views hold identifier strings.
package collection

import (
	"reflect"
	"slices"
)

// DefaultRepoCapacity is the soft cap applied when NewRepo is given a
// non-positive capacity.
const DefaultRepoCapacity = 1000

// Repo is an identity-keyed cache with a soft capacity. When an upsert
// pushes it past capacity, the oldest half of the entries by first
// insertion is dropped in one batch. This is a coarse FIFO trim, not LRU:
// eviction cost is O(n) but it runs at most once per capacity/2 inserts.
type Repo[T any] struct {
	capacity int
	order    []string
	items    map[string]T
}

// NewRepo creates a repository with the given soft capacity.
func NewRepo[T any](capacity int) *Repo[T] {
	if capacity <= 0 {
		capacity = DefaultRepoCapacity
	}
	return &Repo[T]{
		capacity: capacity,
		items:    make(map[string]T),
	}
}

// Get returns the record stored under id. Absence is a normal outcome.
func (r *Repo[T]) Get(id string) (T, bool) {
	v, ok := r.items[id]
	return v, ok
}

// Upsert stores record under id. Records are held by value, so later
// mutation of the caller's copy does not reach the cache. Re-upserting an
// existing id keeps its original insertion position.
func (r *Repo[T]) Upsert(id string, record T) {
	if _, ok := r.items[id]; !ok {
		r.order = append(r.order, id)
	}
	r.items[id] = record
	if len(r.order) > r.capacity {
		r.evictOldest()
	}
}

func (r *Repo[T]) evictOldest() {
	drop := len(r.order) / 2
	for _, id := range r.order[:drop] {
		delete(r.items, id)
	}
	r.order = slices.Delete(r.order, 0, drop)
}

// Delete removes the record stored under id and reports whether a removal
// occurred.
func (r *Repo[T]) Delete(id string) bool {
	if _, ok := r.items[id]; !ok {
		return false
	}
	delete(r.items, id)
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
	return true
}

// Len returns the current size.
func (r *Repo[T]) Len() int { return len(r.items) }

// All returns the records in first-insertion order.
func (r *Repo[T]) All() []T {
	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

// FindByField scans for records whose exported struct field name equals
// value. Matching uses reflect.DeepEqual; results come back in insertion
// order.
func (r *Repo[T]) FindByField(name string, value any) []T {
	var out []T
	for _, id := range r.order {
		item := r.items[id]
		rv := reflect.ValueOf(item)
		if rv.Kind() == reflect.Pointer {
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct {
			continue
		}
		f := rv.FieldByName(name)
		if f.IsValid() && f.CanInterface() && reflect.DeepEqual(f.Interface(), value) {
			out = append(out, item)
		}
	}
	return out
}
