package collection

import "slices"

// InsertMode selects where a new identity lands in a Dict's sequence.
type InsertMode int

const (
	Append InsertMode = iota
	Prepend
)

// Dict keeps items in a caller-chosen positional order alongside an
// identity lookup. The two views always agree: every sequence entry has
// exactly one lookup entry under the item's current identity.
type Dict[T any] struct {
	seq   []string
	items map[string]T
	id    func(T) string
}

// NewDict creates an ordered dictionary keyed by the given identity
// function.
func NewDict[T any](id func(T) string) *Dict[T] {
	return &Dict[T]{
		items: make(map[string]T),
		id:    id,
	}
}

// Get returns the item stored under id.
func (d *Dict[T]) Get(id string) (T, bool) {
	v, ok := d.items[id]
	return v, ok
}

// Upsert overwrites an existing identity in place, keeping its position
// and ignoring mode. A new identity is inserted at the front (Prepend) or
// back (Append) of the sequence.
func (d *Dict[T]) Upsert(item T, mode InsertMode) {
	id := d.id(item)
	if _, ok := d.items[id]; ok {
		d.items[id] = item
		return
	}
	if mode == Prepend {
		d.seq = slices.Insert(d.seq, 0, id)
	} else {
		d.seq = append(d.seq, id)
	}
	d.items[id] = item
}

// Update replaces the item with the same identity in place. It never
// inserts; the return value reports whether the identity was found.
func (d *Dict[T]) Update(item T) bool {
	id := d.id(item)
	if _, ok := d.items[id]; !ok {
		return false
	}
	d.items[id] = item
	return true
}

// Apply mutates the item stored under id via fn. If the mutation changed
// the item's identity, the lookup and sequence entries are rebuilt under
// the new one; renaming onto an identity that already exists overwrites
// that item and keeps its position, dropping the renamed item's slot.
// Reports whether an item was found.
func (d *Dict[T]) Apply(id string, fn func(*T)) bool {
	item, ok := d.items[id]
	if !ok {
		return false
	}
	fn(&item)
	newID := d.id(item)
	if newID != id {
		delete(d.items, id)
		_, taken := d.items[newID]
		if i := slices.Index(d.seq, id); i >= 0 {
			if taken {
				d.seq = slices.Delete(d.seq, i, i+1)
			} else {
				d.seq[i] = newID
			}
		}
	}
	d.items[newID] = item
	return true
}

// Remove deletes the entry matching item's identity.
func (d *Dict[T]) Remove(item T) bool {
	return d.RemoveID(d.id(item))
}

// RemoveID deletes the entry stored under id.
func (d *Dict[T]) RemoveID(id string) bool {
	if _, ok := d.items[id]; !ok {
		return false
	}
	delete(d.items, id)
	if i := slices.Index(d.seq, id); i >= 0 {
		d.seq = slices.Delete(d.seq, i, i+1)
	}
	return true
}

// Filter retains only items satisfying keep, dropping sequence and lookup
// entries for the rest in a single pass.
func (d *Dict[T]) Filter(keep func(T) bool) {
	kept := d.seq[:0]
	for _, id := range d.seq {
		if keep(d.items[id]) {
			kept = append(kept, id)
		} else {
			delete(d.items, id)
		}
	}
	d.seq = kept
}

// Clear empties both views.
func (d *Dict[T]) Clear() {
	d.seq = nil
	d.items = make(map[string]T)
}

// Len returns the number of items.
func (d *Dict[T]) Len() int { return len(d.seq) }

// All returns the items in positional order.
func (d *Dict[T]) All() []T {
	out := make([]T, 0, len(d.seq))
	for _, id := range d.seq {
		out = append(out, d.items[id])
	}
	return out
}

// Snapshot returns the items in positional order for serialization.
func (d *Dict[T]) Snapshot() []T { return d.All() }

// Restore replaces the contents with items, rebuilding the lookup from
// scratch. Later duplicates of an identity are dropped.
func (d *Dict[T]) Restore(items []T) {
	d.seq = make([]string, 0, len(items))
	d.items = make(map[string]T, len(items))
	for _, item := range items {
		id := d.id(item)
		if _, ok := d.items[id]; ok {
			continue
		}
		d.seq = append(d.seq, id)
		d.items[id] = item
	}
}
