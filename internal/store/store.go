package store

import (
	"iter"
	"sync"

	"github.com/erauner12/propsync/internal/entity"
)

// Store is an ordered, id-keyed collection of one entity type.
// Order is first-seen order: new ids append, updates keep their position.
// Safe for concurrent use; a view serialises its writers through one loop,
// the lock only lets readers on other goroutines take consistent copies.
type Store struct {
	mu      sync.RWMutex
	typ     entity.Type
	order   []int64
	items   map[int64]map[string]any
	version uint64
}

// New creates an empty store for one entity type
func New(t entity.Type) *Store {
	return &Store{
		typ:   t,
		items: make(map[int64]map[string]any),
	}
}

// Type returns the entity type held by the store
func (s *Store) Type() entity.Type {
	return s.typ
}

// Upsert inserts the record at the end if id is new, otherwise merges attrs
// into the existing record in place. Reports whether the id was new.
func (s *Store) Upsert(id int64, attrs map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version++
	if cur, ok := s.items[id]; ok {
		for k, v := range attrs {
			cur[k] = v
		}
		return false
	}
	s.items[id] = entity.CloneAttrs(attrs)
	s.order = append(s.order, id)
	return true
}

// Remove deletes the record if present. Removing an unknown id is a no-op.
func (s *Store) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, cur := range s.order {
		if cur == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	s.version++
	return true
}

// ReplaceAll swaps the whole collection. Duplicate ids keep their first
// position and their last attributes.
func (s *Store) ReplaceAll(records []entity.Entity) {
	order := make([]int64, 0, len(records))
	items := make(map[int64]map[string]any, len(records))
	for _, r := range records {
		if _, seen := items[r.ID]; !seen {
			order = append(order, r.ID)
		}
		items[r.ID] = entity.CloneAttrs(r.Attrs)
	}

	s.mu.Lock()
	s.order = order
	s.items = items
	s.version++
	s.mu.Unlock()
}

// Get returns a copy of one record
func (s *Store) Get(id int64) (entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attrs, ok := s.items[id]
	if !ok {
		return entity.Entity{}, false
	}
	return entity.Entity{Type: s.typ, ID: id, Attrs: entity.CloneAttrs(attrs)}, true
}

// FindAll returns the ids of every record, in store order, whose field
// equals value
func (s *Store) FindAll(field string, value any) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for _, id := range s.order {
		if v, ok := s.items[id][field]; ok && entity.SameValue(v, value) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Len returns the number of records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Version increments on every mutation
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// List returns the records in store order. The sequence iterates over a copy
// taken when List is called, so it can be ranged over repeatedly and is not
// affected by later mutations.
func (s *Store) List() iter.Seq[entity.Entity] {
	s.mu.RLock()
	snapshot := make([]entity.Entity, 0, len(s.order))
	for _, id := range s.order {
		snapshot = append(snapshot, entity.Entity{Type: s.typ, ID: id, Attrs: entity.CloneAttrs(s.items[id])})
	}
	s.mu.RUnlock()

	return func(yield func(entity.Entity) bool) {
		for _, e := range snapshot {
			e.Attrs = entity.CloneAttrs(e.Attrs)
			if !yield(e) {
				return
			}
		}
	}
}

// Slice collects List into a slice
func (s *Store) Slice() []entity.Entity {
	out := make([]entity.Entity, 0, s.Len())
	for e := range s.List() {
		out = append(out, e)
	}
	return out
}
