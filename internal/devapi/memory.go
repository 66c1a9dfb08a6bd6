package devapi

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/erauner12/propsync/internal/entity"
)

type memCollection struct {
	order []int64
	items map[int64]map[string]any
}

// MemoryRepo keeps everything in process memory
type MemoryRepo struct {
	mu       sync.RWMutex
	next     int64
	colls    map[entity.Type]*memCollection
	activity []map[string]any
	now      func() time.Time
}

// NewMemoryRepo creates an empty repository
func NewMemoryRepo() *MemoryRepo {
	r := &MemoryRepo{colls: make(map[entity.Type]*memCollection), now: time.Now}
	for _, t := range entity.All {
		r.colls[t] = &memCollection{items: make(map[int64]map[string]any)}
	}
	return r
}

func (r *MemoryRepo) List(_ context.Context, t entity.Type) ([]map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := r.colls[t]
	out := make([]map[string]any, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, maps.Clone(c.items[id]))
	}
	return out, nil
}

func (r *MemoryRepo) Get(_ context.Context, t entity.Type, id int64) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.colls[t].items[id]
	if !ok {
		return nil, ErrNotFound{Type: t, ID: id}
	}
	return maps.Clone(rec), nil
}

func (r *MemoryRepo) Create(_ context.Context, t entity.Type, attrs map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	rec := writable(attrs)
	rec["id"] = r.next
	rec["created_at"] = r.now().UTC().Format(time.RFC3339Nano)

	c := r.colls[t]
	c.items[r.next] = rec
	c.order = append(c.order, r.next)
	return maps.Clone(rec), nil
}

func (r *MemoryRepo) Update(_ context.Context, t entity.Type, id int64, attrs map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.colls[t].items[id]
	if !ok {
		return nil, ErrNotFound{Type: t, ID: id}
	}
	maps.Copy(rec, writable(attrs))
	return maps.Clone(rec), nil
}

func (r *MemoryRepo) Delete(_ context.Context, t entity.Type, id int64) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.colls[t]
	rec, ok := c.items[id]
	if !ok {
		return nil, ErrNotFound{Type: t, ID: id}
	}
	delete(c.items, id)
	c.order = slices.DeleteFunc(c.order, func(cur int64) bool { return cur == id })
	return rec, nil
}

func (r *MemoryRepo) FindBy(_ context.Context, t entity.Type, field string, value any) (map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := r.colls[t]
	for _, id := range c.order {
		if v, ok := c.items[id][field]; ok && entity.SameValue(v, value) {
			return maps.Clone(c.items[id]), nil
		}
	}
	return nil, ErrNotFound{Type: t}
}

// Activity returns the newest entries first
func (r *MemoryRepo) Activity(_ context.Context, limit int) ([]map[string]any, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]map[string]any, 0, limit)
	for i := len(r.activity) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, maps.Clone(r.activity[i]))
	}
	return out, nil
}

func (r *MemoryRepo) AddActivity(_ context.Context, typ, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activity = append(r.activity, map[string]any{
		"id":         int64(len(r.activity) + 1),
		"type":       typ,
		"message":    message,
		"created_at": r.now().UTC().Format(time.RFC3339Nano),
	})
	return nil
}
