package live

import (
	"context"
	"fmt"

	"github.com/erauner12/propsync/internal/entity"
)

// Create posts a new record and, once the API accepts it, adds the server's
// copy to the store. On failure the error is returned and the store is untouched.
func (v *View) Create(ctx context.Context, t entity.Type, payload map[string]any) (entity.Entity, error) {
	coll, ok := v.mutators[t]
	if !ok {
		return entity.Entity{}, ErrNotInScope
	}

	created, err := coll.Create(ctx, payload)
	if err != nil {
		return entity.Entity{}, err
	}
	e, err := entity.FromAttrs(t, created)
	if err != nil {
		return entity.Entity{}, fmt.Errorf("create %s: server response: %w", t, err)
	}

	return e, v.do(func() { v.applyLocal(e) })
}

// Update sends a replacement for one record and merges the server's copy into
// the store. A response without attributes falls back to the sent payload.
func (v *View) Update(ctx context.Context, t entity.Type, id int64, payload map[string]any) (entity.Entity, error) {
	coll, ok := v.mutators[t]
	if !ok {
		return entity.Entity{}, ErrNotInScope
	}

	updated, err := coll.Update(ctx, id, payload)
	if err != nil {
		return entity.Entity{}, err
	}
	if len(updated) == 0 {
		updated = entity.CloneAttrs(payload)
	}
	e := entity.Entity{Type: t, ID: id, Attrs: updated}

	return e, v.do(func() { v.applyLocal(e) })
}

// Delete removes a record through the API, then from the store
func (v *View) Delete(ctx context.Context, t entity.Type, id int64) error {
	coll, ok := v.mutators[t]
	if !ok {
		return ErrNotInScope
	}
	if err := coll.Delete(ctx, id); err != nil {
		return err
	}
	return v.do(func() {
		if v.stores[t].Remove(id) {
			v.notify()
		}
	})
}

// applyLocal follows the same scope rule as push events: a record that no
// longer passes the filter leaves the store. Runs on the event loop.
func (v *View) applyLocal(e entity.Entity) {
	st := v.stores[e.Type]
	rule, _ := v.rules.Rule(e.Type)

	merged := e.Attrs
	if prev, ok := st.Get(e.ID); ok {
		merged = prev.Attrs
		for k, val := range e.Attrs {
			merged[k] = val
		}
	}
	if !rule.Allows(merged) {
		if st.Remove(e.ID) {
			v.notify()
		}
		return
	}
	st.Upsert(e.ID, e.Attrs)
	v.notify()
}
