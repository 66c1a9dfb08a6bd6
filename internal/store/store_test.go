package store

import (
	"math/rand"
	"testing"

	"github.com/erauner12/propsync/internal/entity"
)

func ids(s *Store) []int64 {
	var out []int64
	for e := range s.List() {
		out = append(out, e.ID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStore_UpsertAppendsAndMergesInPlace(t *testing.T) {
	s := New(entity.Property)

	if !s.Upsert(1, map[string]any{"id": 1, "name": "A"}) {
		t.Error("first upsert should report a new id")
	}
	s.Upsert(2, map[string]any{"id": 2, "name": "B"})
	s.Upsert(3, map[string]any{"id": 3, "name": "C"})

	if s.Upsert(2, map[string]any{"name": "B2", "status": "vacant"}) {
		t.Error("upsert of existing id should not report new")
	}

	if got := ids(s); !equalIDs(got, []int64{1, 2, 3}) {
		t.Fatalf("order changed after update: %v", got)
	}

	e, ok := s.Get(2)
	if !ok {
		t.Fatal("id 2 missing")
	}
	if e.Attrs["name"] != "B2" || e.Attrs["status"] != "vacant" || e.Attrs["id"] != 2 {
		t.Errorf("merge result = %v", e.Attrs)
	}
}

func TestStore_RemoveAbsentIsNoop(t *testing.T) {
	s := New(entity.User)
	s.Upsert(1, map[string]any{"name": "A"})
	v := s.Version()

	if s.Remove(99) {
		t.Error("Remove of absent id should return false")
	}
	if s.Version() != v {
		t.Error("Remove of absent id should not bump version")
	}
	if s.Len() != 1 {
		t.Errorf("Len = %d, want 1", s.Len())
	}
}

func TestStore_ReplaceAll(t *testing.T) {
	s := New(entity.Tenancy)
	s.Upsert(7, map[string]any{"status": "active"})

	s.ReplaceAll([]entity.Entity{
		{ID: 1, Attrs: map[string]any{"v": "first"}},
		{ID: 2, Attrs: map[string]any{"v": "x"}},
		{ID: 1, Attrs: map[string]any{"v": "last"}},
	})

	if got := ids(s); !equalIDs(got, []int64{1, 2}) {
		t.Fatalf("ids after ReplaceAll = %v", got)
	}
	if e, _ := s.Get(1); e.Attrs["v"] != "last" {
		t.Errorf("duplicate id should keep last attributes, got %v", e.Attrs["v"])
	}
	if _, ok := s.Get(7); ok {
		t.Error("ReplaceAll should drop records missing from the snapshot")
	}
}

func TestStore_ListIsCopyOnRead(t *testing.T) {
	s := New(entity.Payment)
	s.Upsert(1, map[string]any{"status": "pending"})
	s.Upsert(2, map[string]any{"status": "pending"})

	seq := s.List()

	// Mutations after List must not leak into the sequence
	s.Upsert(3, map[string]any{"status": "paid"})
	s.Remove(1)
	s.Upsert(2, map[string]any{"status": "paid"})

	for pass := 0; pass < 2; pass++ {
		var got []int64
		for e := range seq {
			got = append(got, e.ID)
			if e.Attrs["status"] != "pending" {
				t.Errorf("pass %d: id %d status = %v, want pending", pass, e.ID, e.Attrs["status"])
			}
			// Callers cannot write through to the store
			e.Attrs["status"] = "mutated"
		}
		if !equalIDs(got, []int64{1, 2}) {
			t.Errorf("pass %d: ids = %v, want [1 2]", pass, got)
		}
	}

	if e, _ := s.Get(2); e.Attrs["status"] != "paid" {
		t.Errorf("store record changed through iterator: %v", e.Attrs)
	}
}

func TestStore_ListEarlyBreak(t *testing.T) {
	s := New(entity.User)
	for i := int64(1); i <= 5; i++ {
		s.Upsert(i, map[string]any{})
	}
	n := 0
	for range s.List() {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("iterated %d, want 2", n)
	}
}

func TestStore_FindAll(t *testing.T) {
	s := New(entity.Payment)
	s.Upsert(10, map[string]any{"transaction_id": "TX-1", "amount": "1500.00"})
	s.Upsert(11, map[string]any{"transaction_id": "TX-2", "amount": 200})
	s.Upsert(12, map[string]any{"transaction_id": "TX-1", "amount": 300})

	tests := []struct {
		name  string
		field string
		value any
		want  []int64
	}{
		{"single match", "transaction_id", "TX-2", []int64{11}},
		{"every match in store order", "transaction_id", "TX-1", []int64{10, 12}},
		{"number matches decimal string", "amount", float64(1500), []int64{10}},
		{"no match", "transaction_id", "TX-9", nil},
		{"missing field", "email", "a@b.co", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.FindAll(tt.field, tt.value)
			if len(got) != len(tt.want) {
				t.Fatalf("FindAll = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("FindAll = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// Replaying any sequence of upsert/remove must leave the same id set as
// folding the operations over a plain map, and the first-seen order.
func TestStore_FoldEquivalence(t *testing.T) {
	rng := rand.New(rand.NewSource(20251015))

	for round := 0; round < 200; round++ {
		s := New(entity.MaintenanceRequest)
		model := map[int64]map[string]any{}
		var order []int64

		for step := 0; step < 50; step++ {
			id := int64(rng.Intn(10) + 1)
			if rng.Intn(3) == 0 {
				s.Remove(id)
				if _, ok := model[id]; ok {
					delete(model, id)
					for i, cur := range order {
						if cur == id {
							order = append(order[:i], order[i+1:]...)
							break
						}
					}
				}
				continue
			}
			attrs := map[string]any{"step": step}
			s.Upsert(id, attrs)
			if cur, ok := model[id]; ok {
				cur["step"] = step
			} else {
				model[id] = map[string]any{"step": step}
				order = append(order, id)
			}
		}

		if got := ids(s); !equalIDs(got, order) {
			t.Fatalf("round %d: ids = %v, want %v", round, got, order)
		}
		for id, attrs := range model {
			e, ok := s.Get(id)
			if !ok || e.Attrs["step"] != attrs["step"] {
				t.Fatalf("round %d: id %d = %v, want %v", round, id, e.Attrs, attrs)
			}
		}
	}
}
