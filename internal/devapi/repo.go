// Package devapi is a development stand-in for the property-management API:
// the REST collections, the identity and activity endpoints, and the
// websocket push channel that announces every mutation.
package devapi

import (
	"context"
	"fmt"
	"maps"

	"github.com/erauner12/propsync/internal/entity"
)

// ErrNotFound is returned when a record does not exist in its collection
type ErrNotFound struct {
	Type entity.Type
	ID   int64
}

func (e ErrNotFound) Error() string {
	if e.ID == 0 {
		return fmt.Sprintf("%s not found", e.Type)
	}
	return fmt.Sprintf("%s %d not found", e.Type, e.ID)
}

// Repository stores the collections. Records are flat attribute maps that
// always carry "id" and "created_at".
type Repository interface {
	List(ctx context.Context, t entity.Type) ([]map[string]any, error)
	Get(ctx context.Context, t entity.Type, id int64) (map[string]any, error)
	Create(ctx context.Context, t entity.Type, attrs map[string]any) (map[string]any, error)
	// Update merges attrs into the stored record
	Update(ctx context.Context, t entity.Type, id int64, attrs map[string]any) (map[string]any, error)
	// Delete returns the removed record
	Delete(ctx context.Context, t entity.Type, id int64) (map[string]any, error)
	// FindBy returns the first record, by id, whose field equals value
	FindBy(ctx context.Context, t entity.Type, field string, value any) (map[string]any, error)

	Activity(ctx context.Context, limit int) ([]map[string]any, error)
	AddActivity(ctx context.Context, typ, message string) error
}

// writable strips server-owned fields from a client payload
func writable(attrs map[string]any) map[string]any {
	out := maps.Clone(attrs)
	if out == nil {
		out = map[string]any{}
	}
	delete(out, "id")
	delete(out, "created_at")
	return out
}
