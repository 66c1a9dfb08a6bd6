package snapshot

import (
	"context"

	"github.com/erauner12/propsync/internal/aggregate"
)

// ActivityPath serves the notification history
const ActivityPath = "/api/activity"

// LoadActivity fetches the notification history used to seed the tray,
// newest first as served, capped at limit.
func LoadActivity(ctx context.Context, src Lister, limit int) ([]aggregate.Activity, error) {
	items, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]aggregate.Activity, 0, len(items))
	for i, item := range items {
		if a, ok := aggregate.FromServer(item, i); ok {
			out = append(out, a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
