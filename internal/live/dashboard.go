package live

import (
	"github.com/erauner12/propsync/internal/aggregate"
	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/entity"
)

// Dashboard is a point-in-time rendering of the view
type Dashboard struct {
	User          auth.Identity              `json:"user"`
	Summary       aggregate.Summary          `json:"summary"`
	Activity      []aggregate.Activity       `json:"activity"`
	Notifications []aggregate.Activity       `json:"notifications"`
	Unread        int                        `json:"unread"`
	Collections   map[string][]entity.Entity `json:"collections"`
}

// Dashboard computes rollups and feeds from the current store contents.
// Landlords and agents get recent activity derived from their stores; other
// roles get the push-driven feed.
func (v *View) Dashboard() Dashboard {
	d := Dashboard{
		User:          v.identity,
		Summary:       aggregate.Summarize(v.stores),
		Notifications: v.tray.Items(),
		Unread:        v.tray.Unread(),
		Collections:   make(map[string][]entity.Entity, len(v.stores)),
	}

	switch v.identity.Role {
	case auth.RoleLandlord, auth.RoleAgent:
		d.Activity = aggregate.RecentFromStores(v.stores, aggregate.LandlordRecent, v.feedCap)
	default:
		d.Activity = v.feed.Items()
	}

	for t, st := range v.stores {
		d.Collections[t.String()] = st.Slice()
	}
	return d
}

// List returns a copy of one collection in store order
func (v *View) List(t entity.Type) ([]entity.Entity, error) {
	st, ok := v.stores[t]
	if !ok {
		return nil, ErrNotInScope
	}
	return st.Slice(), nil
}

// MarkRead clears the notification tray's unread counter
func (v *View) MarkRead() {
	v.tray.MarkRead()
	v.notify()
}
