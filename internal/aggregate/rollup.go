package aggregate

import (
	"slices"

	"github.com/erauner12/propsync/internal/entity"
	"github.com/erauner12/propsync/internal/store"
)

// Summary holds the dashboard counters
type Summary struct {
	TotalProperties    int     `json:"totalProperties"`
	ActiveTenancies    int     `json:"activeTenancies"`
	PendingMaintenance int     `json:"pendingMaintenance"`
	UrgentMaintenance  int     `json:"urgentMaintenance"`
	MonthlyRevenue     float64 `json:"monthlyRevenue"`
}

// Summarize computes the counters from the current store contents.
// Types missing from stores count as empty.
func Summarize(stores map[entity.Type]*store.Store) Summary {
	var s Summary
	if st := stores[entity.Property]; st != nil {
		s.TotalProperties = st.Len()
	}
	if st := stores[entity.Tenancy]; st != nil {
		for e := range st.List() {
			if e.String("status") == "active" {
				s.ActiveTenancies++
			}
		}
	}
	if st := stores[entity.MaintenanceRequest]; st != nil {
		for e := range st.List() {
			if e.String("status") == "pending" {
				s.PendingMaintenance++
			}
			if e.String("priority") == "urgent" {
				s.UrgentMaintenance++
			}
		}
	}
	if st := stores[entity.Payment]; st != nil {
		for e := range st.List() {
			if e.String("status") != "paid" || e.String("type") != "rent" {
				continue
			}
			if amount, ok := entity.GetNumber(e.Attrs, "amount"); ok {
				s.MonthlyRevenue += amount
			}
		}
	}
	return s
}

// Take selects the N most recent records of one store
type Take struct {
	Type entity.Type
	N    int
}

// LandlordRecent is the landlord dashboard's mix of recent records
var LandlordRecent = []Take{{Type: entity.Payment, N: 3}, {Type: entity.MaintenanceRequest, N: 2}}

// RecentFromStores takes the most recent records named by plan, renders them,
// merges and returns the newest cap lines. Records are ordered by created_at;
// records without one sort last.
func RecentFromStores(stores map[entity.Type]*store.Store, plan []Take, cap int) []Activity {
	var out []Activity
	for _, take := range plan {
		st := stores[take.Type]
		if st == nil {
			continue
		}
		var lines []Activity
		for e := range st.List() {
			if a, ok := describeRecord(e); ok {
				lines = append(lines, a)
			}
		}
		slices.SortStableFunc(lines, newestFirst)
		if len(lines) > take.N {
			lines = lines[:take.N]
		}
		out = append(out, lines...)
	}
	slices.SortStableFunc(out, newestFirst)
	if len(out) > cap {
		out = out[:cap]
	}
	return out
}
