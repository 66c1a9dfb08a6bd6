// Package scope maps an actor role to the collections it may see: which
// endpoint serves each snapshot and which records belong in the view.
// The Snapshot Loader and the Reconciler both consume these rules so that a
// push event can never put into a store something a fresh load would not.
package scope

import (
	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/entity"
)

// Filter reports whether a record is visible in the view
type Filter func(attrs map[string]any) bool

// Rule describes one visible collection for a role
type Rule struct {
	Type     entity.Type
	Endpoint string // snapshot path, e.g. /api/tenants/all
	Mutate   string // collection path for POST/PUT/DELETE
	Filter   Filter // nil means every record is visible
}

// Allows applies the rule's filter
func (r Rule) Allows(attrs map[string]any) bool {
	if r.Filter == nil {
		return true
	}
	return r.Filter(attrs)
}

// Set is the resolved scope of one actor
type Set map[entity.Type]Rule

// Rule returns the rule for a type; ok=false means the type is out of scope
func (s Set) Rule(t entity.Type) (Rule, bool) {
	r, ok := s[t]
	return r, ok
}

// Types lists the visible types in entity.All order
func (s Set) Types() []entity.Type {
	out := make([]entity.Type, 0, len(s))
	for _, t := range entity.All {
		if _, ok := s[t]; ok {
			out = append(out, t)
		}
	}
	return out
}

// RoleIn builds a filter accepting records whose role attribute is one of roles
func RoleIn(roles ...auth.Role) Filter {
	return func(attrs map[string]any) bool {
		s, ok := entity.GetString(attrs, "role")
		if !ok {
			return false
		}
		r, _ := auth.ParseRole(s)
		for _, want := range roles {
			if r == want {
				return true
			}
		}
		return false
	}
}

var (
	users         = Rule{Type: entity.User, Endpoint: "/api/users", Mutate: "/api/users", Filter: RoleIn(auth.RoleLandlord, auth.RoleAgent)}
	properties    = Rule{Type: entity.Property, Endpoint: "/api/properties", Mutate: "/api/properties"}
	allTenancies  = Rule{Type: entity.Tenancy, Endpoint: "/api/tenants/all", Mutate: "/api/tenants"}
	ownTenancies  = Rule{Type: entity.Tenancy, Endpoint: "/api/tenants/me", Mutate: "/api/tenants"}
	maintenance   = Rule{Type: entity.MaintenanceRequest, Endpoint: "/api/maintenance", Mutate: "/api/maintenance"}
	payments      = Rule{Type: entity.Payment, Endpoint: "/api/payments", Mutate: "/api/payments"}
	allowedEmails = Rule{Type: entity.AllowedEmail, Endpoint: "/api/auth/allowed-emails", Mutate: "/api/auth/allowed-emails"}
)

// Resolve returns the visible collections for a role. Unknown roles see nothing.
//
// The tenancy endpoints exist only for admins (all) and tenants (their own);
// landlords and agents have no tenancy collection.
func Resolve(role auth.Role) Set {
	set := Set{}
	add := func(rules ...Rule) {
		for _, r := range rules {
			set[r.Type] = r
		}
	}

	switch role {
	case auth.RoleAdmin:
		add(users, properties, allTenancies, maintenance, payments, allowedEmails)
	case auth.RoleLandlord, auth.RoleAgent:
		add(properties, maintenance, payments)
	case auth.RoleTenant:
		add(ownTenancies, maintenance, payments)
	}
	return set
}
