package scope

import (
	"testing"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/entity"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		role      auth.Role
		want      []entity.Type
		tenancyEP string
	}{
		{auth.RoleAdmin, []entity.Type{entity.User, entity.Property, entity.Tenancy, entity.MaintenanceRequest, entity.Payment, entity.AllowedEmail}, "/api/tenants/all"},
		{auth.RoleLandlord, []entity.Type{entity.Property, entity.MaintenanceRequest, entity.Payment}, ""},
		{auth.RoleAgent, []entity.Type{entity.Property, entity.MaintenanceRequest, entity.Payment}, ""},
		{auth.RoleTenant, []entity.Type{entity.Tenancy, entity.MaintenanceRequest, entity.Payment}, "/api/tenants/me"},
		{auth.Role("guest"), nil, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			set := Resolve(tt.role)
			got := set.Types()
			if len(got) != len(tt.want) {
				t.Fatalf("Types() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Types()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
			r, ok := set.Rule(entity.Tenancy)
			if tt.tenancyEP == "" {
				if ok {
					t.Errorf("tenancy should be out of scope for %s", tt.role)
				}
			} else if r.Endpoint != tt.tenancyEP {
				t.Errorf("tenancy endpoint = %s, want %s", r.Endpoint, tt.tenancyEP)
			}
		})
	}
}

func TestAdminUserFilter(t *testing.T) {
	r, ok := Resolve(auth.RoleAdmin).Rule(entity.User)
	if !ok {
		t.Fatal("admin should see users")
	}

	cases := map[string]bool{
		"landlord": true,
		"agent":    true,
		"tenant":   false,
		"admin":    false,
	}
	for role, want := range cases {
		if got := r.Allows(map[string]any{"role": role}); got != want {
			t.Errorf("Allows(role=%s) = %v, want %v", role, got, want)
		}
	}
	if r.Allows(map[string]any{"name": "no role"}) {
		t.Error("record without role should be filtered out")
	}

	p, _ := Resolve(auth.RoleAdmin).Rule(entity.Property)
	if !p.Allows(map[string]any{}) {
		t.Error("nil filter should allow everything")
	}
}
