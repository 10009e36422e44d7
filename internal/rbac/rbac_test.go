package rbac

import (
	"testing"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

func TestAllowMatrix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role     enums.ActorRole
		resource Resource
		action   Action
		want     bool
	}{
		{enums.RoleOwner, ResourceEstablishment, ActionDelete, true},
		{enums.RoleAdmin, ResourceEstablishment, ActionDelete, false},
		{enums.RoleAdmin, ResourceStaff, ActionCreate, true},
		{enums.RoleStaff, ResourceStaff, ActionCreate, false},
		{enums.RoleStaff, ResourceCheckInToken, ActionCreate, true},
		{enums.RoleCustomer, ResourceCheckInToken, ActionCreate, false},
		{enums.RoleCustomer, ResourceAppointment, ActionCreate, true},
		{enums.RoleCustomer, ResourceStaff, ActionRead, false},
	}
	for _, tc := range cases {
		if got := Allow(tc.role, tc.resource, tc.action); got != tc.want {
			t.Errorf("Allow(%s, %s, %s) = %v, want %v", tc.role, tc.resource, tc.action, got, tc.want)
		}
	}
}

func TestAllowScopedRequiresMatchingEstablishment(t *testing.T) {
	t.Parallel()

	establishmentID := uuid.New()
	otherID := uuid.New()

	scoped := Actor{UserID: uuid.New(), Role: enums.RoleAdmin, EstablishmentID: &establishmentID}
	if !AllowScoped(scoped, ResourceService, ActionCreate, establishmentID) {
		t.Fatal("admin should manage services in their own establishment")
	}
	if AllowScoped(scoped, ResourceService, ActionCreate, otherID) {
		t.Fatal("admin must not cross establishment boundaries")
	}

	unscoped := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	if AllowScoped(unscoped, ResourceService, ActionCreate, establishmentID) {
		t.Fatal("establishment-side actor without a scope must be denied")
	}

	customer := Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
	if !AllowScoped(customer, ResourceAppointment, ActionCreate, establishmentID) {
		t.Fatal("customers book at any establishment")
	}
}

func TestOwnsRecord(t *testing.T) {
	t.Parallel()

	customerID := uuid.New()
	if !OwnsRecord(Actor{UserID: customerID, Role: enums.RoleCustomer}, customerID) {
		t.Fatal("customer should own their own record")
	}
	if OwnsRecord(Actor{UserID: uuid.New(), Role: enums.RoleCustomer}, customerID) {
		t.Fatal("other customers must not pass the ownership check")
	}
	if OwnsRecord(Actor{UserID: customerID, Role: enums.RoleStaff}, customerID) {
		t.Fatal("establishment-side actors go through scope checks, not ownership")
	}
}
