package rbac

import (
	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// Resource is a class of establishment-scoped data.
type Resource string

const (
	ResourceEstablishment Resource = "establishment"
	ResourceStaff         Resource = "staff"
	ResourceService       Resource = "service"
	ResourcePlan          Resource = "plan"
	ResourceAppointment   Resource = "appointment"
	ResourceSubscription  Resource = "subscription"
	ResourceQueue         Resource = "queue"
	ResourceCheckInToken  Resource = "checkin_token"
)

// Action is what the actor wants to do with the resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Actor is the authenticated principal, with the establishment scope the
// access token was minted for. Customers carry no scope.
type Actor struct {
	UserID          uuid.UUID
	Role            enums.ActorRole
	EstablishmentID *uuid.UUID
}

// grants maps role to the resource/action pairs that role may perform on
// resources inside its own scope. Keeping the matrix in one table makes the
// authorization surface auditable without reading every handler.
var grants = map[enums.ActorRole]map[Resource][]Action{
	enums.RoleOwner: {
		ResourceEstablishment: {ActionRead, ActionUpdate, ActionDelete},
		ResourceStaff:         {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
		ResourceService:       {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
		ResourcePlan:          {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
		ResourceAppointment:   {ActionRead, ActionUpdate},
		ResourceSubscription:  {ActionRead, ActionUpdate},
		ResourceQueue:         {ActionRead, ActionCreate, ActionUpdate},
		ResourceCheckInToken:  {ActionCreate},
	},
	enums.RoleAdmin: {
		ResourceEstablishment: {ActionRead, ActionUpdate},
		ResourceStaff:         {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
		ResourceService:       {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
		ResourcePlan:          {ActionRead, ActionCreate, ActionUpdate, ActionDelete},
		ResourceAppointment:   {ActionRead, ActionUpdate},
		ResourceSubscription:  {ActionRead, ActionUpdate},
		ResourceQueue:         {ActionRead, ActionCreate, ActionUpdate},
		ResourceCheckInToken:  {ActionCreate},
	},
	enums.RoleStaff: {
		ResourceEstablishment: {ActionRead},
		ResourceStaff:         {ActionRead},
		ResourceService:       {ActionRead},
		ResourcePlan:          {ActionRead},
		ResourceAppointment:   {ActionRead, ActionUpdate},
		ResourceQueue:         {ActionRead, ActionUpdate},
		ResourceCheckInToken:  {ActionCreate},
	},
	enums.RoleCustomer: {
		ResourceEstablishment: {ActionRead},
		ResourceService:       {ActionRead},
		ResourcePlan:          {ActionRead},
		ResourceAppointment:   {ActionRead, ActionCreate, ActionUpdate},
		ResourceSubscription:  {ActionRead, ActionCreate, ActionUpdate},
		ResourceQueue:         {ActionRead, ActionCreate, ActionUpdate},
	},
}

// Allow reports whether the role may perform the action on the resource
// class. Scope checks (which establishment, which customer) stay separate;
// see AllowScoped and OwnsRecord.
func Allow(role enums.ActorRole, resource Resource, action Action) bool {
	actions, ok := grants[role][resource]
	if !ok {
		return false
	}
	for _, candidate := range actions {
		if candidate == action {
			return true
		}
	}
	return false
}

// AllowScoped combines the role grant with the establishment scope rule:
// establishment-side actors act only inside the establishment their token
// names; customers are never establishment-scoped and pass the scope test
// for customer-grantable actions.
func AllowScoped(actor Actor, resource Resource, action Action, establishmentID uuid.UUID) bool {
	if !Allow(actor.Role, resource, action) {
		return false
	}
	if !actor.Role.IsEstablishmentSide() {
		return true
	}
	return actor.EstablishmentID != nil && *actor.EstablishmentID == establishmentID
}

// OwnsRecord reports whether a customer actor owns a record created for
// customerID. Establishment-side actors never pass this; they go through
// AllowScoped instead.
func OwnsRecord(actor Actor, customerID uuid.UUID) bool {
	return actor.Role == enums.RoleCustomer && actor.UserID == customerID
}
