package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Offering is the validated service-or-bundle sum type referenced by
// appointments and plan items. The zero value is invalid; construct via
// ServiceOffering or BundleOffering.
type Offering struct {
	serviceID *uuid.UUID
	bundleID  *uuid.UUID
}

// ServiceOffering wraps a single service reference.
func ServiceOffering(serviceID uuid.UUID) Offering {
	id := serviceID
	return Offering{serviceID: &id}
}

// BundleOffering wraps a bundle reference.
func BundleOffering(bundleID uuid.UUID) Offering {
	id := bundleID
	return Offering{bundleID: &id}
}

// NewOffering validates the exactly-one rule over two optional references.
func NewOffering(serviceID, bundleID *uuid.UUID) (Offering, error) {
	switch {
	case serviceID != nil && bundleID != nil:
		return Offering{}, fmt.Errorf("offering cannot reference both a service and a bundle")
	case serviceID != nil:
		return ServiceOffering(*serviceID), nil
	case bundleID != nil:
		return BundleOffering(*bundleID), nil
	}
	return Offering{}, fmt.Errorf("offering must reference a service or a bundle")
}

// ServiceID returns the service reference, if any.
func (o Offering) ServiceID() *uuid.UUID {
	return o.serviceID
}

// BundleID returns the bundle reference, if any.
func (o Offering) BundleID() *uuid.UUID {
	return o.bundleID
}

// IsService reports whether the offering references a single service.
func (o Offering) IsService() bool {
	return o.serviceID != nil
}

// Matches reports whether the offering points at the same row as the given
// optional references.
func (o Offering) Matches(serviceID, bundleID *uuid.UUID) bool {
	if o.serviceID != nil {
		return serviceID != nil && *serviceID == *o.serviceID
	}
	if o.bundleID != nil {
		return bundleID != nil && *bundleID == *o.bundleID
	}
	return false
}
