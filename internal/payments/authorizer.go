package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Charge describes a single-pay appointment amount to authorize.
type Charge struct {
	AppointmentID uuid.UUID
	CustomerID    uuid.UUID
	Amount        decimal.Decimal
	Currency      string
}

// Authorization is the provider's decision on a charge.
type Authorization struct {
	Reference string
	Approved  bool
	Reason    string
}

// Authorizer is the boundary to the card processor. The booking service
// books first and authorizes after commit; a declined authorization cancels
// the pending appointment as a compensating step.
type Authorizer interface {
	Authorize(ctx context.Context, charge Charge) (Authorization, error)
	Void(ctx context.Context, reference string) error
}
