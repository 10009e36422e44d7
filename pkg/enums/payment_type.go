package enums

import "fmt"

// PaymentType distinguishes how an appointment is funded.
type PaymentType string

const (
	PaymentSingle       PaymentType = "single"
	PaymentSubscription PaymentType = "subscription"
)

// String implements fmt.Stringer.
func (p PaymentType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentType.
func (p PaymentType) IsValid() bool {
	return p == PaymentSingle || p == PaymentSubscription
}

// ParsePaymentType converts raw input into a PaymentType.
func ParsePaymentType(value string) (PaymentType, error) {
	switch PaymentType(value) {
	case PaymentSingle:
		return PaymentSingle, nil
	case PaymentSubscription:
		return PaymentSubscription, nil
	}
	return "", fmt.Errorf("invalid payment type %q", value)
}
