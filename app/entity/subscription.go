package entity

import "time"

const (
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
)

type Subscription struct {
	ID uint64

	GatewaySubscriptionID string
	GatewayCustomerID     string

	PriceID  string
	Quantity int64
	Status   string

	// PaymentID links the local payment the subscription was provisioned against.
	PaymentID *uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}
