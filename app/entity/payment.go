package entity

import "time"

// Payment intent and payment statuses. The gateway's own values are stored
// verbatim; failed is set locally when the gateway reports a failed attempt.
const (
	PaymentStatusCreated               = "created"
	PaymentStatusRequiresPaymentMethod = "requires_payment_method"
	PaymentStatusRequiresConfirmation  = "requires_confirmation"
	PaymentStatusRequiresAction        = "requires_action"
	PaymentStatusProcessing            = "processing"
	PaymentStatusSucceeded             = "succeeded"
	PaymentStatusFailed                = "failed"
	PaymentStatusCanceled              = "canceled"
)

// PendingPaymentStatuses are the intent statuses the reconcile job re-reads from the gateway.
var PendingPaymentStatuses = []string{
	PaymentStatusCreated,
	PaymentStatusRequiresPaymentMethod,
	PaymentStatusRequiresConfirmation,
	PaymentStatusRequiresAction,
	PaymentStatusProcessing,
}

type PaymentIntent struct {
	ID uint64

	GatewayIntentID   string
	GatewayCustomerID string

	AmountMinor int64
	Currency    string
	Status      string

	IdempotencyKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Payment is a confirmed attempt against an intent. There is at most one per intent.
type Payment struct {
	ID uint64

	GatewayIntentID   string
	GatewayCustomerID string
	PaymentMethodID   string

	AmountMinor int64
	Currency    string
	Status      string

	GatewaySubscriptionID *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Payment) Succeeded() bool {
	return p != nil && p.Status == PaymentStatusSucceeded
}
