package provider

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrSignatureInvalid = errors.New("webhook signature invalid")
	ErrNotFound         = errors.New("gateway object not found")
)

type CreateCustomerInput struct {
	Name           string
	Email          string
	Locale         string
	Metadata       map[string]string
	IdempotencyKey string
}

type Customer struct {
	ID       string
	Name     string
	Email    string
	Metadata map[string]string
}

type CreateIntentInput struct {
	CustomerID     string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

type Intent struct {
	ID              string
	CustomerID      string
	PaymentMethodID string
	AmountMinor     int64
	Currency        string
	Status          string
}

type CreateSubscriptionInput struct {
	CustomerID      string
	PriceID         string
	Quantity        int64
	PaymentMethodID string
	IdempotencyKey  string
}

type UpdateSubscriptionInput struct {
	ItemID   string
	PriceID  string
	Quantity int64
}

type SubscriptionItem struct {
	ID       string
	PriceID  string
	Quantity int64
}

type Subscription struct {
	ID         string
	CustomerID string
	Status     string
	Items      []SubscriptionItem
}

type CreateInvoiceInput struct {
	CustomerID     string
	SubscriptionID string
}

type Invoice struct {
	ID               string
	CustomerID       string
	SubscriptionID   string
	Status           string
	AmountDue        int64
	Currency         string
	HostedInvoiceURL string
}

// Event is a verified gateway event. Object holds the raw data.object payload.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// Gateway is the remote payment provider. Implementations own their retry policy;
// callers never retry.
type Gateway interface {
	CreateCustomer(ctx context.Context, input *CreateCustomerInput) (*Customer, error)
	CreateIntent(ctx context.Context, input *CreateIntentInput) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CreateSubscription(ctx context.Context, input *CreateSubscriptionInput) (*Subscription, error)
	UpdateSubscription(ctx context.Context, subscriptionID string, input *UpdateSubscriptionInput) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	CreateInvoice(ctx context.Context, input *CreateInvoiceInput) (*Invoice, error)
	RetrieveInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	ConstructVerifiedEvent(payload []byte, signature, secret string) (*Event, error)
}
