package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type StripeConfig struct {
	SecretKey          string
	APIBaseURL         string
	MaxNetworkRetries  int64
	SignatureTolerance time.Duration
	HTTPTimeout        time.Duration
}

type StripeGateway struct {
	client    *stripe.Client
	tolerance time.Duration
}

// NewStripeClient builds a per-instance client. Network retries are handled here,
// never by callers of the gateway.
func NewStripeClient(cfg StripeConfig) *stripe.Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if baseURL := strings.TrimSpace(cfg.APIBaseURL); baseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(baseURL, "/"))
	}

	return stripe.NewClient(cfg.SecretKey, stripe.WithBackends(stripe.NewBackendsWithConfig(backendCfg)))
}

func NewStripeGateway(client *stripe.Client, signatureTolerance time.Duration) *StripeGateway {
	if signatureTolerance <= 0 {
		signatureTolerance = webhook.DefaultTolerance
	}
	return &StripeGateway{client: client, tolerance: signatureTolerance}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, input *CreateCustomerInput) (*Customer, error) {
	params := &stripe.CustomerCreateParams{}
	if input.Name != "" {
		params.Name = stripe.String(input.Name)
	}
	if input.Email != "" {
		params.Email = stripe.String(input.Email)
	}
	if input.Locale != "" {
		params.PreferredLocales = []*string{stripe.String(input.Locale)}
	}
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}

	customer, err := g.client.V1Customers.Create(ctx, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return &Customer{
		ID:       customer.ID,
		Name:     customer.Name,
		Email:    customer.Email,
		Metadata: customer.Metadata,
	}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, input *CreateIntentInput) (*Intent, error) {
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(input.AmountMinor),
		Currency: stripe.String(strings.ToLower(input.Currency)),
	}
	if input.CustomerID != "" {
		params.Customer = stripe.String(input.CustomerID)
	}
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}
	params.IdempotencyKey = stripe.String(input.IdempotencyKey)

	intent, err := g.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return intentFromStripe(intent), nil
}

func (g *StripeGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Intent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}

	intent, err := g.client.V1PaymentIntents.Confirm(ctx, intentID, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return intentFromStripe(intent), nil
}

func (g *StripeGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	intent, err := g.client.V1PaymentIntents.Retrieve(ctx, intentID, nil)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return intentFromStripe(intent), nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, input *CreateSubscriptionInput) (*Subscription, error) {
	quantity := input.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	params := &stripe.SubscriptionCreateParams{
		Customer: stripe.String(input.CustomerID),
		Items: []*stripe.SubscriptionCreateItemParams{
			{
				Price:    stripe.String(input.PriceID),
				Quantity: stripe.Int64(quantity),
			},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	if input.PaymentMethodID != "" {
		params.DefaultPaymentMethod = stripe.String(input.PaymentMethodID)
	}
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}

	subscription, err := g.client.V1Subscriptions.Create(ctx, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return subscriptionFromStripe(subscription), nil
}

func (g *StripeGateway) UpdateSubscription(ctx context.Context, subscriptionID string, input *UpdateSubscriptionInput) (*Subscription, error) {
	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:       stripe.String(input.ItemID),
				Price:    stripe.String(input.PriceID),
				Quantity: stripe.Int64(input.Quantity),
			},
		},
	}

	subscription, err := g.client.V1Subscriptions.Update(ctx, subscriptionID, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return subscriptionFromStripe(subscription), nil
}

// CancelSubscription treats a subscription that is already canceled as success and
// returns its current state.
func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	subscription, err := g.client.V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	if err == nil {
		return subscriptionFromStripe(subscription), nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) || stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
		return nil, wrapStripeError(err)
	}

	current, retrieveErr := g.RetrieveSubscription(ctx, subscriptionID)
	if retrieveErr != nil || current.Status != string(stripe.SubscriptionStatusCanceled) {
		return nil, wrapStripeError(err)
	}
	return current, nil
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	subscription, err := g.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return subscriptionFromStripe(subscription), nil
}

func (g *StripeGateway) CreateInvoice(ctx context.Context, input *CreateInvoiceInput) (*Invoice, error) {
	params := &stripe.InvoiceCreateParams{
		Customer: stripe.String(input.CustomerID),
	}
	if input.SubscriptionID != "" {
		params.Subscription = stripe.String(input.SubscriptionID)
	}

	invoice, err := g.client.V1Invoices.Create(ctx, params)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return invoiceFromStripe(invoice), nil
}

func (g *StripeGateway) RetrieveInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	invoice, err := g.client.V1Invoices.Retrieve(ctx, invoiceID, nil)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return invoiceFromStripe(invoice), nil
}

// ConstructVerifiedEvent checks the signature over the exact payload bytes before
// decoding anything. An empty secret never verifies.
func (g *StripeGateway) ConstructVerifiedEvent(payload []byte, signature, secret string) (*Event, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: webhook secret is not configured", ErrSignatureInvalid)
	}
	if strings.TrimSpace(signature) == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrSignatureInvalid)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                g.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}
	if event.Data != nil {
		out.Object = event.Data.Raw
	}
	return out, nil
}

func wrapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func intentFromStripe(intent *stripe.PaymentIntent) *Intent {
	out := &Intent{
		ID:          intent.ID,
		AmountMinor: intent.Amount,
		Currency:    string(intent.Currency),
		Status:      string(intent.Status),
	}
	if intent.Customer != nil {
		out.CustomerID = intent.Customer.ID
	}
	if intent.PaymentMethod != nil {
		out.PaymentMethodID = intent.PaymentMethod.ID
	}
	return out
}

func subscriptionFromStripe(subscription *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:     subscription.ID,
		Status: string(subscription.Status),
	}
	if subscription.Customer != nil {
		out.CustomerID = subscription.Customer.ID
	}
	if subscription.Items != nil {
		for _, item := range subscription.Items.Data {
			if item == nil {
				continue
			}
			mapped := SubscriptionItem{ID: item.ID, Quantity: item.Quantity}
			if item.Price != nil {
				mapped.PriceID = item.Price.ID
			}
			out.Items = append(out.Items, mapped)
		}
	}
	return out
}

func invoiceFromStripe(invoice *stripe.Invoice) *Invoice {
	out := &Invoice{
		ID:               invoice.ID,
		Status:           string(invoice.Status),
		AmountDue:        invoice.AmountDue,
		Currency:         string(invoice.Currency),
		HostedInvoiceURL: invoice.HostedInvoiceURL,
	}
	if invoice.Customer != nil {
		out.CustomerID = invoice.Customer.ID
	}
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil && invoice.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = invoice.Parent.SubscriptionDetails.Subscription.ID
	}
	return out
}
