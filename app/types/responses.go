package types

type ErrorResponse struct {
	Error string `json:"error"`
}

type CustomerResponse struct {
	ID             string            `json:"id"`
	CorrelationKey string            `json:"correlation_key,omitempty"`
	Name           string            `json:"name,omitempty"`
	Email          string            `json:"email,omitempty"`
	Metadata       map[string]string `json:"metadata"`
	Created        bool              `json:"created"`
}

type PaymentIntentResponse struct {
	ID             string `json:"id"`
	CustomerID     string `json:"customer_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	IdempotencyKey string `json:"idempotency_key"`
}

type PaymentResponse struct {
	ID              uint64 `json:"id"`
	IntentID        string `json:"payment_intent_id"`
	CustomerID      string `json:"customer_id"`
	PaymentMethodID string `json:"payment_method_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	Status          string `json:"status"`
	SubscriptionID  string `json:"subscription_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type ListPaymentsResponse struct {
	Payments []*PaymentResponse `json:"payments"`
}

type SubscriptionResponse struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	PriceID    string `json:"price_id"`
	Quantity   int64  `json:"quantity"`
	Status     string `json:"status"`
	PaymentID  uint64 `json:"payment_id,omitempty"`
}

type ListSubscriptionsResponse struct {
	Subscriptions []*SubscriptionResponse `json:"subscriptions"`
}

type InvoiceResponse struct {
	ID               string `json:"id"`
	CustomerID       string `json:"customer_id"`
	SubscriptionID   string `json:"subscription_id,omitempty"`
	Status           string `json:"status"`
	AmountDue        int64  `json:"amount_due"`
	Currency         string `json:"currency"`
	HostedInvoiceURL string `json:"hosted_invoice_url,omitempty"`
}

type WebhookAckResponse struct {
	Received bool `json:"received"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
