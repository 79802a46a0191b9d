package types

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	defaultListLimit = int32(100)
	maxListLimit     = int32(500)

	// MaxWebhookPayloadBytes caps how much of a webhook body is read before the
	// signature is checked.
	MaxWebhookPayloadBytes = 65536
)

type CreateCustomerRequest struct {
	CorrelationKey string            `json:"correlation_key"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	Metadata       map[string]string `json:"metadata"`
}

func (r *CreateCustomerRequest) GetCorrelationKey() string {
	if r == nil {
		return ""
	}
	return r.CorrelationKey
}

func (r *CreateCustomerRequest) GetName() string {
	if r == nil {
		return ""
	}
	return r.Name
}

func (r *CreateCustomerRequest) GetEmail() string {
	if r == nil {
		return ""
	}
	return r.Email
}

func (r *CreateCustomerRequest) GetMetadata() map[string]string {
	if r == nil {
		return nil
	}
	return r.Metadata
}

func NewCreateCustomerRequestFromContext(ctx echo.Context) (*CreateCustomerRequest, error) {
	var body CreateCustomerRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.CorrelationKey = strings.TrimSpace(body.CorrelationKey)
	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.TrimSpace(body.Email)
	return &body, nil
}

func (r *CreateCustomerRequest) Validate() error {
	if r.GetCorrelationKey() == "" {
		return errors.New("correlation_key is required")
	}
	return nil
}

type CreatePaymentIntentRequest struct {
	CustomerID     string `json:"customer_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (r *CreatePaymentIntentRequest) GetCustomerID() string {
	if r == nil {
		return ""
	}
	return r.CustomerID
}

func (r *CreatePaymentIntentRequest) GetAmount() int64 {
	if r == nil {
		return 0
	}
	return r.Amount
}

func (r *CreatePaymentIntentRequest) GetCurrency() string {
	if r == nil {
		return ""
	}
	return r.Currency
}

func (r *CreatePaymentIntentRequest) GetIdempotencyKey() string {
	if r == nil {
		return ""
	}
	return r.IdempotencyKey
}

// NewCreatePaymentIntentRequestFromContext falls back to the Idempotency-Key header
// when the body carries no key.
func NewCreatePaymentIntentRequestFromContext(ctx echo.Context) (*CreatePaymentIntentRequest, error) {
	var body CreatePaymentIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.CustomerID = strings.TrimSpace(body.CustomerID)
	body.Currency = strings.ToLower(strings.TrimSpace(body.Currency))
	body.IdempotencyKey = strings.TrimSpace(body.IdempotencyKey)
	if body.IdempotencyKey == "" {
		body.IdempotencyKey = strings.TrimSpace(ctx.Request().Header.Get("Idempotency-Key"))
	}
	return &body, nil
}

func (r *CreatePaymentIntentRequest) Validate() error {
	if r.GetCustomerID() == "" {
		return errors.New("customer_id is required")
	}
	if r.GetAmount() <= 0 {
		return errors.New("amount must be > 0")
	}
	if len(r.GetCurrency()) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if r.GetIdempotencyKey() == "" {
		return errors.New("idempotency_key is required")
	}
	return nil
}

type ConfirmPaymentIntentRequest struct {
	IntentID        string `json:"-"`
	PaymentMethodID string `json:"payment_method_id"`
}

func (r *ConfirmPaymentIntentRequest) GetIntentID() string {
	if r == nil {
		return ""
	}
	return r.IntentID
}

func (r *ConfirmPaymentIntentRequest) GetPaymentMethodID() string {
	if r == nil {
		return ""
	}
	return r.PaymentMethodID
}

func NewConfirmPaymentIntentRequestFromContext(ctx echo.Context) (*ConfirmPaymentIntentRequest, error) {
	var body ConfirmPaymentIntentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.IntentID = strings.TrimSpace(ctx.Param("id"))
	body.PaymentMethodID = strings.TrimSpace(body.PaymentMethodID)
	return &body, nil
}

func (r *ConfirmPaymentIntentRequest) Validate() error {
	if r.GetIntentID() == "" {
		return errors.New("payment intent id is required")
	}
	if r.GetPaymentMethodID() == "" {
		return errors.New("payment_method_id is required")
	}
	return nil
}

type CreateSubscriptionRequest struct {
	IntentID        string `json:"payment_intent_id"`
	PaymentMethodID string `json:"payment_method_id"`
	CustomerID      string `json:"customer_id"`
	PriceID         string `json:"price_id"`
}

func (r *CreateSubscriptionRequest) GetIntentID() string {
	if r == nil {
		return ""
	}
	return r.IntentID
}

func (r *CreateSubscriptionRequest) GetPaymentMethodID() string {
	if r == nil {
		return ""
	}
	return r.PaymentMethodID
}

func (r *CreateSubscriptionRequest) GetCustomerID() string {
	if r == nil {
		return ""
	}
	return r.CustomerID
}

func (r *CreateSubscriptionRequest) GetPriceID() string {
	if r == nil {
		return ""
	}
	return r.PriceID
}

func NewCreateSubscriptionRequestFromContext(ctx echo.Context) (*CreateSubscriptionRequest, error) {
	var body CreateSubscriptionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.IntentID = strings.TrimSpace(body.IntentID)
	body.PaymentMethodID = strings.TrimSpace(body.PaymentMethodID)
	body.CustomerID = strings.TrimSpace(body.CustomerID)
	body.PriceID = strings.TrimSpace(body.PriceID)
	return &body, nil
}

func (r *CreateSubscriptionRequest) Validate() error {
	if r.GetIntentID() == "" {
		return errors.New("payment_intent_id is required")
	}
	if r.GetPaymentMethodID() == "" {
		return errors.New("payment_method_id is required")
	}
	if r.GetCustomerID() == "" {
		return errors.New("customer_id is required")
	}
	if r.GetPriceID() == "" {
		return errors.New("price_id is required")
	}
	return nil
}

type UpdateSubscriptionRequest struct {
	SubscriptionID string `json:"-"`
	PriceID        string `json:"price_id"`
	Quantity       int64  `json:"quantity"`
}

func (r *UpdateSubscriptionRequest) GetSubscriptionID() string {
	if r == nil {
		return ""
	}
	return r.SubscriptionID
}

func (r *UpdateSubscriptionRequest) GetPriceID() string {
	if r == nil {
		return ""
	}
	return r.PriceID
}

func (r *UpdateSubscriptionRequest) GetQuantity() int64 {
	if r == nil {
		return 0
	}
	return r.Quantity
}

func NewUpdateSubscriptionRequestFromContext(ctx echo.Context) (*UpdateSubscriptionRequest, error) {
	var body UpdateSubscriptionRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.SubscriptionID = strings.TrimSpace(ctx.Param("id"))
	body.PriceID = strings.TrimSpace(body.PriceID)
	return &body, nil
}

func (r *UpdateSubscriptionRequest) Validate() error {
	if r.GetSubscriptionID() == "" {
		return errors.New("subscription id is required")
	}
	if r.GetPriceID() == "" {
		return errors.New("price_id is required")
	}
	if r.GetQuantity() < 0 {
		return errors.New("quantity must be >= 0")
	}
	return nil
}

type CreateInvoiceRequest struct {
	CustomerID     string `json:"customer_id"`
	SubscriptionID string `json:"subscription_id"`
}

func (r *CreateInvoiceRequest) GetCustomerID() string {
	if r == nil {
		return ""
	}
	return r.CustomerID
}

func (r *CreateInvoiceRequest) GetSubscriptionID() string {
	if r == nil {
		return ""
	}
	return r.SubscriptionID
}

func NewCreateInvoiceRequestFromContext(ctx echo.Context) (*CreateInvoiceRequest, error) {
	var body CreateInvoiceRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.CustomerID = strings.TrimSpace(body.CustomerID)
	body.SubscriptionID = strings.TrimSpace(body.SubscriptionID)
	return &body, nil
}

func (r *CreateInvoiceRequest) Validate() error {
	if r.GetCustomerID() == "" {
		return errors.New("customer_id is required")
	}
	return nil
}

type ListByCustomerRequest struct {
	CustomerID string
	Limit      int32
	Offset     int32
}

func (r *ListByCustomerRequest) GetCustomerID() string {
	if r == nil {
		return ""
	}
	return r.CustomerID
}

func (r *ListByCustomerRequest) GetLimit() int32 {
	if r == nil {
		return 0
	}
	return r.Limit
}

func (r *ListByCustomerRequest) GetOffset() int32 {
	if r == nil {
		return 0
	}
	return r.Offset
}

func NewListByCustomerRequestFromContext(ctx echo.Context) (*ListByCustomerRequest, error) {
	req := &ListByCustomerRequest{
		CustomerID: strings.TrimSpace(ctx.Param("id")),
		Limit:      defaultListLimit,
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListByCustomerRequest) Validate() error {
	if r.GetCustomerID() == "" {
		return errors.New("customer id is required")
	}
	if r.Limit == 0 {
		r.Limit = defaultListLimit
	}
	if r.GetLimit() <= 0 || r.GetLimit() > maxListLimit {
		return errors.New("limit must be between 1 and 500")
	}
	if r.GetOffset() < 0 {
		return errors.New("offset must be >= 0")
	}
	return nil
}

// WebhookRequest carries the body exactly as received. It is never re-encoded.
type WebhookRequest struct {
	Payload   []byte
	Signature string
}

func NewWebhookRequestFromContext(ctx echo.Context) (*WebhookRequest, error) {
	body := http.MaxBytesReader(ctx.Response(), ctx.Request().Body, MaxWebhookPayloadBytes)
	payload, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	return &WebhookRequest{
		Payload:   payload,
		Signature: strings.TrimSpace(ctx.Request().Header.Get("Stripe-Signature")),
	}, nil
}

func (r *WebhookRequest) Validate() error {
	if len(r.Payload) == 0 {
		return errors.New("payload is required")
	}
	return nil
}
