package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/eventcache"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
	EventCustomerCreated        = "customer.created"
	EventCheckoutCompleted      = "checkout.session.completed"
	EventInvoicePaid            = "invoice.payment_succeeded"
)

// Ack is returned for every event that passed signature verification.
type Ack struct {
	EventID   string
	EventType string
	Outcome   string
	Duplicate bool
}

// WebhookReconciler applies verified gateway events to the ledger. Handler failures
// are recorded and logged but never returned: the caller always acknowledges.
type WebhookReconciler struct {
	ledger  Ledger
	gateway provider.Gateway
	cache   eventcache.Store
	secret  string
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewWebhookReconciler(ledger Ledger, gateway provider.Gateway, cache eventcache.Store, secret string, m *metrics.Metrics) *WebhookReconciler {
	return &WebhookReconciler{
		ledger:  ledger,
		gateway: gateway,
		cache:   cache,
		secret:  secret,
		metrics: m,
		logger:  factory.NewModuleLogger("webhook-reconciler"),
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *WebhookReconciler) HandleEvent(ctx context.Context, payload []byte, signature string) (*Ack, error) {
	ctx, span := r.tracer.Start(ctx, "WebhookReconciler.HandleEvent")
	defer span.End()

	event, err := r.gateway.ConstructVerifiedEvent(payload, signature, r.secret)
	if err != nil {
		r.metrics.RecordWebhookEvent("unknown", "rejected")
		r.logger.WithError(err).Warn("Webhook signature verification failed")
		return nil, fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}
	span.SetAttributes(
		attribute.String("billing.event_id", event.ID),
		attribute.String("billing.event_type", event.Type),
	)

	logger := r.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
	})
	ack := &Ack{EventID: event.ID, EventType: event.Type}

	if r.alreadyApplied(ctx, logger, event.ID) {
		ack.Outcome = entity.WebhookEventApplied
		ack.Duplicate = true
		r.metrics.RecordWebhookEvent(event.Type, "duplicate")
		logger.Debug("Webhook event already applied")
		return ack, nil
	}

	outcome, applyErr := r.apply(ctx, event)
	ack.Outcome = outcome

	record := &entity.WebhookEvent{
		GatewayEventID: event.ID,
		EventType:      event.Type,
		Status:         outcome,
		CreatedAt:      r.now(),
		UpdatedAt:      r.now(),
	}
	if applyErr != nil {
		msg := applyErr.Error()
		record.LastError = &msg
		logger.WithError(applyErr).Error("Webhook handler failed")
	}
	if err := r.ledger.Repos().WebhookEvents.Record(ctx, record); err != nil {
		logger.WithError(err).Error("Failed to record webhook event")
	}

	if outcome == entity.WebhookEventApplied && r.cache != nil {
		if err := r.cache.MarkProcessed(ctx, event.ID); err != nil {
			logger.WithError(err).Warn("Failed to cache processed webhook event")
		}
	}
	if outcome == entity.WebhookEventIgnored {
		logger.Info("Ignoring unhandled webhook event type")
	}

	r.metrics.RecordWebhookEvent(event.Type, outcome)
	return ack, nil
}

func (r *WebhookReconciler) alreadyApplied(ctx context.Context, logger logrus.FieldLogger, eventID string) bool {
	if r.cache != nil {
		seen, err := r.cache.Seen(ctx, eventID)
		if err != nil {
			logger.WithError(err).Warn("Processed event cache lookup failed")
		} else if seen {
			return true
		}
	}

	stored, err := r.ledger.Repos().WebhookEvents.FindByGatewayID(ctx, eventID)
	if err != nil {
		logger.WithError(err).Warn("Webhook event log lookup failed")
		return false
	}
	return stored != nil && stored.Status == entity.WebhookEventApplied
}

// apply runs the handler for the event type in one ledger transaction.
func (r *WebhookReconciler) apply(ctx context.Context, event *provider.Event) (string, error) {
	var handler func(ctx context.Context, repos *Repositories, object json.RawMessage) error
	switch event.Type {
	case EventPaymentIntentSucceeded:
		handler = r.handleIntentSucceeded
	case EventPaymentIntentFailed:
		handler = r.handleIntentFailed
	case EventCustomerCreated:
		handler = r.handleCustomerCreated
	case EventCheckoutCompleted:
		handler = r.handleCheckoutCompleted
	case EventInvoicePaid:
		handler = r.handleInvoicePaid
	default:
		return entity.WebhookEventIgnored, nil
	}

	err := r.ledger.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
		return handler(ctx, repos, event.Object)
	})
	if err != nil {
		return entity.WebhookEventFailed, err
	}
	return entity.WebhookEventApplied, nil
}

func (r *WebhookReconciler) handleIntentSucceeded(ctx context.Context, repos *Repositories, object json.RawMessage) error {
	var intent intentObject
	if err := decodeObject(object, &intent); err != nil {
		return err
	}
	return markIntentSucceeded(ctx, repos, &provider.Intent{
		ID:              intent.ID,
		CustomerID:      string(intent.Customer),
		PaymentMethodID: string(intent.PaymentMethod),
		AmountMinor:     intent.Amount,
		Currency:        intent.Currency,
		Status:          entity.PaymentStatusSucceeded,
	}, r.now())
}

// handleIntentFailed only moves existing rows. A failed confirmation never creates a Payment.
func (r *WebhookReconciler) handleIntentFailed(ctx context.Context, repos *Repositories, object json.RawMessage) error {
	var intent intentObject
	if err := decodeObject(object, &intent); err != nil {
		return err
	}
	return markIntentTerminal(ctx, repos, intent.ID, entity.PaymentStatusFailed, r.now())
}

func (r *WebhookReconciler) handleCustomerCreated(ctx context.Context, repos *Repositories, object json.RawMessage) error {
	var obj customerObject
	if err := decodeObject(object, &obj); err != nil {
		return err
	}

	now := r.now()
	customer := &entity.Customer{
		GatewayCustomerID: obj.ID,
		Name:              obj.Name,
		Email:             obj.Email,
		Metadata:          obj.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if key := obj.Metadata["company"]; key != "" {
		customer.CorrelationKey = &key
	}

	err := repos.Customers.UpsertByGatewayID(ctx, customer)
	if errors.Is(err, repository.ErrCustomerAlreadyExists) {
		// another gateway customer already owns the key
		customer.CorrelationKey = nil
		err = repos.Customers.UpsertByGatewayID(ctx, customer)
	}
	return err
}

func (r *WebhookReconciler) handleCheckoutCompleted(ctx context.Context, repos *Repositories, object json.RawMessage) error {
	var session checkoutSessionObject
	if err := decodeObject(object, &session); err != nil {
		return err
	}

	now := r.now()
	if session.PaymentStatus == "paid" && session.PaymentIntent != "" {
		if err := markIntentSucceeded(ctx, repos, &provider.Intent{
			ID:         string(session.PaymentIntent),
			CustomerID: string(session.Customer),
			Currency:   session.Currency,
			Status:     entity.PaymentStatusSucceeded,
		}, now); err != nil {
			return err
		}
	}

	if session.Subscription != "" {
		return repos.Subscriptions.EnsureExists(ctx, &entity.Subscription{
			GatewaySubscriptionID: string(session.Subscription),
			GatewayCustomerID:     string(session.Customer),
			Quantity:              1,
			Status:                entity.SubscriptionStatusIncomplete,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
	}
	return nil
}

func (r *WebhookReconciler) handleInvoicePaid(ctx context.Context, repos *Repositories, object json.RawMessage) error {
	var invoice invoiceObject
	if err := decodeObject(object, &invoice); err != nil {
		return err
	}

	now := r.now()
	if subscriptionID := invoice.subscriptionID(); subscriptionID != "" {
		if _, err := repos.Subscriptions.ActivateIfPending(ctx, subscriptionID, now); err != nil {
			return err
		}
	}

	if invoice.PaymentIntent != "" {
		return markIntentSucceeded(ctx, repos, &provider.Intent{
			ID:          string(invoice.PaymentIntent),
			CustomerID:  string(invoice.Customer),
			AmountMinor: invoice.AmountPaid,
			Currency:    invoice.Currency,
			Status:      entity.PaymentStatusSucceeded,
		}, now)
	}
	return nil
}

// markIntentSucceeded moves the local intent to succeeded and upserts its Payment.
// The intent row, when present, is locked for the rest of the transaction so an
// in-flight confirmation of the same intent is serialized with this write.
func markIntentSucceeded(ctx context.Context, repos *Repositories, gwIntent *provider.Intent, now time.Time) error {
	if gwIntent.ID == "" {
		return fmt.Errorf("%w: payment intent id is missing", ErrInvalidArgument)
	}

	local, err := repos.Intents.FindByGatewayIDForUpdate(ctx, gwIntent.ID)
	if err != nil {
		return err
	}

	payment := &entity.Payment{
		GatewayIntentID:   gwIntent.ID,
		GatewayCustomerID: gwIntent.CustomerID,
		PaymentMethodID:   gwIntent.PaymentMethodID,
		AmountMinor:       gwIntent.AmountMinor,
		Currency:          gwIntent.Currency,
		Status:            entity.PaymentStatusSucceeded,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if local != nil {
		if _, err := repos.Intents.UpdateStatus(ctx, gwIntent.ID, entity.PaymentStatusSucceeded, now); err != nil {
			return err
		}
		payment.GatewayCustomerID = firstNonEmpty(payment.GatewayCustomerID, local.GatewayCustomerID)
		if payment.AmountMinor == 0 {
			payment.AmountMinor = local.AmountMinor
		}
		payment.Currency = firstNonEmpty(payment.Currency, local.Currency)
	}

	return repos.Payments.UpsertFromGateway(ctx, payment)
}

// markIntentTerminal applies a failed or canceled status to whatever rows exist.
func markIntentTerminal(ctx context.Context, repos *Repositories, intentID, status string, now time.Time) error {
	if intentID == "" {
		return fmt.Errorf("%w: payment intent id is missing", ErrInvalidArgument)
	}
	if _, err := repos.Intents.UpdateStatus(ctx, intentID, status, now); err != nil {
		return err
	}
	_, err := repos.Payments.UpdateStatusByIntentID(ctx, intentID, status, now)
	return err
}

// gatewayRef is an expandable gateway reference: either an id string or an object with an id.
type gatewayRef string

func (g *gatewayRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*g = ""
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*g = gatewayRef(id)
		return nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*g = gatewayRef(obj.ID)
	return nil
}

type intentObject struct {
	ID            string     `json:"id"`
	Customer      gatewayRef `json:"customer"`
	PaymentMethod gatewayRef `json:"payment_method"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
}

type customerObject struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

type checkoutSessionObject struct {
	ID            string     `json:"id"`
	Customer      gatewayRef `json:"customer"`
	PaymentIntent gatewayRef `json:"payment_intent"`
	Subscription  gatewayRef `json:"subscription"`
	PaymentStatus string     `json:"payment_status"`
	Currency      string     `json:"currency"`
}

type invoiceObject struct {
	ID            string     `json:"id"`
	Customer      gatewayRef `json:"customer"`
	Subscription  gatewayRef `json:"subscription"`
	PaymentIntent gatewayRef `json:"payment_intent"`
	AmountPaid    int64      `json:"amount_paid"`
	Currency      string     `json:"currency"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription gatewayRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (i *invoiceObject) subscriptionID() string {
	if i.Subscription != "" {
		return string(i.Subscription)
	}
	if i.Parent != nil && i.Parent.SubscriptionDetails != nil {
		return string(i.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

func decodeObject(object json.RawMessage, into interface{}) error {
	if len(object) == 0 {
		return fmt.Errorf("%w: event has no data object", ErrInvalidArgument)
	}
	if err := json.Unmarshal(object, into); err != nil {
		return fmt.Errorf("%w: decode event object: %w", ErrInvalidArgument, err)
	}
	return nil
}
