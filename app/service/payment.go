package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/metrics"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
	"github.com/vibast-solutions/ms-go-billing/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)

	tracerName = "github.com/vibast-solutions/ms-go-billing/app/service"
)

type CreateCustomerRequest interface {
	GetCorrelationKey() string
	GetName() string
	GetEmail() string
	GetMetadata() map[string]string
}

type CreatePaymentIntentRequest interface {
	GetCustomerID() string
	GetAmount() int64
	GetCurrency() string
	GetIdempotencyKey() string
}

type ConfirmPaymentIntentRequest interface {
	GetIntentID() string
	GetPaymentMethodID() string
}

type CreateSubscriptionRequest interface {
	GetIntentID() string
	GetPaymentMethodID() string
	GetCustomerID() string
	GetPriceID() string
}

type UpdateSubscriptionRequest interface {
	GetSubscriptionID() string
	GetPriceID() string
	GetQuantity() int64
}

type CreateInvoiceRequest interface {
	GetCustomerID() string
	GetSubscriptionID() string
}

type ListByCustomerRequest interface {
	GetCustomerID() string
	GetLimit() int32
	GetOffset() int32
}

// PaymentService coordinates gateway calls with ledger writes. It keeps no state
// between calls.
type PaymentService struct {
	ledger     Ledger
	gateway    provider.Gateway
	cfg        config.BillingConfig
	currencies map[string]struct{}
	metrics    *metrics.Metrics
	logger     logrus.FieldLogger
	tracer     trace.Tracer
	now        func() time.Time
}

func NewPaymentService(ledger Ledger, gateway provider.Gateway, cfg config.BillingConfig, m *metrics.Metrics) *PaymentService {
	currencies := make(map[string]struct{}, len(cfg.SupportedCurrencies))
	for _, code := range cfg.SupportedCurrencies {
		currencies[strings.ToLower(strings.TrimSpace(code))] = struct{}{}
	}

	return &PaymentService{
		ledger:     ledger,
		gateway:    gateway,
		cfg:        cfg,
		currencies: currencies,
		metrics:    m,
		logger:     factory.NewModuleLogger("payment-service"),
		tracer:     otel.Tracer(tracerName),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateCustomer returns the customer owning correlationKey, creating it at the
// gateway and locally when none exists. created reports whether a new record was made.
func (s *PaymentService) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (customer *entity.Customer, created bool, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreateCustomer")
	defer func() { s.finish(span, "create_customer", err) }()

	key := strings.TrimSpace(req.GetCorrelationKey())
	if key == "" {
		return nil, false, invalidArgument("correlation key is required")
	}
	span.SetAttributes(attribute.String("billing.correlation_key", key))

	repos := s.ledger.Repos()
	existing, err := repos.Customers.FindByCorrelationKey(ctx, key)
	if err != nil {
		return nil, false, persistenceError(err)
	}
	if existing != nil {
		return existing, false, nil
	}

	metadata := make(map[string]string, len(req.GetMetadata())+1)
	for k, v := range req.GetMetadata() {
		metadata[k] = v
	}
	metadata["company"] = key
	name := strings.TrimSpace(req.GetName())
	if name == "" {
		name = key
	}
	email := strings.TrimSpace(req.GetEmail())

	start := time.Now()
	gwCustomer, err := s.gateway.CreateCustomer(ctx, &provider.CreateCustomerInput{
		Name:           name,
		Email:          email,
		Locale:         s.cfg.CustomerLocale,
		Metadata:       metadata,
		IdempotencyKey: "customer:" + key,
	})
	s.metrics.ObserveGateway("create_customer", start)
	if err != nil {
		return nil, false, gatewayError(err)
	}

	now := s.now()
	customer = &entity.Customer{
		GatewayCustomerID: gwCustomer.ID,
		CorrelationKey:    &key,
		Name:              name,
		Email:             email,
		Metadata:          metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repos.Customers.Create(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrCustomerAlreadyExists) {
			winner, findErr := repos.Customers.FindByCorrelationKey(ctx, key)
			if findErr == nil && winner != nil {
				return winner, false, nil
			}
		}
		s.recordDebt("create_customer", gwCustomer.ID, err)
		return nil, false, persistenceError(err)
	}

	return customer, true, nil
}

// CreatePaymentIntent validates before any network call. A key that was already used
// returns the intent recorded for it.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, req CreatePaymentIntentRequest) (intent *entity.PaymentIntent, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreatePaymentIntent")
	defer func() { s.finish(span, "create_payment_intent", err) }()

	customerID := strings.TrimSpace(req.GetCustomerID())
	amount := req.GetAmount()
	currency := strings.ToLower(strings.TrimSpace(req.GetCurrency()))
	key := strings.TrimSpace(req.GetIdempotencyKey())

	if amount <= 0 {
		return nil, invalidArgument("amount must be > 0")
	}
	if !s.supportsCurrency(currency) {
		return nil, invalidArgument(fmt.Sprintf("currency %q is not supported", currency))
	}
	if customerID == "" {
		return nil, invalidArgument("customer id is required")
	}
	if key == "" {
		return nil, invalidArgument("idempotency key is required")
	}

	repos := s.ledger.Repos()
	existing, err := repos.Intents.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, persistenceError(err)
	}
	if existing != nil {
		if existing.GatewayCustomerID != customerID || existing.AmountMinor != amount || existing.Currency != currency {
			return nil, invalidArgument("idempotency key was already used with different parameters")
		}
		return existing, nil
	}

	start := time.Now()
	gwIntent, err := s.gateway.CreateIntent(ctx, &provider.CreateIntentInput{
		CustomerID:     customerID,
		AmountMinor:    amount,
		Currency:       currency,
		IdempotencyKey: key,
	})
	s.metrics.ObserveGateway("create_intent", start)
	if err != nil {
		return nil, gatewayError(err)
	}
	span.SetAttributes(attribute.String("billing.intent_id", gwIntent.ID))

	status := gwIntent.Status
	if status == "" {
		status = entity.PaymentStatusCreated
	}
	now := s.now()
	intent = &entity.PaymentIntent{
		GatewayIntentID:   gwIntent.ID,
		GatewayCustomerID: customerID,
		AmountMinor:       amount,
		Currency:          currency,
		Status:            status,
		IdempotencyKey:    key,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repos.Intents.Create(ctx, intent); err != nil {
		if errors.Is(err, repository.ErrPaymentIntentAlreadyExists) {
			winner, findErr := repos.Intents.FindByIdempotencyKey(ctx, key)
			if findErr == nil && winner != nil {
				return winner, nil
			}
		}
		s.recordDebt("create_payment_intent", gwIntent.ID, err)
		return nil, persistenceError(err)
	}

	return intent, nil
}

// ConfirmPaymentIntent confirms at the gateway and records the Payment in one ledger
// transaction. Replays after a successful commit return the recorded Payment.
func (s *PaymentService) ConfirmPaymentIntent(ctx context.Context, req ConfirmPaymentIntentRequest) (payment *entity.Payment, err error) {
	intentID := strings.TrimSpace(req.GetIntentID())
	paymentMethodID := strings.TrimSpace(req.GetPaymentMethodID())

	ctx, span := s.tracer.Start(ctx, "PaymentService.ConfirmPaymentIntent",
		trace.WithAttributes(attribute.String("billing.intent_id", intentID)))
	defer func() { s.finish(span, "confirm_payment_intent", err) }()

	if intentID == "" || paymentMethodID == "" {
		return nil, invalidArgument("payment intent id and payment method id are required")
	}

	var advanced bool
	err = s.ledger.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
		confirmed, err := s.confirmInTx(ctx, repos, intentID, paymentMethodID, "", &advanced)
		if err != nil {
			return err
		}
		payment = confirmed
		return nil
	})
	if err != nil {
		return nil, s.txError("confirm_payment_intent", intentID, advanced, err)
	}
	return payment, nil
}

// ProcessPaymentAndCreateSubscription confirms the intent and provisions a subscription
// inside one outer transaction. A payment that does not reach succeeded aborts the whole
// unit before the subscription is attempted.
func (s *PaymentService) ProcessPaymentAndCreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (subscription *entity.Subscription, err error) {
	intentID := strings.TrimSpace(req.GetIntentID())
	paymentMethodID := strings.TrimSpace(req.GetPaymentMethodID())
	customerID := strings.TrimSpace(req.GetCustomerID())
	priceID := strings.TrimSpace(req.GetPriceID())

	ctx, span := s.tracer.Start(ctx, "PaymentService.ProcessPaymentAndCreateSubscription",
		trace.WithAttributes(
			attribute.String("billing.intent_id", intentID),
			attribute.String("billing.customer_id", customerID),
			attribute.String("billing.price_id", priceID),
		))
	defer func() { s.finish(span, "process_payment_and_create_subscription", err) }()

	if intentID == "" || paymentMethodID == "" || customerID == "" || priceID == "" {
		return nil, invalidArgument("payment intent, payment method, customer and price are required")
	}

	var advanced bool
	err = s.ledger.WithinTx(ctx, func(ctx context.Context, repos *Repositories) error {
		payment, err := s.confirmInTx(ctx, repos, intentID, paymentMethodID, customerID, &advanced)
		if err != nil {
			return err
		}
		if !payment.Succeeded() {
			return fmt.Errorf("%w: payment intent %s is %s", ErrPaymentNotSucceeded, intentID, payment.Status)
		}

		if payment.GatewaySubscriptionID != nil {
			existing, err := repos.Subscriptions.FindByGatewayID(ctx, *payment.GatewaySubscriptionID)
			if err != nil {
				return persistenceError(err)
			}
			if existing != nil {
				subscription = existing
				return nil
			}
		}

		start := time.Now()
		gwSub, err := s.gateway.CreateSubscription(ctx, &provider.CreateSubscriptionInput{
			CustomerID:      customerID,
			PriceID:         priceID,
			Quantity:        1,
			PaymentMethodID: paymentMethodID,
			IdempotencyKey:  "subscription:" + intentID,
		})
		s.metrics.ObserveGateway("create_subscription", start)
		if err != nil {
			return gatewayError(err)
		}
		advanced = true

		now := s.now()
		created := subscriptionFromGateway(gwSub, customerID, now)
		if created.PriceID == "" {
			created.PriceID = priceID
		}
		created.PaymentID = &payment.ID

		if err := repos.Subscriptions.Create(ctx, created); err != nil {
			if !errors.Is(err, repository.ErrSubscriptionAlreadyExists) {
				return persistenceError(err)
			}
			if err := repos.Subscriptions.Upsert(ctx, created); err != nil {
				return persistenceError(err)
			}
			stored, err := repos.Subscriptions.FindByGatewayID(ctx, created.GatewaySubscriptionID)
			if err != nil {
				return persistenceError(err)
			}
			if stored != nil {
				created = stored
			}
		}

		if err := repos.Payments.LinkSubscription(ctx, payment.ID, created.GatewaySubscriptionID, now); err != nil {
			return persistenceError(err)
		}

		subscription = created
		return nil
	})
	if err != nil {
		return nil, s.txError("process_payment_and_create_subscription", intentID, advanced, err)
	}
	return subscription, nil
}

// confirmInTx runs inside a ledger transaction. The intent row stays locked until the
// transaction ends, so concurrent confirmations of one intent are serialized.
func (s *PaymentService) confirmInTx(ctx context.Context, repos *Repositories, intentID, paymentMethodID, expectedCustomerID string, advanced *bool) (*entity.Payment, error) {
	intent, err := repos.Intents.FindByGatewayIDForUpdate(ctx, intentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if intent == nil {
		return nil, fmt.Errorf("%w: payment intent %s", ErrNotFound, intentID)
	}
	if expectedCustomerID != "" && intent.GatewayCustomerID != "" && intent.GatewayCustomerID != expectedCustomerID {
		return nil, invalidArgument("payment intent does not belong to customer")
	}

	existing, err := repos.Payments.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if existing.Succeeded() {
		if existing.PaymentMethodID == "" || existing.PaymentMethodID == paymentMethodID {
			return existing, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrAlreadyConfirmed, intentID)
	}

	start := time.Now()
	confirmed, err := s.gateway.ConfirmIntent(ctx, intentID, paymentMethodID)
	s.metrics.ObserveGateway("confirm_intent", start)
	if err != nil {
		return nil, gatewayError(err)
	}
	*advanced = true

	now := s.now()
	payment := existing
	if payment != nil {
		payment.PaymentMethodID = paymentMethodID
		payment.Status = confirmed.Status
		payment.UpdatedAt = now
		if err := repos.Payments.Update(ctx, payment); err != nil {
			return nil, persistenceError(err)
		}
	} else {
		payment = &entity.Payment{
			GatewayIntentID:   intent.GatewayIntentID,
			GatewayCustomerID: firstNonEmpty(intent.GatewayCustomerID, confirmed.CustomerID),
			PaymentMethodID:   paymentMethodID,
			AmountMinor:       intent.AmountMinor,
			Currency:          intent.Currency,
			Status:            confirmed.Status,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := repos.Payments.Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrPaymentAlreadyExists) {
				return nil, fmt.Errorf("%w: %s", ErrAlreadyConfirmed, intentID)
			}
			return nil, persistenceError(err)
		}
	}

	if _, err := repos.Intents.UpdateStatus(ctx, intentID, confirmed.Status, now); err != nil {
		return nil, persistenceError(err)
	}

	return payment, nil
}

// UpdateSubscription patches the first line item of the subscription. The gateway
// only accepts item ids, so the current subscription is read first.
func (s *PaymentService) UpdateSubscription(ctx context.Context, req UpdateSubscriptionRequest) (subscription *entity.Subscription, err error) {
	subscriptionID := strings.TrimSpace(req.GetSubscriptionID())
	priceID := strings.TrimSpace(req.GetPriceID())
	quantity := req.GetQuantity()
	if quantity == 0 {
		quantity = 1
	}

	ctx, span := s.tracer.Start(ctx, "PaymentService.UpdateSubscription",
		trace.WithAttributes(attribute.String("billing.subscription_id", subscriptionID)))
	defer func() { s.finish(span, "update_subscription", err) }()

	if subscriptionID == "" || priceID == "" {
		return nil, invalidArgument("subscription id and price id are required")
	}
	if quantity < 0 {
		return nil, invalidArgument("quantity must be > 0")
	}

	start := time.Now()
	current, err := s.gateway.RetrieveSubscription(ctx, subscriptionID)
	s.metrics.ObserveGateway("retrieve_subscription", start)
	if err != nil {
		return nil, gatewayError(err)
	}
	if len(current.Items) == 0 {
		return nil, invalidArgument("subscription has no line items")
	}

	start = time.Now()
	updated, err := s.gateway.UpdateSubscription(ctx, subscriptionID, &provider.UpdateSubscriptionInput{
		ItemID:   current.Items[0].ID,
		PriceID:  priceID,
		Quantity: quantity,
	})
	s.metrics.ObserveGateway("update_subscription", start)
	if err != nil {
		return nil, gatewayError(err)
	}

	return s.mirrorSubscription(ctx, "update_subscription", updated, current.CustomerID)
}

// CancelSubscription is idempotent: cancelling a canceled subscription returns it unchanged.
func (s *PaymentService) CancelSubscription(ctx context.Context, subscriptionID string) (subscription *entity.Subscription, err error) {
	subscriptionID = strings.TrimSpace(subscriptionID)

	ctx, span := s.tracer.Start(ctx, "PaymentService.CancelSubscription",
		trace.WithAttributes(attribute.String("billing.subscription_id", subscriptionID)))
	defer func() { s.finish(span, "cancel_subscription", err) }()

	if subscriptionID == "" {
		return nil, invalidArgument("subscription id is required")
	}

	start := time.Now()
	canceled, err := s.gateway.CancelSubscription(ctx, subscriptionID)
	s.metrics.ObserveGateway("cancel_subscription", start)
	if err != nil {
		return nil, gatewayError(err)
	}

	return s.mirrorSubscription(ctx, "cancel_subscription", canceled, "")
}

func (s *PaymentService) GetSubscription(ctx context.Context, subscriptionID string) (subscription *entity.Subscription, err error) {
	subscriptionID = strings.TrimSpace(subscriptionID)

	ctx, span := s.tracer.Start(ctx, "PaymentService.GetSubscription",
		trace.WithAttributes(attribute.String("billing.subscription_id", subscriptionID)))
	defer func() { s.finish(span, "get_subscription", err) }()

	if subscriptionID == "" {
		return nil, invalidArgument("subscription id is required")
	}

	start := time.Now()
	current, err := s.gateway.RetrieveSubscription(ctx, subscriptionID)
	s.metrics.ObserveGateway("retrieve_subscription", start)
	if err != nil {
		return nil, gatewayError(err)
	}

	return s.mirrorSubscription(ctx, "get_subscription", current, "")
}

// RetrievePaymentIntent reads the intent from the gateway and moves the local mirror
// forward. Intents the ledger does not track are returned as the gateway reports them.
func (s *PaymentService) RetrievePaymentIntent(ctx context.Context, intentID string) (intent *entity.PaymentIntent, err error) {
	intentID = strings.TrimSpace(intentID)

	ctx, span := s.tracer.Start(ctx, "PaymentService.RetrievePaymentIntent",
		trace.WithAttributes(attribute.String("billing.intent_id", intentID)))
	defer func() { s.finish(span, "retrieve_payment_intent", err) }()

	if intentID == "" {
		return nil, invalidArgument("payment intent id is required")
	}

	start := time.Now()
	remote, err := s.gateway.RetrieveIntent(ctx, intentID)
	s.metrics.ObserveGateway("retrieve_intent", start)
	if err != nil {
		return nil, gatewayError(err)
	}

	intents := s.ledger.Repos().Intents
	local, err := intents.FindByGatewayID(ctx, intentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if local == nil {
		return &entity.PaymentIntent{
			GatewayIntentID:   remote.ID,
			GatewayCustomerID: remote.CustomerID,
			AmountMinor:       remote.AmountMinor,
			Currency:          remote.Currency,
			Status:            remote.Status,
		}, nil
	}
	if remote.Status == "" || remote.Status == local.Status {
		return local, nil
	}

	updated, err := intents.UpdateStatus(ctx, intentID, remote.Status, s.now())
	if err != nil {
		return nil, persistenceError(err)
	}
	if !updated {
		return local, nil
	}

	local, err = intents.FindByGatewayID(ctx, intentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	return local, nil
}

func (s *PaymentService) GetPaymentByIntentID(ctx context.Context, intentID string) (*entity.Payment, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return nil, invalidArgument("payment intent id is required")
	}

	payment, err := s.ledger.Repos().Payments.FindByIntentID(ctx, intentID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if payment == nil {
		return nil, fmt.Errorf("%w: payment for intent %s", ErrNotFound, intentID)
	}
	return payment, nil
}

func (s *PaymentService) ListCustomerPayments(ctx context.Context, req ListByCustomerRequest) ([]*entity.Payment, error) {
	customerID, limit, offset, err := listArgs(req)
	if err != nil {
		return nil, err
	}

	payments, err := s.ledger.Repos().Payments.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, persistenceError(err)
	}
	return payments, nil
}

func (s *PaymentService) ListCustomerSubscriptions(ctx context.Context, req ListByCustomerRequest) ([]*entity.Subscription, error) {
	customerID, limit, offset, err := listArgs(req)
	if err != nil {
		return nil, err
	}

	subscriptions, err := s.ledger.Repos().Subscriptions.ListByCustomer(ctx, customerID, limit, offset)
	if err != nil {
		return nil, persistenceError(err)
	}
	return subscriptions, nil
}

func (s *PaymentService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (invoice *provider.Invoice, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.CreateInvoice")
	defer func() { s.finish(span, "create_invoice", err) }()

	customerID := strings.TrimSpace(req.GetCustomerID())
	if customerID == "" {
		return nil, invalidArgument("customer id is required")
	}

	start := time.Now()
	invoice, err = s.gateway.CreateInvoice(ctx, &provider.CreateInvoiceInput{
		CustomerID:     customerID,
		SubscriptionID: strings.TrimSpace(req.GetSubscriptionID()),
	})
	s.metrics.ObserveGateway("create_invoice", start)
	if err != nil {
		return nil, gatewayError(err)
	}
	return invoice, nil
}

func (s *PaymentService) GetInvoice(ctx context.Context, invoiceID string) (invoice *provider.Invoice, err error) {
	ctx, span := s.tracer.Start(ctx, "PaymentService.GetInvoice")
	defer func() { s.finish(span, "get_invoice", err) }()

	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, invalidArgument("invoice id is required")
	}

	start := time.Now()
	invoice, err = s.gateway.RetrieveInvoice(ctx, invoiceID)
	s.metrics.ObserveGateway("retrieve_invoice", start)
	if err != nil {
		return nil, gatewayError(err)
	}
	return invoice, nil
}

// mirrorSubscription writes the gateway's view of a subscription to the ledger and
// returns the stored row.
func (s *PaymentService) mirrorSubscription(ctx context.Context, operation string, gwSub *provider.Subscription, fallbackCustomerID string) (*entity.Subscription, error) {
	repos := s.ledger.Repos()
	subscription := subscriptionFromGateway(gwSub, fallbackCustomerID, s.now())

	if err := repos.Subscriptions.Upsert(ctx, subscription); err != nil {
		s.recordDebt(operation, gwSub.ID, err)
		return nil, persistenceError(err)
	}

	stored, err := repos.Subscriptions.FindByGatewayID(ctx, gwSub.ID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if stored == nil {
		return subscription, nil
	}
	return stored, nil
}

func (s *PaymentService) supportsCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	if len(s.currencies) == 0 {
		return true
	}
	_, ok := s.currencies[code]
	return ok
}

func (s *PaymentService) batchSize() int32 {
	if s.cfg.JobBatchSize > 0 {
		return s.cfg.JobBatchSize
	}
	return defaultBatchSize
}

// txError categorizes an error returned by a ledger transaction. Uncategorized errors
// come from begin or commit; after the gateway advanced they are reconciliation debt.
func (s *PaymentService) txError(operation, intentID string, advanced bool, err error) error {
	if errors.Is(err, ErrPersistence) {
		if advanced {
			s.recordDebt(operation, intentID, err)
		}
		return err
	}
	for _, category := range []error{ErrInvalidArgument, ErrGateway, ErrNotFound, ErrPaymentNotSucceeded, ErrAlreadyConfirmed} {
		if errors.Is(err, category) {
			return err
		}
	}
	if advanced {
		s.recordDebt(operation, intentID, err)
	}
	return persistenceError(err)
}

func (s *PaymentService) recordDebt(operation, gatewayID string, err error) {
	s.metrics.RecordReconciliationDebt(operation)
	s.logger.WithFields(logrus.Fields{
		"operation":  operation,
		"gateway_id": gatewayID,
	}).WithError(err).Error("reconciliation_debt")
}

func (s *PaymentService) finish(span trace.Span, operation string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
	s.metrics.RecordOperation(operation, err)
}

func subscriptionFromGateway(gwSub *provider.Subscription, fallbackCustomerID string, now time.Time) *entity.Subscription {
	subscription := &entity.Subscription{
		GatewaySubscriptionID: gwSub.ID,
		GatewayCustomerID:     firstNonEmpty(gwSub.CustomerID, fallbackCustomerID),
		Quantity:              1,
		Status:                gwSub.Status,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if len(gwSub.Items) > 0 {
		subscription.PriceID = gwSub.Items[0].PriceID
		if gwSub.Items[0].Quantity > 0 {
			subscription.Quantity = gwSub.Items[0].Quantity
		}
	}
	if subscription.Status == "" {
		subscription.Status = entity.SubscriptionStatusIncomplete
	}
	return subscription
}

func listArgs(req ListByCustomerRequest) (string, int32, int32, error) {
	customerID := strings.TrimSpace(req.GetCustomerID())
	if customerID == "" {
		return "", 0, 0, invalidArgument("customer id is required")
	}
	limit := req.GetLimit()
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := req.GetOffset()
	if offset < 0 {
		return "", 0, 0, invalidArgument("offset must be >= 0")
	}
	return customerID, limit, offset, nil
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

func gatewayError(err error) error {
	if errors.Is(err, provider.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrGateway, err)
}

func persistenceError(err error) error {
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
