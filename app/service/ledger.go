package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/repository"
)

type CustomerRepository interface {
	Create(ctx context.Context, customer *entity.Customer) error
	UpsertByGatewayID(ctx context.Context, customer *entity.Customer) error
	FindByCorrelationKey(ctx context.Context, key string) (*entity.Customer, error)
	FindByGatewayID(ctx context.Context, gatewayCustomerID string) (*entity.Customer, error)
}

type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *entity.PaymentIntent) error
	FindByIdempotencyKey(ctx context.Context, key string) (*entity.PaymentIntent, error)
	FindByGatewayID(ctx context.Context, gatewayIntentID string) (*entity.PaymentIntent, error)
	FindByGatewayIDForUpdate(ctx context.Context, gatewayIntentID string) (*entity.PaymentIntent, error)
	UpdateStatus(ctx context.Context, gatewayIntentID, status string, now time.Time) (bool, error)
	ListStale(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentIntent, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	UpsertFromGateway(ctx context.Context, payment *entity.Payment) error
	UpdateStatusByIntentID(ctx context.Context, gatewayIntentID, status string, now time.Time) (bool, error)
	LinkSubscription(ctx context.Context, paymentID uint64, gatewaySubscriptionID string, now time.Time) error
	FindByIntentID(ctx context.Context, gatewayIntentID string) (*entity.Payment, error)
	ListByCustomer(ctx context.Context, gatewayCustomerID string, limit, offset int32) ([]*entity.Payment, error)
}

type SubscriptionRepository interface {
	Create(ctx context.Context, subscription *entity.Subscription) error
	Upsert(ctx context.Context, subscription *entity.Subscription) error
	EnsureExists(ctx context.Context, subscription *entity.Subscription) error
	ActivateIfPending(ctx context.Context, gatewaySubscriptionID string, now time.Time) (bool, error)
	FindByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*entity.Subscription, error)
	ListByCustomer(ctx context.Context, gatewayCustomerID string, limit, offset int32) ([]*entity.Subscription, error)
}

type WebhookEventRepository interface {
	Record(ctx context.Context, event *entity.WebhookEvent) error
	FindByGatewayID(ctx context.Context, gatewayEventID string) (*entity.WebhookEvent, error)
}

// Repositories groups the ledger collections bound to one connection or transaction.
type Repositories struct {
	Customers     CustomerRepository
	Intents       PaymentIntentRepository
	Payments      PaymentRepository
	Subscriptions SubscriptionRepository
	WebhookEvents WebhookEventRepository
}

func NewSQLRepositories(db repository.DBTX) *Repositories {
	return &Repositories{
		Customers:     repository.NewCustomerRepository(db),
		Intents:       repository.NewPaymentIntentRepository(db),
		Payments:      repository.NewPaymentRepository(db),
		Subscriptions: repository.NewSubscriptionRepository(db),
		WebhookEvents: repository.NewWebhookEventRepository(db),
	}
}

// Ledger is the transactional store behind the orchestrator and the reconciler.
// Repositories handed to fn are bound to the transaction and must not escape it.
type Ledger interface {
	Repos() *Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error
}

type SQLLedger struct {
	repos *Repositories
	txm   *repository.TxManager
}

func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{
		repos: NewSQLRepositories(db),
		txm:   repository.NewTxManager(db),
	}
}

func (l *SQLLedger) Repos() *Repositories {
	return l.repos
}

func (l *SQLLedger) WithinTx(ctx context.Context, fn func(ctx context.Context, repos *Repositories) error) error {
	return l.txm.WithinTx(ctx, func(ctx context.Context, tx repository.DBTX) error {
		return fn(ctx, NewSQLRepositories(tx))
	})
}
