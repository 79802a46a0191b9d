package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrSubscriptionAlreadyExists = errors.New("subscription already exists")

const subscriptionColumns = `id, gateway_subscription_id, gateway_customer_id, price_id, quantity, status,
	payment_id, created_at, updated_at`

type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			gateway_subscription_id, gateway_customer_id, price_id, quantity, status,
			payment_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		subscription.GatewaySubscriptionID,
		subscription.GatewayCustomerID,
		subscription.PriceID,
		subscription.Quantity,
		subscription.Status,
		nullableUint64Value(subscription.PaymentID),
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrSubscriptionAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	subscription.ID = uint64(id)
	return nil
}

// Upsert mirrors the gateway's view of a subscription. Canceled is terminal locally:
// a late event carrying an older status does not reactivate the row.
func (r *SubscriptionRepository) Upsert(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			gateway_subscription_id, gateway_customer_id, price_id, quantity, status,
			payment_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			price_id = IF(VALUES(price_id) = '', price_id, VALUES(price_id)),
			quantity = VALUES(quantity),
			status = IF(status = ?, status, VALUES(status)),
			payment_id = COALESCE(payment_id, VALUES(payment_id)),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		subscription.GatewaySubscriptionID,
		subscription.GatewayCustomerID,
		subscription.PriceID,
		subscription.Quantity,
		subscription.Status,
		nullableUint64Value(subscription.PaymentID),
		subscription.CreatedAt,
		subscription.UpdatedAt,
		entity.SubscriptionStatusCanceled,
	)
	return err
}

// EnsureExists inserts a placeholder row for a subscription first seen through an
// event. An existing row is left untouched.
func (r *SubscriptionRepository) EnsureExists(ctx context.Context, subscription *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			gateway_subscription_id, gateway_customer_id, price_id, quantity, status,
			payment_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
		ON DUPLICATE KEY UPDATE id = id
	`

	_, err := r.db.ExecContext(ctx, query,
		subscription.GatewaySubscriptionID,
		subscription.GatewayCustomerID,
		subscription.PriceID,
		subscription.Quantity,
		subscription.Status,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	return err
}

// ActivateIfPending moves an incomplete or past_due subscription to active.
func (r *SubscriptionRepository) ActivateIfPending(ctx context.Context, gatewaySubscriptionID string, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions
		SET status = ?, updated_at = ?
		WHERE gateway_subscription_id = ?
		  AND status IN (?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		entity.SubscriptionStatusActive,
		now,
		gatewaySubscriptionID,
		entity.SubscriptionStatusIncomplete,
		entity.SubscriptionStatusPastDue,
	)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *SubscriptionRepository) FindByGatewayID(ctx context.Context, gatewaySubscriptionID string) (*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE gateway_subscription_id = ? LIMIT 1`

	subscription := &entity.Subscription{}
	if err := scanSubscription(r.db.QueryRowContext(ctx, query, gatewaySubscriptionID), subscription); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return subscription, nil
}

func (r *SubscriptionRepository) ListByCustomer(ctx context.Context, gatewayCustomerID string, limit, offset int32) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE gateway_customer_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, gatewayCustomerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subscriptions := make([]*entity.Subscription, 0)
	for rows.Next() {
		item := &entity.Subscription{}
		if err := scanSubscription(rows, item); err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return subscriptions, nil
}

func scanSubscription(scan rowScanner, subscription *entity.Subscription) error {
	var paymentID sql.NullInt64

	err := scan.Scan(
		&subscription.ID,
		&subscription.GatewaySubscriptionID,
		&subscription.GatewayCustomerID,
		&subscription.PriceID,
		&subscription.Quantity,
		&subscription.Status,
		&paymentID,
		&subscription.CreatedAt,
		&subscription.UpdatedAt,
	)
	if err != nil {
		return err
	}

	subscription.PaymentID = uint64PtrFromNull(paymentID)
	return nil
}
