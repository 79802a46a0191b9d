package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
)

const paymentColumns = `id, gateway_intent_id, gateway_customer_id, payment_method_id,
	amount_minor, currency, status, gateway_subscription_id, created_at, updated_at`

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			gateway_intent_id, gateway_customer_id, payment_method_id,
			amount_minor, currency, status, gateway_subscription_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.GatewayIntentID,
		payment.GatewayCustomerID,
		payment.PaymentMethodID,
		payment.AmountMinor,
		payment.Currency,
		payment.Status,
		nullableStringValue(payment.GatewaySubscriptionID),
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

// Update rewrites the confirmation snapshot of a payment that has not succeeded yet.
func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	query := `
		UPDATE payments SET
			payment_method_id = ?,
			status = ?,
			updated_at = ?
		WHERE id = ?
		  AND status <> ?
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.PaymentMethodID,
		payment.Status,
		payment.UpdatedAt,
		payment.ID,
		entity.PaymentStatusSucceeded,
	)
	if err != nil {
		return err
	}

	updated, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !updated {
		return ErrPaymentNotFound
	}
	return nil
}

// UpsertFromGateway records a payment reported by the gateway. Replays converge on
// the same row and a succeeded status is never overwritten.
func (r *PaymentRepository) UpsertFromGateway(ctx context.Context, payment *entity.Payment) error {
	query := `
		INSERT INTO payments (
			gateway_intent_id, gateway_customer_id, payment_method_id,
			amount_minor, currency, status, gateway_subscription_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)
		ON DUPLICATE KEY UPDATE
			payment_method_id = IF(VALUES(payment_method_id) = '', payment_method_id, VALUES(payment_method_id)),
			status = IF(status = ?, status, VALUES(status)),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		payment.GatewayIntentID,
		payment.GatewayCustomerID,
		payment.PaymentMethodID,
		payment.AmountMinor,
		payment.Currency,
		payment.Status,
		payment.CreatedAt,
		payment.UpdatedAt,
		entity.PaymentStatusSucceeded,
	)
	return err
}

// UpdateStatusByIntentID is a compare-and-set that leaves succeeded payments untouched.
func (r *PaymentRepository) UpdateStatusByIntentID(ctx context.Context, gatewayIntentID, status string, now time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET status = ?, updated_at = ?
		WHERE gateway_intent_id = ?
		  AND status <> ?
		  AND status <> ?
	`

	result, err := r.db.ExecContext(ctx, query, status, now, gatewayIntentID, entity.PaymentStatusSucceeded, status)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *PaymentRepository) LinkSubscription(ctx context.Context, paymentID uint64, gatewaySubscriptionID string, now time.Time) error {
	query := `UPDATE payments SET gateway_subscription_id = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, gatewaySubscriptionID, now, paymentID)
	if err != nil {
		return err
	}
	updated, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !updated {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) FindByIntentID(ctx context.Context, gatewayIntentID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_intent_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, gatewayIntentID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *PaymentRepository) ListByCustomer(ctx context.Context, gatewayCustomerID string, limit, offset int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE gateway_customer_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, gatewayCustomerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item := &entity.Payment{}
		if err := scanPayment(rows, item); err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var subscriptionID sql.NullString

	err := scan.Scan(
		&payment.ID,
		&payment.GatewayIntentID,
		&payment.GatewayCustomerID,
		&payment.PaymentMethodID,
		&payment.AmountMinor,
		&payment.Currency,
		&payment.Status,
		&subscriptionID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.GatewaySubscriptionID = stringPtrFromNull(subscriptionID)
	return nil
}
