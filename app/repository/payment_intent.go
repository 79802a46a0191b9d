package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrPaymentIntentAlreadyExists = errors.New("payment intent already exists")

const paymentIntentColumns = `id, gateway_intent_id, gateway_customer_id, amount_minor, currency, status,
	idempotency_key, created_at, updated_at`

type PaymentIntentRepository struct {
	db DBTX
}

func NewPaymentIntentRepository(db DBTX) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

func (r *PaymentIntentRepository) Create(ctx context.Context, intent *entity.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (
			gateway_intent_id, gateway_customer_id, amount_minor, currency, status,
			idempotency_key, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		intent.GatewayIntentID,
		intent.GatewayCustomerID,
		intent.AmountMinor,
		intent.Currency,
		intent.Status,
		intent.IdempotencyKey,
		intent.CreatedAt,
		intent.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPaymentIntentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	intent.ID = uint64(id)
	return nil
}

func (r *PaymentIntentRepository) FindByIdempotencyKey(ctx context.Context, key string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE idempotency_key = ? LIMIT 1`
	return r.findOne(ctx, query, key)
}

func (r *PaymentIntentRepository) FindByGatewayID(ctx context.Context, gatewayIntentID string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE gateway_intent_id = ? LIMIT 1`
	return r.findOne(ctx, query, gatewayIntentID)
}

// FindByGatewayIDForUpdate locks the intent row until the surrounding transaction ends.
// Concurrent confirmations of the same intent queue behind this lock.
func (r *PaymentIntentRepository) FindByGatewayIDForUpdate(ctx context.Context, gatewayIntentID string) (*entity.PaymentIntent, error) {
	query := `SELECT ` + paymentIntentColumns + ` FROM payment_intents WHERE gateway_intent_id = ? LIMIT 1 FOR UPDATE`
	return r.findOne(ctx, query, gatewayIntentID)
}

// UpdateStatus moves the intent to status unless it already reached succeeded or canceled.
func (r *PaymentIntentRepository) UpdateStatus(ctx context.Context, gatewayIntentID, status string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_intents
		SET status = ?, updated_at = ?
		WHERE gateway_intent_id = ?
		  AND status NOT IN (?, ?)
		  AND status <> ?
	`

	result, err := r.db.ExecContext(ctx, query,
		status,
		now,
		gatewayIntentID,
		entity.PaymentStatusSucceeded,
		entity.PaymentStatusCanceled,
		status,
	)
	if err != nil {
		return false, err
	}
	return affectedOne(result)
}

func (r *PaymentIntentRepository) ListStale(ctx context.Context, before time.Time, limit int32) ([]*entity.PaymentIntent, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(entity.PendingPaymentStatuses)), ", ")
	query := `SELECT ` + paymentIntentColumns + `
		FROM payment_intents
		WHERE status IN (` + placeholders + `)
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	args := make([]interface{}, 0, len(entity.PendingPaymentStatuses)+2)
	for _, status := range entity.PendingPaymentStatuses {
		args = append(args, status)
	}
	args = append(args, before, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	intents := make([]*entity.PaymentIntent, 0)
	for rows.Next() {
		item := &entity.PaymentIntent{}
		if err := scanPaymentIntent(rows, item); err != nil {
			return nil, err
		}
		intents = append(intents, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return intents, nil
}

func (r *PaymentIntentRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.PaymentIntent, error) {
	intent := &entity.PaymentIntent{}
	if err := scanPaymentIntent(r.db.QueryRowContext(ctx, query, args...), intent); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return intent, nil
}

func scanPaymentIntent(scan rowScanner, intent *entity.PaymentIntent) error {
	return scan.Scan(
		&intent.ID,
		&intent.GatewayIntentID,
		&intent.GatewayCustomerID,
		&intent.AmountMinor,
		&intent.Currency,
		&intent.Status,
		&intent.IdempotencyKey,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
}
