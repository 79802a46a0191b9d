package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPaymentRepositoryCreateAssignsID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs("pi_1", "cus_1", "pm_1", 1000, "usd", entity.PaymentStatusSucceeded, nil, now, now).
		WillReturnResult(sqlmock.NewResult(42, 1))

	payment := &entity.Payment{
		GatewayIntentID:   "pi_1",
		GatewayCustomerID: "cus_1",
		PaymentMethodID:   "pm_1",
		AmountMinor:       1000,
		Currency:          "usd",
		Status:            entity.PaymentStatusSucceeded,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, repo.Create(context.Background(), payment))
	assert.Equal(t, uint64(42), payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)

	mock.ExpectExec("INSERT INTO payments").
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry 'pi_1'"})

	err := repo.Create(context.Background(), &entity.Payment{GatewayIntentID: "pi_1"})
	assert.ErrorIs(t, err, ErrPaymentAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryFindByIntentID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC()

	columns := []string{
		"id", "gateway_intent_id", "gateway_customer_id", "payment_method_id",
		"amount_minor", "currency", "status", "gateway_subscription_id", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE gateway_intent_id = \\?").
		WithArgs("pi_1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(7, "pi_1", "cus_1", "pm_1", 1000, "usd", "succeeded", "sub_1", now, now))
	mock.ExpectQuery("SELECT (.+) FROM payments WHERE gateway_intent_id = \\?").
		WithArgs("pi_missing").
		WillReturnRows(sqlmock.NewRows(columns))

	payment, err := repo.FindByIntentID(context.Background(), "pi_1")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, uint64(7), payment.ID)
	assert.True(t, payment.Succeeded())
	require.NotNil(t, payment.GatewaySubscriptionID)
	assert.Equal(t, "sub_1", *payment.GatewaySubscriptionID)

	missing, err := repo.FindByIntentID(context.Background(), "pi_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpsertFromGatewayKeepsSucceeded(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("ON DUPLICATE KEY UPDATE").
		WithArgs("pi_1", "cus_1", "pm_1", 1000, "usd", "succeeded", now, now, entity.PaymentStatusSucceeded).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.UpsertFromGateway(context.Background(), &entity.Payment{
		GatewayIntentID:   "pi_1",
		GatewayCustomerID: "cus_1",
		PaymentMethodID:   "pm_1",
		AmountMinor:       1000,
		Currency:          "usd",
		Status:            "succeeded",
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateStatusByIntentID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE payments").
		WithArgs("failed", now, "pi_1", entity.PaymentStatusSucceeded, "failed").
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err := repo.UpdateStatusByIntentID(context.Background(), "pi_1", "failed", now)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryLinkSubscriptionNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRepository(db)

	mock.ExpectExec("UPDATE payments SET gateway_subscription_id").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.LinkSubscription(context.Background(), 9, "sub_1", time.Now())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestPaymentIntentRepositoryUpdateStatusGuardsTerminal(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentIntentRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE payment_intents").
		WithArgs("succeeded", now, "pi_1", entity.PaymentStatusSucceeded, entity.PaymentStatusCanceled, "succeeded").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.UpdateStatus(context.Background(), "pi_1", "succeeded", now)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentIntentRepositoryListStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentIntentRepository(db)
	before := time.Now().UTC().Add(-15 * time.Minute)
	now := time.Now().UTC()

	columns := []string{
		"id", "gateway_intent_id", "gateway_customer_id", "amount_minor", "currency", "status",
		"idempotency_key", "created_at", "updated_at",
	}
	mock.ExpectQuery("FROM payment_intents").
		WithArgs("created", "requires_payment_method", "requires_confirmation", "requires_action", "processing", before, 50).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "pi_1", "cus_1", 1000, "usd", "processing", "key-1", now, now).
			AddRow(2, "pi_2", "cus_1", 500, "eur", "requires_action", "key-2", now, now))

	intents, err := repo.ListStale(context.Background(), before, 50)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "pi_2", intents[1].GatewayIntentID)
	assert.Equal(t, "key-2", intents[1].IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentIntentRepositoryFindForUpdateLocksRow(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	columns := []string{
		"id", "gateway_intent_id", "gateway_customer_id", "amount_minor", "currency", "status",
		"idempotency_key", "created_at", "updated_at",
	}
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM payment_intents WHERE gateway_intent_id = \? LIMIT 1 FOR UPDATE`).
		WithArgs("pi_1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(7, "pi_1", "cus_1", 1000, "usd", "requires_confirmation", "key-1", now, now))
	mock.ExpectCommit()

	var intent *entity.PaymentIntent
	err := NewTxManager(db).WithinTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		var err error
		intent, err = NewPaymentIntentRepository(tx).FindByGatewayIDForUpdate(ctx, "pi_1")
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, intent)
	assert.Equal(t, uint64(7), intent.ID)
	assert.Equal(t, "requires_confirmation", intent.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentIntentRepositoryFindForUpdateMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentIntentRepository(db)

	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("pi_9").
		WillReturnError(sql.ErrNoRows)

	intent, err := repo.FindByGatewayIDForUpdate(context.Background(), "pi_9")
	require.NoError(t, err)
	assert.Nil(t, intent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentIntentRepositoryCreateDuplicateKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentIntentRepository(db)

	mock.ExpectExec("INSERT INTO payment_intents").
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062})

	err := repo.Create(context.Background(), &entity.PaymentIntent{GatewayIntentID: "pi_1", IdempotencyKey: "key-1"})
	assert.ErrorIs(t, err, ErrPaymentIntentAlreadyExists)
}

func TestCustomerRepositoryFindByCorrelationKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCustomerRepository(db)
	now := time.Now().UTC()

	columns := []string{"id", "gateway_customer_id", "correlation_key", "name", "email", "metadata_json", "created_at", "updated_at"}
	mock.ExpectQuery("FROM customers WHERE correlation_key = \\?").
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(3, "cus_1", "acme", "Acme", "billing@acme.test", `{"company":"acme"}`, now, now))

	customer, err := repo.FindByCorrelationKey(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "cus_1", customer.GatewayCustomerID)
	require.NotNil(t, customer.CorrelationKey)
	assert.Equal(t, "acme", *customer.CorrelationKey)
	assert.Equal(t, "acme", customer.Metadata["company"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerRepositoryUpsertCorrelationConflict(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCustomerRepository(db)

	mock.ExpectExec("INSERT INTO customers").
		WillReturnError(&mysqlDriver.MySQLError{Number: 1062})

	key := "acme"
	err := repo.UpsertByGatewayID(context.Background(), &entity.Customer{GatewayCustomerID: "cus_2", CorrelationKey: &key})
	assert.ErrorIs(t, err, ErrCustomerAlreadyExists)
}

func TestSubscriptionRepositoryActivateIfPending(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE subscriptions").
		WithArgs("active", now, "sub_1", "incomplete", "past_due").
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.ActivateIfPending(context.Background(), "sub_1", now)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryUpsertKeepsCanceled(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db)
	now := time.Now().UTC()
	paymentID := uint64(7)

	mock.ExpectExec("INSERT INTO subscriptions (.+) ON DUPLICATE KEY UPDATE").
		WithArgs("sub_1", "cus_1", "price_1", 2, "active", 7, now, now, entity.SubscriptionStatusCanceled).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.Upsert(context.Background(), &entity.Subscription{
		GatewaySubscriptionID: "sub_1",
		GatewayCustomerID:     "cus_1",
		PriceID:               "price_1",
		Quantity:              2,
		Status:                "active",
		PaymentID:             &paymentID,
		CreatedAt:             now,
		UpdatedAt:             now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionRepositoryUpsertBackfillsPaymentID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepository(db)
	now := time.Now().UTC()
	paymentID := uint64(9)

	mock.ExpectExec(`ON DUPLICATE KEY UPDATE .*payment_id = COALESCE\(payment_id, VALUES\(payment_id\)\)`).
		WithArgs("sub_1", "cus_1", "price_1", 1, "active", 9, now, now, entity.SubscriptionStatusCanceled).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.Upsert(context.Background(), &entity.Subscription{
		GatewaySubscriptionID: "sub_1",
		GatewayCustomerID:     "cus_1",
		PriceID:               "price_1",
		Quantity:              1,
		Status:                "active",
		PaymentID:             &paymentID,
		CreatedAt:             now,
		UpdatedAt:             now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookEventRepositoryRecordAndFind(t *testing.T) {
	db, mock := newMock(t)
	repo := NewWebhookEventRepository(db)
	now := time.Now().UTC()
	lastErr := "boom"

	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("evt_1", "payment_intent.succeeded", entity.WebhookEventFailed, lastErr, now, now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("FROM webhook_events").
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "gateway_event_id", "event_type", "status", "attempts", "last_error", "created_at", "updated_at"}).
			AddRow(1, "evt_1", "payment_intent.succeeded", "failed", 2, "boom", now, now))

	require.NoError(t, repo.Record(context.Background(), &entity.WebhookEvent{
		GatewayEventID: "evt_1",
		EventType:      "payment_intent.succeeded",
		Status:         entity.WebhookEventFailed,
		LastError:      &lastErr,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))

	event, err := repo.FindByGatewayID(context.Background(), "evt_1")
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, int32(2), event.Attempts)
	require.NotNil(t, event.LastError)
	assert.Equal(t, "boom", *event.LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerCommitsOnSuccess(t *testing.T) {
	db, mock := newMock(t)
	txm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE payments SET gateway_subscription_id").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := txm.WithinTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		return NewPaymentRepository(tx).LinkSubscription(ctx, 1, "sub_1", time.Now())
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	txm := NewTxManager(db)
	wantErr := errors.New("gateway down")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := txm.WithinTx(context.Background(), func(ctx context.Context, tx DBTX) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerWrapsCommitError(t *testing.T) {
	db, mock := newMock(t)
	txm := NewTxManager(db)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("deadlock"))

	err := txm.WithinTx(context.Background(), func(ctx context.Context, tx DBTX) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit transaction")
}

func TestMigrateAppliesEveryStatement(t *testing.T) {
	db, mock := newMock(t)

	statements := SchemaStatements()
	require.Len(t, statements, 5)
	for range statements {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
