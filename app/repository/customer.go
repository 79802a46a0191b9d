package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

var ErrCustomerAlreadyExists = errors.New("customer already exists")

const customerColumns = `id, gateway_customer_id, correlation_key, name, email, metadata_json, created_at, updated_at`

type CustomerRepository struct {
	db DBTX
}

func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Create(ctx context.Context, customer *entity.Customer) error {
	metadataJSON, err := serializeMetadata(customer.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO customers (
			gateway_customer_id, correlation_key, name, email, metadata_json, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		customer.GatewayCustomerID,
		nullableStringValue(customer.CorrelationKey),
		customer.Name,
		customer.Email,
		metadataJSON,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrCustomerAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	customer.ID = uint64(id)
	return nil
}

// UpsertByGatewayID inserts the customer or refreshes the mirrored fields of an
// existing row. A correlation key already set locally is never replaced.
func (r *CustomerRepository) UpsertByGatewayID(ctx context.Context, customer *entity.Customer) error {
	metadataJSON, err := serializeMetadata(customer.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO customers (
			gateway_customer_id, correlation_key, name, email, metadata_json, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			correlation_key = COALESCE(correlation_key, VALUES(correlation_key)),
			name = VALUES(name),
			email = VALUES(email),
			metadata_json = VALUES(metadata_json),
			updated_at = VALUES(updated_at)
	`

	_, err = r.db.ExecContext(ctx, query,
		customer.GatewayCustomerID,
		nullableStringValue(customer.CorrelationKey),
		customer.Name,
		customer.Email,
		metadataJSON,
		customer.CreatedAt,
		customer.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrCustomerAlreadyExists
		}
		return err
	}
	return nil
}

func (r *CustomerRepository) FindByCorrelationKey(ctx context.Context, key string) (*entity.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE correlation_key = ? LIMIT 1`
	return r.findOne(ctx, query, key)
}

func (r *CustomerRepository) FindByGatewayID(ctx context.Context, gatewayCustomerID string) (*entity.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE gateway_customer_id = ? LIMIT 1`
	return r.findOne(ctx, query, gatewayCustomerID)
}

func (r *CustomerRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Customer, error) {
	customer := &entity.Customer{}
	if err := scanCustomer(r.db.QueryRowContext(ctx, query, args...), customer); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return customer, nil
}

func scanCustomer(scan rowScanner, customer *entity.Customer) error {
	var correlationKey sql.NullString
	var metadataJSON string

	err := scan.Scan(
		&customer.ID,
		&customer.GatewayCustomerID,
		&correlationKey,
		&customer.Name,
		&customer.Email,
		&metadataJSON,
		&customer.CreatedAt,
		&customer.UpdatedAt,
	)
	if err != nil {
		return err
	}

	customer.CorrelationKey = stringPtrFromNull(correlationKey)
	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	customer.Metadata = metadata
	return nil
}
