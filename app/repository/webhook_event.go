package repository

import (
	"context"
	"database/sql"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
)

type WebhookEventRepository struct {
	db DBTX
}

func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record stores the outcome of handling a gateway event. Redeliveries bump the
// attempt counter and overwrite the outcome.
func (r *WebhookEventRepository) Record(ctx context.Context, event *entity.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			gateway_event_id, event_type, status, attempts, last_error, created_at, updated_at
		)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			attempts = attempts + 1,
			last_error = VALUES(last_error),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.GatewayEventID,
		event.EventType,
		event.Status,
		nullableStringValue(event.LastError),
		event.CreatedAt,
		event.UpdatedAt,
	)
	return err
}

func (r *WebhookEventRepository) FindByGatewayID(ctx context.Context, gatewayEventID string) (*entity.WebhookEvent, error) {
	query := `
		SELECT id, gateway_event_id, event_type, status, attempts, last_error, created_at, updated_at
		FROM webhook_events
		WHERE gateway_event_id = ?
		LIMIT 1
	`

	event := &entity.WebhookEvent{}
	var lastError sql.NullString
	err := r.db.QueryRowContext(ctx, query, gatewayEventID).Scan(
		&event.ID,
		&event.GatewayEventID,
		&event.EventType,
		&event.Status,
		&event.Attempts,
		&lastError,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event.LastError = stringPtrFromNull(lastError)
	return event, nil
}
