package entity

import "time"

const (
	WebhookEventApplied = "applied"
	WebhookEventIgnored = "ignored"
	WebhookEventFailed  = "failed"
)

type WebhookEvent struct {
	ID uint64

	GatewayEventID string
	EventType      string

	Status    string
	Attempts  int32
	LastError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
