package entity

import "time"

type Customer struct {
	ID uint64

	GatewayCustomerID string
	CorrelationKey    *string

	Name  string
	Email string

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}
