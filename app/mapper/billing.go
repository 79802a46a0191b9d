package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

func CustomerToResponse(item *entity.Customer, created bool) *types.CustomerResponse {
	if item == nil {
		return nil
	}

	return &types.CustomerResponse{
		ID:             item.GatewayCustomerID,
		CorrelationKey: derefString(item.CorrelationKey),
		Name:           item.Name,
		Email:          item.Email,
		Metadata:       cloneMetadata(item.Metadata),
		Created:        created,
	}
}

func PaymentIntentToResponse(item *entity.PaymentIntent) *types.PaymentIntentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentIntentResponse{
		ID:             item.GatewayIntentID,
		CustomerID:     item.GatewayCustomerID,
		Amount:         item.AmountMinor,
		Currency:       item.Currency,
		Status:         item.Status,
		IdempotencyKey: item.IdempotencyKey,
	}
}

func PaymentToResponse(item *entity.Payment) *types.PaymentResponse {
	if item == nil {
		return nil
	}

	return &types.PaymentResponse{
		ID:              item.ID,
		IntentID:        item.GatewayIntentID,
		CustomerID:      item.GatewayCustomerID,
		PaymentMethodID: item.PaymentMethodID,
		Amount:          item.AmountMinor,
		Currency:        item.Currency,
		Status:          item.Status,
		SubscriptionID:  derefString(item.GatewaySubscriptionID),
		CreatedAt:       item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.PaymentResponse {
	result := make([]*types.PaymentResponse, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

func SubscriptionToResponse(item *entity.Subscription) *types.SubscriptionResponse {
	if item == nil {
		return nil
	}

	return &types.SubscriptionResponse{
		ID:         item.GatewaySubscriptionID,
		CustomerID: item.GatewayCustomerID,
		PriceID:    item.PriceID,
		Quantity:   item.Quantity,
		Status:     item.Status,
		PaymentID:  derefUint64(item.PaymentID),
	}
}

func SubscriptionsToResponse(items []*entity.Subscription) []*types.SubscriptionResponse {
	result := make([]*types.SubscriptionResponse, 0, len(items))
	for _, item := range items {
		result = append(result, SubscriptionToResponse(item))
	}
	return result
}

func InvoiceToResponse(item *provider.Invoice) *types.InvoiceResponse {
	if item == nil {
		return nil
	}

	return &types.InvoiceResponse{
		ID:               item.ID,
		CustomerID:       item.CustomerID,
		SubscriptionID:   item.SubscriptionID,
		Status:           item.Status,
		AmountDue:        item.AmountDue,
		Currency:         item.Currency,
		HostedInvoiceURL: item.HostedInvoiceURL,
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefUint64(v *uint64) uint64 {
	if v == nil {
		return 0
	}
	return *v
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
