package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/entity"
	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/mapper"
	"github.com/vibast-solutions/ms-go-billing/app/provider"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

type billingService interface {
	CreateCustomer(ctx context.Context, req service.CreateCustomerRequest) (*entity.Customer, bool, error)
	CreatePaymentIntent(ctx context.Context, req service.CreatePaymentIntentRequest) (*entity.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, req service.ConfirmPaymentIntentRequest) (*entity.Payment, error)
	ProcessPaymentAndCreateSubscription(ctx context.Context, req service.CreateSubscriptionRequest) (*entity.Subscription, error)
	UpdateSubscription(ctx context.Context, req service.UpdateSubscriptionRequest) (*entity.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*entity.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*entity.Subscription, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*entity.PaymentIntent, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (*entity.Payment, error)
	ListCustomerPayments(ctx context.Context, req service.ListByCustomerRequest) ([]*entity.Payment, error)
	ListCustomerSubscriptions(ctx context.Context, req service.ListByCustomerRequest) ([]*entity.Subscription, error)
	CreateInvoice(ctx context.Context, req service.CreateInvoiceRequest) (*provider.Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*provider.Invoice, error)
}

type BillingController struct {
	billing billingService
	logger  logrus.FieldLogger
}

func NewBillingController(billing billingService) *BillingController {
	return &BillingController{
		billing: billing,
		logger:  factory.NewModuleLogger("billing-controller"),
	}
}

func (c *BillingController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *BillingController) CreateCustomer(ctx echo.Context) error {
	req, err := types.NewCreateCustomerRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	customer, created, err := c.billing.CreateCustomer(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Create customer failed", err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return ctx.JSON(status, mapper.CustomerToResponse(customer, created))
}

func (c *BillingController) CreatePaymentIntent(ctx echo.Context) error {
	req, err := types.NewCreatePaymentIntentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	intent, err := c.billing.CreatePaymentIntent(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Create payment intent failed", err)
	}

	return ctx.JSON(http.StatusCreated, mapper.PaymentIntentToResponse(intent))
}

func (c *BillingController) ConfirmPaymentIntent(ctx echo.Context) error {
	req, err := types.NewConfirmPaymentIntentRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	payment, err := c.billing.ConfirmPaymentIntent(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Confirm payment intent failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(payment))
}

func (c *BillingController) GetPaymentIntent(ctx echo.Context) error {
	intent, err := c.billing.RetrievePaymentIntent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.writeServiceError(ctx, "Retrieve payment intent failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentIntentToResponse(intent))
}

func (c *BillingController) GetPaymentByIntent(ctx echo.Context) error {
	payment, err := c.billing.GetPaymentByIntentID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.writeServiceError(ctx, "Get payment failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.PaymentToResponse(payment))
}

func (c *BillingController) CreateSubscription(ctx echo.Context) error {
	req, err := types.NewCreateSubscriptionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	subscription, err := c.billing.ProcessPaymentAndCreateSubscription(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Process payment and create subscription failed", err)
	}

	return ctx.JSON(http.StatusCreated, mapper.SubscriptionToResponse(subscription))
}

func (c *BillingController) GetSubscription(ctx echo.Context) error {
	subscription, err := c.billing.GetSubscription(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.writeServiceError(ctx, "Get subscription failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.SubscriptionToResponse(subscription))
}

func (c *BillingController) UpdateSubscription(ctx echo.Context) error {
	req, err := types.NewUpdateSubscriptionRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	subscription, err := c.billing.UpdateSubscription(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Update subscription failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.SubscriptionToResponse(subscription))
}

func (c *BillingController) CancelSubscription(ctx echo.Context) error {
	subscription, err := c.billing.CancelSubscription(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.writeServiceError(ctx, "Cancel subscription failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.SubscriptionToResponse(subscription))
}

func (c *BillingController) ListCustomerPayments(ctx echo.Context) error {
	req, err := types.NewListByCustomerRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	payments, err := c.billing.ListCustomerPayments(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "List payments failed", err)
	}

	return ctx.JSON(http.StatusOK, &types.ListPaymentsResponse{Payments: mapper.PaymentsToResponse(payments)})
}

func (c *BillingController) ListCustomerSubscriptions(ctx echo.Context) error {
	req, err := types.NewListByCustomerRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	subscriptions, err := c.billing.ListCustomerSubscriptions(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "List subscriptions failed", err)
	}

	return ctx.JSON(http.StatusOK, &types.ListSubscriptionsResponse{Subscriptions: mapper.SubscriptionsToResponse(subscriptions)})
}

func (c *BillingController) CreateInvoice(ctx echo.Context) error {
	req, err := types.NewCreateInvoiceRequestFromContext(ctx)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	invoice, err := c.billing.CreateInvoice(ctx.Request().Context(), req)
	if err != nil {
		return c.writeServiceError(ctx, "Create invoice failed", err)
	}

	return ctx.JSON(http.StatusCreated, mapper.InvoiceToResponse(invoice))
}

func (c *BillingController) GetInvoice(ctx echo.Context) error {
	invoice, err := c.billing.GetInvoice(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return c.writeServiceError(ctx, "Get invoice failed", err)
	}

	return ctx.JSON(http.StatusOK, mapper.InvoiceToResponse(invoice))
}

// writeServiceError maps the service error taxonomy onto HTTP statuses. Only
// unexpected failures are logged; caller errors are returned as-is.
func (c *BillingController) writeServiceError(ctx echo.Context, action string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return writeError(ctx, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return writeError(ctx, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrAlreadyConfirmed):
		return writeError(ctx, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrPaymentNotSucceeded):
		return writeError(ctx, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrGateway):
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Warn(action)
		return writeError(ctx, http.StatusBadGateway, "payment gateway error")
	default:
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(action)
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(ctx echo.Context, statusCode int, message string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message})
}
