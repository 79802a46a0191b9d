package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-billing/app/factory"
	"github.com/vibast-solutions/ms-go-billing/app/service"
	"github.com/vibast-solutions/ms-go-billing/app/types"
)

type eventHandler interface {
	HandleEvent(ctx context.Context, payload []byte, signature string) (*service.Ack, error)
}

// WebhookController receives gateway events. Any verified event is acknowledged
// with 200, whatever its handler did.
type WebhookController struct {
	events eventHandler
	logger logrus.FieldLogger
}

func NewWebhookController(events eventHandler) *WebhookController {
	return &WebhookController{
		events: events,
		logger: factory.NewModuleLogger("webhook-controller"),
	}
}

func (c *WebhookController) HandleStripe(ctx echo.Context) error {
	req, err := types.NewWebhookRequestFromContext(ctx)
	if err != nil {
		if payloadTooLarge(err) {
			return writeError(ctx, http.StatusRequestEntityTooLarge, "payload too large")
		}
		return writeError(ctx, http.StatusBadRequest, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	ack, err := c.events.HandleEvent(ctx.Request().Context(), req.Payload, req.Signature)
	if err != nil {
		if errors.Is(err, service.ErrSignatureInvalid) {
			return writeError(ctx, http.StatusBadRequest, "invalid signature")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Handle webhook failed")
		return writeError(ctx, http.StatusInternalServerError, "internal server error")
	}

	factory.LoggerWithContext(c.logger, ctx).WithFields(logrus.Fields{
		"event_id":  ack.EventID,
		"type":      ack.EventType,
		"outcome":   ack.Outcome,
		"duplicate": ack.Duplicate,
	}).Debug("Webhook acknowledged")

	return ctx.JSON(http.StatusOK, &types.WebhookAckResponse{Received: true})
}

func payloadTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	var httpErr *echo.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge
}
