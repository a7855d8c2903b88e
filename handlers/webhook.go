package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"agro-payment-svc/database"
	"agro-payment-svc/gateway"
	"agro-payment-svc/middleware"
	"agro-payment-svc/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	webhookSignatureHeader = "X-Razorpay-Signature"
	webhookEventIDHeader   = "X-Razorpay-Event-Id"
	maxWebhookBody         = 1 << 20
)

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity webhookPayment `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity webhookOrder `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type webhookPayment struct {
	ID               string        `json:"id"`
	OrderID          string        `json:"order_id"`
	Amount           int64         `json:"amount"`
	Status           string        `json:"status"`
	ErrorDescription string        `json:"error_description"`
	Notes            gateway.Notes `json:"notes"`
}

type webhookOrder struct {
	ID     string        `json:"id"`
	Amount int64         `json:"amount"`
	Notes  gateway.Notes `json:"notes"`
}

// orderID returns the storefront order id noted on the gateway order, if the
// payload carries it. Payment entities usually do not.
func (e *webhookEvent) orderID() string {
	if e.Payload.Order != nil {
		if id := e.Payload.Order.Entity.Notes["orderId"]; id != "" {
			return id
		}
	}
	if e.Payload.Payment != nil {
		return e.Payload.Payment.Entity.Notes["orderId"]
	}
	return ""
}

func (e *webhookEvent) update() (models.PaymentUpdate, string, bool) {
	var update models.PaymentUpdate
	if e.Payload.Payment != nil {
		update.PaymentID = e.Payload.Payment.Entity.ID
		update.GatewayOrderID = e.Payload.Payment.Entity.OrderID
	}
	if update.GatewayOrderID == "" && e.Payload.Order != nil {
		update.GatewayOrderID = e.Payload.Order.Entity.ID
	}

	switch e.Event {
	case "payment.captured", "order.paid":
		update.Status = models.PaymentStatusCompleted
		return update, models.EventPaymentCaptured, true
	case "payment.failed":
		update.Status = models.PaymentStatusFailed
		update.PaymentID = ""
		return update, models.EventPaymentFailed, true
	}
	return update, "", false
}

// Webhook reconciles orders from gateway notifications, so an order whose
// client never reached verify-payment still settles.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	ctx, span := otel.Tracer("payment-service").Start(c.Request.Context(), "RazorpayWebhook")
	defer span.End()
	traceID := middleware.GetTraceID(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	valid, err := gateway.VerifyWebhookSignature(h.creds.WebhookSecret, body, c.GetHeader(webhookSignatureHeader))
	if err != nil {
		h.logger.Error("Webhook secret is not configured", zap.String("trace_id", traceID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook verification unavailable"})
		return
	}
	if !valid {
		middleware.RecordWebhook("unknown", "invalid_signature")
		h.logger.Warn("Invalid webhook signature", zap.String("trace_id", traceID))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		middleware.RecordWebhook("unknown", "malformed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	span.SetAttributes(attribute.String("webhook.event", event.Event))

	update, eventType, handled := event.update()
	if !handled {
		middleware.RecordWebhook(event.Event, "ignored")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	eventID := c.GetHeader(webhookEventIDHeader)
	if eventID != "" && h.dedup != nil {
		first, err := h.dedup.Claim(ctx, eventID)
		if err != nil {
			h.logger.Warn("Webhook dedup unavailable, processing anyway",
				zap.String("trace_id", traceID),
				zap.String("event_id", eventID),
				zap.Error(err),
			)
		} else if !first {
			middleware.RecordWebhook(event.Event, "duplicate")
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	result, err := h.applyWebhook(ctx, event.orderID(), update, eventType)
	if err != nil {
		span.RecordError(err)
		if eventID != "" && h.dedup != nil {
			if relErr := h.dedup.Release(ctx, eventID); relErr != nil {
				h.logger.Warn("Failed to release webhook claim", zap.String("event_id", eventID), zap.Error(relErr))
			}
		}
		middleware.RecordWebhook(event.Event, "error")
		h.logger.Error("Failed to process webhook",
			zap.String("trace_id", traceID),
			zap.String("event", event.Event),
			zap.String("event_id", eventID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	middleware.RecordWebhook(event.Event, result)
	h.logger.Info("Webhook processed",
		zap.String("trace_id", traceID),
		zap.String("event", event.Event),
		zap.String("event_id", eventID),
		zap.String("result", result),
	)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// applyWebhook returns the metrics result label. Only store failures are
// errors; anything the gateway should not retry is acknowledged.
func (h *PaymentHandler) applyWebhook(ctx context.Context, orderID string, update models.PaymentUpdate, eventType string) (string, error) {
	if orderID == "" && update.GatewayOrderID != "" {
		order, err := h.orders.GetOrderByGatewayOrderID(ctx, update.GatewayOrderID)
		switch {
		case err == nil:
			orderID = order.ID
		case !errors.Is(err, database.ErrOrderNotFound):
			return "", err
		}
	}
	if orderID == "" {
		h.logger.Warn("Webhook without storefront order id",
			zap.String("gateway_order_id", update.GatewayOrderID),
			zap.String("payment_id", update.PaymentID),
		)
		return "unmatched", nil
	}

	updated, changed, err := h.orders.UpdatePaymentStatus(ctx, orderID, update)
	switch {
	case errors.Is(err, database.ErrOrderNotFound):
		h.logger.Warn("Webhook for unknown order", zap.String("order_id", orderID))
		return "unmatched", nil
	case errors.Is(err, database.ErrAlreadyPaid):
		h.logger.Error("Second payment captured for a paid order",
			zap.String("order_id", orderID),
			zap.String("payment_id", update.PaymentID),
		)
		return "already_paid", nil
	case errors.Is(err, database.ErrPaymentReused):
		h.logger.Error("Captured payment already applied to another order",
			zap.String("order_id", orderID),
			zap.String("payment_id", update.PaymentID),
		)
		return "payment_reused", nil
	case errors.Is(err, database.ErrInvalidTransition):
		return "stale", nil
	case err != nil:
		return "", err
	}

	if !changed {
		return "unchanged", nil
	}
	h.publish(ctx, eventType, "webhook", updated)
	return "applied", nil
}
