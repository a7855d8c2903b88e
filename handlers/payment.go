package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"agro-payment-svc/auth"
	"agro-payment-svc/database"
	"agro-payment-svc/gateway"
	"agro-payment-svc/middleware"
	"agro-payment-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const defaultCurrency = "INR"

// OrderStore is the slice of the order store the payment endpoints need.
type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	AttachGatewayOrder(ctx context.Context, id, gatewayOrderID string) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, update models.PaymentUpdate) (*models.Order, bool, error)
}

// EventPublisher emits payment lifecycle events after the store commits.
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event models.PaymentEvent) error
}

// Deduplicator claims webhook delivery ids so each is processed once.
type Deduplicator interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Credentials are the gateway secrets. The key id is public and returned to
// clients; the secrets never leave the process.
type Credentials struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type PaymentHandler struct {
	gateway   gateway.Client
	orders    OrderStore
	publisher EventPublisher
	dedup     Deduplicator
	creds     Credentials
	logger    *zap.Logger
	now       func() time.Time
}

func NewPaymentHandler(
	gw gateway.Client,
	orders OrderStore,
	publisher EventPublisher,
	dedup Deduplicator,
	creds Credentials,
	logger *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		gateway:   gw,
		orders:    orders,
		publisher: publisher,
		dedup:     dedup,
		creds:     creds,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("payment-service").Start(c.Request.Context(), "CreatePaymentOrder")
	defer span.End()
	traceID := middleware.GetTraceID(ctx)

	identity, ok := auth.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing or invalid token"})
		return
	}

	var req models.CreatePaymentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	orderID := strings.TrimSpace(req.OrderID)
	if req.Amount == nil || *req.Amount == 0 || orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	paise := decimal.NewFromFloat(*req.Amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if *req.Amount < 0 || paise < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be a positive number"})
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if errors.Is(err, database.ErrOrderNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load order", zap.String("trace_id", traceID), zap.String("order_id", orderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if order.UserID != identity.UserID {
		h.logger.Warn("Payment order requested for order owned by another user",
			zap.String("trace_id", traceID),
			zap.String("order_id", orderID),
			zap.String("user_id", identity.UserID),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		c.JSON(http.StatusConflict, gin.H{"error": "Order cannot accept payment"})
		return
	}
	// The charge must be for the order's own total, in paise.
	if paise != order.TotalAmount*100 {
		h.logger.Warn("Payment amount does not match order total",
			zap.String("trace_id", traceID),
			zap.String("order_id", orderID),
			zap.Int64("amount", paise),
			zap.Int64("total_amount", order.TotalAmount),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount does not match order"})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	receipt := req.Receipt
	if receipt == "" {
		receipt = "receipt_" + orderID
	}

	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.Int64("amount", paise),
		attribute.String("currency", currency),
	)

	gwOrder, err := h.gateway.CreateOrder(ctx, gateway.OrderRequest{
		Amount:   paise,
		Currency: currency,
		Receipt:  receipt,
		Notes: gateway.Notes{
			"orderId": orderID,
			"userId":  identity.UserID,
		},
	})
	if err != nil {
		span.RecordError(err)
		middleware.RecordGatewayOrder("failure")
		h.logger.Error("Failed to create gateway order",
			zap.String("trace_id", traceID),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment order"})
		return
	}

	if _, err := h.orders.AttachGatewayOrder(ctx, orderID, gwOrder.ID); err != nil {
		span.RecordError(err)
		middleware.RecordGatewayOrder("failure")
		h.logger.Error("Failed to attach gateway order",
			zap.String("trace_id", traceID),
			zap.String("order_id", orderID),
			zap.String("gateway_order_id", gwOrder.ID),
			zap.Error(err),
		)
		if errors.Is(err, database.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"error": "Order cannot accept payment"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	middleware.RecordGatewayOrder("success")
	h.logger.Info("Gateway order created",
		zap.String("trace_id", traceID),
		zap.String("order_id", orderID),
		zap.String("gateway_order_id", gwOrder.ID),
		zap.Int64("amount", gwOrder.Amount),
	)

	c.JSON(http.StatusOK, models.GatewayOrderHandle{
		ID:       gwOrder.ID,
		Amount:   gwOrder.Amount,
		Currency: gwOrder.Currency,
		KeyID:    h.creds.KeyID,
	})
}

func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	ctx, span := otel.Tracer("payment-service").Start(c.Request.Context(), "VerifyPayment")
	defer span.End()
	traceID := middleware.GetTraceID(ctx)

	identity, ok := auth.Identity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing or invalid token"})
		return
	}

	var req models.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" || req.OrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	span.SetAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("gateway.order_id", req.GatewayOrderID),
		attribute.String("gateway.payment_id", req.GatewayPaymentID),
	)

	valid, err := gateway.VerifyPaymentSignature(h.creds.KeySecret, req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		middleware.RecordVerification("unavailable")
		h.logger.Error("Payment verification secret is not configured", zap.String("trace_id", traceID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Payment verification unavailable"})
		return
	}

	if !valid {
		middleware.RecordVerification("invalid_signature")
		h.logger.Warn("Invalid payment signature",
			zap.String("trace_id", traceID),
			zap.String("order_id", req.OrderID),
			zap.String("gateway_order_id", req.GatewayOrderID),
		)
		h.markFailed(ctx, identity, req)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment signature"})
		return
	}

	order, err := h.orders.GetOrder(ctx, req.OrderID)
	if errors.Is(err, database.ErrOrderNotFound) {
		middleware.RecordVerification("not_found")
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		return
	}
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to load order", zap.String("trace_id", traceID), zap.String("order_id", req.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if order.UserID != identity.UserID {
		middleware.RecordVerification("forbidden")
		h.logger.Warn("Verification for order owned by another user",
			zap.String("trace_id", traceID),
			zap.String("order_id", req.OrderID),
			zap.String("user_id", identity.UserID),
		)
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}
	if order.GatewayOrderID == "" || order.GatewayOrderID != req.GatewayOrderID {
		middleware.RecordVerification("order_mismatch")
		h.logger.Warn("Payment proof is for a different gateway order",
			zap.String("trace_id", traceID),
			zap.String("order_id", req.OrderID),
			zap.String("gateway_order_id", req.GatewayOrderID),
			zap.String("expected_gateway_order_id", order.GatewayOrderID),
		)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment does not match order"})
		return
	}

	updated, changed, err := h.orders.UpdatePaymentStatus(ctx, req.OrderID, models.PaymentUpdate{
		Status:         models.PaymentStatusCompleted,
		PaymentID:      req.GatewayPaymentID,
		GatewayOrderID: req.GatewayOrderID,
	})
	switch {
	case errors.Is(err, database.ErrAlreadyPaid):
		middleware.RecordVerification("already_paid")
		h.logger.Warn("Order already paid by another payment",
			zap.String("trace_id", traceID),
			zap.String("order_id", req.OrderID),
			zap.String("payment_id", req.GatewayPaymentID),
		)
		c.JSON(http.StatusConflict, gin.H{"error": "Order already paid"})
		return
	case errors.Is(err, database.ErrPaymentReused):
		middleware.RecordVerification("payment_reused")
		h.logger.Warn("Payment already applied to another order",
			zap.String("trace_id", traceID),
			zap.String("order_id", req.OrderID),
			zap.String("payment_id", req.GatewayPaymentID),
		)
		c.JSON(http.StatusConflict, gin.H{"error": "Payment already used"})
		return
	case errors.Is(err, database.ErrInvalidTransition):
		middleware.RecordVerification("invalid_state")
		h.logger.Warn("Order cannot accept payment",
			zap.String("trace_id", traceID),
			zap.String("order_id", req.OrderID),
			zap.String("payment_status", string(order.PaymentStatus)),
		)
		c.JSON(http.StatusConflict, gin.H{"error": "Order cannot accept payment"})
		return
	case err != nil:
		span.RecordError(err)
		h.logger.Error("Failed to complete order", zap.String("trace_id", traceID), zap.String("order_id", req.OrderID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	middleware.RecordVerification("success")
	if changed {
		h.publish(ctx, models.EventPaymentVerified, "verify", updated)
		h.logger.Info("Payment verified",
			zap.String("trace_id", traceID),
			zap.String("order_id", updated.ID),
			zap.String("payment_id", updated.PaymentID),
		)
	}

	c.JSON(http.StatusOK, models.VerifyPaymentResponse{
		Success: true,
		OrderID: req.OrderID,
		Message: "Payment verified successfully",
	})
}

// markFailed records a rejected proof on the caller's own pending order when
// the proof names that order's gateway order. It never touches completed or
// cancelled orders.
func (h *PaymentHandler) markFailed(ctx context.Context, identity *models.CallerIdentity, req models.VerifyPaymentRequest) {
	order, err := h.orders.GetOrder(ctx, req.OrderID)
	if err != nil || order.UserID != identity.UserID || order.GatewayOrderID != req.GatewayOrderID {
		return
	}

	updated, changed, err := h.orders.UpdatePaymentStatus(ctx, req.OrderID, models.PaymentUpdate{Status: models.PaymentStatusFailed})
	if err != nil {
		if !errors.Is(err, database.ErrInvalidTransition) {
			h.logger.Error("Failed to mark order payment_failed",
				zap.String("trace_id", middleware.GetTraceID(ctx)),
				zap.String("order_id", req.OrderID),
				zap.Error(err),
			)
		}
		return
	}
	if changed {
		h.publish(ctx, models.EventPaymentFailed, "verify", updated)
	}
}

func (h *PaymentHandler) publish(ctx context.Context, eventType, source string, order *models.Order) {
	if h.publisher == nil {
		return
	}

	event := models.PaymentEvent{
		EventType:      eventType,
		OrderID:        order.ID,
		UserID:         order.UserID,
		GatewayOrderID: order.GatewayOrderID,
		PaymentID:      order.PaymentID,
		Amount:         order.TotalAmount,
		Status:         order.PaymentStatus,
		Source:         source,
		OccurredAt:     h.now(),
	}
	if err := h.publisher.PublishPaymentEvent(ctx, event); err != nil {
		h.logger.Error("Failed to publish payment event",
			zap.String("trace_id", middleware.GetTraceID(ctx)),
			zap.String("order_id", order.ID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
