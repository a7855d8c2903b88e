package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agro-payment-svc/circuitbreaker"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type RazorpayClient struct {
	baseURL        string
	keyID          string
	keySecret      string
	httpClient     *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	logger         *zap.Logger
}

func NewRazorpayClient(baseURL, keyID, keySecret string, logger *zap.Logger) *RazorpayClient {
	return &RazorpayClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		keyID:          keyID,
		keySecret:      keySecret,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
		logger:         logger,
	}
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	ctx, span := otel.Tracer("payment-service").Start(ctx, "razorpay.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("amount", req.Amount),
		attribute.String("currency", req.Currency),
	)

	if c.keyID == "" || c.keySecret == "" {
		return nil, ErrMissingSecret
	}

	var order Order
	var callErr error
	err := c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		callErr = c.do(ctx, http.MethodPost, "/v1/orders", req, &order)
		// A rejected request says nothing about the provider's health.
		var apiErr *APIError
		if errors.As(callErr, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return nil
		}
		return callErr
	})
	if err == nil {
		err = callErr
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.String("gateway.order_id", order.ID))
	c.logger.Info("Gateway order created",
		zap.String("gateway_order_id", order.ID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency),
	)
	return &order, nil
}

func (c *RazorpayClient) do(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Description = envelope.Error.Description
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}
	return nil
}
