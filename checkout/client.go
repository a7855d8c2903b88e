package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agro-payment-svc/models"
)

// TokenSource yields the bearer credential of the signed-in shopper.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", errors.New("no signed-in user")
	}
	return string(t), nil
}

// APIError is a non-2xx answer from the payment endpoints.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("payment service returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the same request may succeed if sent again.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// PaymentsClient calls the create-order and verify-payment endpoints.
type PaymentsClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
}

func NewPaymentsClient(baseURL string, tokens TokenSource) *PaymentsClient {
	return &PaymentsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// CreatePaymentOrder asks the server to mint a gateway order for amount
// whole rupees.
func (c *PaymentsClient) CreatePaymentOrder(ctx context.Context, amount int64, orderID string) (*models.GatewayOrderHandle, error) {
	body := map[string]any{"amount": amount, "orderId": orderID}

	var handle models.GatewayOrderHandle
	if err := c.post(ctx, "/api/create-order", body, &handle); err != nil {
		return nil, err
	}
	return &handle, nil
}

func (c *PaymentsClient) VerifyPayment(ctx context.Context, orderID string, proof models.PaymentProof) (*models.VerifyPaymentResponse, error) {
	body := models.VerifyPaymentRequest{PaymentProof: proof, OrderID: orderID}

	var resp models.VerifyPaymentResponse
	if err := c.post(ctx, "/api/verify-payment", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *PaymentsClient) post(ctx context.Context, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get credential: %w", err)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &APIError{StatusCode: resp.StatusCode, Message: body.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
