package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var ErrMissingSecret = errors.New("gateway secret is not configured")

// SignPayment computes the checkout signature the gateway hands to the
// client: lowercase hex HMAC-SHA256 over "<order id>|<payment id>".
func SignPayment(secret, gatewayOrderID, gatewayPaymentID string) string {
	return sign(secret, []byte(gatewayOrderID+"|"+gatewayPaymentID))
}

// VerifyPaymentSignature reports whether signature authenticates the
// payment. It returns ErrMissingSecret rather than accepting anything when
// no secret is configured.
func VerifyPaymentSignature(secret, gatewayOrderID, gatewayPaymentID, signature string) (bool, error) {
	if secret == "" {
		return false, ErrMissingSecret
	}
	expected := SignPayment(secret, gatewayOrderID, gatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(signature)), nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// raw request body.
func VerifyWebhookSignature(secret string, body []byte, signature string) (bool, error) {
	if secret == "" {
		return false, ErrMissingSecret
	}
	return hmac.Equal([]byte(sign(secret, body)), []byte(signature)), nil
}

func sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
