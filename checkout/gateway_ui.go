package checkout

import (
	"context"
	"fmt"

	"agro-payment-svc/models"
)

// GatewayUI opens the gateway's hosted payment UI for handle and blocks
// until the shopper completes or abandons it. A completed payment yields
// the proof; anything else is returned as an error, usually *GatewayFailure.
type GatewayUI interface {
	Open(ctx context.Context, handle models.GatewayOrderHandle, prefill Prefill) (*models.PaymentProof, error)
}

// Prefill is shown in the gateway UI so the shopper does not retype it.
type Prefill struct {
	Email   string
	OrderID string
}

// GatewayFailure is a payment the gateway UI reported as not completed.
type GatewayFailure struct {
	Code   string
	Reason string
}

func (e *GatewayFailure) Error() string {
	if e.Code == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// ErrDismissed is returned by GatewayUI implementations when the shopper
// closes the payment window.
var ErrDismissed = &GatewayFailure{Code: "DISMISSED", Reason: "Payment cancelled"}
