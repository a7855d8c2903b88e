package handlers

import (
	"net/http"

	"agro-payment-svc/auth"
	"agro-payment-svc/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterRoutes mounts the payment endpoints. Browser-facing endpoints get
// CORS and answer preflight before authentication; any other method is 405.
func RegisterRoutes(router *gin.Engine, h *PaymentHandler, verifier auth.Verifier, allowedOrigins []string, defaultOrigin string, logger *zap.Logger) {
	cors := middleware.CORSMiddleware(allowedOrigins, defaultOrigin)

	router.HandleMethodNotAllowed = true
	router.NoMethod(cors, func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method Not Allowed"})
	})

	api := router.Group("/api", cors)
	api.OPTIONS("/create-order", preflight)
	api.OPTIONS("/verify-payment", preflight)

	authed := api.Group("", auth.Middleware(verifier, logger))
	authed.POST("/create-order", h.CreateOrder)
	authed.POST("/verify-payment", h.VerifyPayment)

	router.POST("/api/webhooks/razorpay", h.Webhook)
}

func preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}
