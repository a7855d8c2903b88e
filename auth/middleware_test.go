package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"agro-payment-svc/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type stubVerifier struct {
	calls    int
	identity *models.CallerIdentity
	err      error
}

func (s *stubVerifier) Verify(ctx context.Context, token string) (*models.CallerIdentity, error) {
	s.calls++
	return s.identity, s.err
}

func setupMiddlewareTest(t *testing.T, verifier Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	router := gin.New()
	router.GET("/whoami", Middleware(verifier, logger), func(c *gin.Context) {
		identity, ok := Identity(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no identity"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": identity.UserID})
	})
	return router
}

func TestMiddleware_MissingHeader(t *testing.T) {
	verifier := &stubVerifier{}
	router := setupMiddlewareTest(t, verifier)

	for _, header := range []string{"", "Basic abc", "Bearer ", "bearer token"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Header %q: expected status %d, got %d", header, http.StatusUnauthorized, w.Code)
		}
		expected := `{"error":"Unauthorized: Missing or invalid token"}`
		if w.Body.String() != expected {
			t.Errorf("Header %q: expected body %s, got %s", header, expected, w.Body.String())
		}
	}

	if verifier.calls != 0 {
		t.Errorf("Verifier should not be called without a bearer token, got %d calls", verifier.calls)
	}
}

func TestMiddleware_InvalidToken(t *testing.T) {
	verifier := &stubVerifier{err: ErrUnauthorized}
	router := setupMiddlewareTest(t, verifier)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer forged")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
	if w.Body.String() != `{"error":"Unauthorized: Invalid token"}` {
		t.Errorf("Unexpected body %s", w.Body.String())
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	verifier := &stubVerifier{identity: &models.CallerIdentity{UserID: "user-123"}}
	router := setupMiddlewareTest(t, verifier)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["userId"] != "user-123" {
		t.Errorf("Expected userId user-123, got %s", body["userId"])
	}
}
