package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupCORSRouter(allowed []string) (*gin.Engine, *bool) {
	gin.SetMode(gin.TestMode)
	reached := false

	router := gin.New()
	router.Use(CORSMiddleware(allowed, "https://www.aadharagro.com"))
	handler := func(c *gin.Context) {
		reached = true
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
	router.POST("/api/create-order", handler)
	router.OPTIONS("/api/create-order", handler)

	return router, &reached
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	router, reached := setupCORSRouter([]string{"https://www.aadharagro.com"})

	req := httptest.NewRequest(http.MethodOptions, "/api/create-order", nil)
	req.Header.Set("Origin", "https://www.aadharagro.com")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", w.Body.String())
	}
	if *reached {
		t.Error("Preflight must not reach the handler")
	}

	expected := map[string]string{
		"Access-Control-Allow-Origin":      "https://www.aadharagro.com",
		"Access-Control-Allow-Methods":     "POST, OPTIONS",
		"Access-Control-Allow-Headers":     "Content-Type, Authorization",
		"Access-Control-Allow-Credentials": "true",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Expected %s=%q, got %q", header, want, got)
		}
	}
}

func TestCORSMiddleware_OriginSelection(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{"allowed origin echoed", []string{"https://shop.example"}, "https://shop.example", "https://shop.example"},
		{"unknown origin gets default", []string{"https://shop.example"}, "https://evil.example", "https://www.aadharagro.com"},
		{"no origin gets default", []string{"https://shop.example"}, "", "https://www.aadharagro.com"},
		{"wildcard echoes any origin", []string{"*"}, "https://localhost:3000", "https://localhost:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, reached := setupCORSRouter(tt.allowed)

			req := httptest.NewRequest(http.MethodPost, "/api/create-order", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Expected origin %q, got %q", tt.want, got)
			}
			if !*reached {
				t.Error("Expected POST to reach the handler")
			}
		})
	}
}
