package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/licenseshop/internal/config"
	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/metrics"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

func TestResolveAllowedOrigin(t *testing.T) {
	got := resolveAllowedOrigin("https://example.com", []string{"*"}, false)
	if got != "*" {
		t.Fatalf("wildcard without credentials should return *, got %s", got)
	}

	got = resolveAllowedOrigin("https://example.com", []string{"*"}, true)
	if got != "https://example.com" {
		t.Fatalf("wildcard with credentials should echo origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://a.example.com", []string{"https://a.example.com", "https://b.example.com"}, false)
	if got != "https://a.example.com" {
		t.Fatalf("allow-list should return matched origin, got %s", got)
	}

	got = resolveAllowedOrigin("https://x.example.com", []string{"https://a.example.com"}, false)
	if got != "" {
		t.Fatalf("unmatched origin should be empty, got %s", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	generated := w2.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatalf("generated request id should not be empty")
	}
	if resp := strings.TrimSpace(generated); resp == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

func newTestAuthService() *service.AuthService {
	return service.NewAuthService(&config.Config{
		Admin: config.AdminConfig{
			JWT:      config.JWTConfig{SecretKey: "router-test-secret", ExpireHours: 1},
			Username: "admin",
		},
		Checkout: config.CheckoutConfig{SessionSecret: "router-session-secret"},
	})
}

func TestJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newTestAuthService()

	r := gin.New()
	r.Use(JWTAuthMiddleware(auth))
	r.GET("/admin/ping", func(c *gin.Context) {
		username, _ := handlershared.GetAdminUsername(c)
		c.JSON(http.StatusOK, gin.H{"username": username})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if code, _ := resp["status_code"].(float64); int(code) != 401 {
		t.Fatalf("missing header should be rejected, got %v", resp["status_code"])
	}

	token, _, err := auth.GenerateJWT("admin")
	if err != nil {
		t.Fatalf("generate jwt failed: %v", err)
	}
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"username":"admin"`) {
		t.Fatalf("valid token should pass, got %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	r.ServeHTTP(w, req)
	if !strings.Contains(w.Body.String(), `"status_code":401`) {
		t.Fatalf("tampered token should be rejected, got %s", w.Body.String())
	}
}

func TestCheckoutSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := newTestAuthService()

	r := gin.New()
	r.Use(CheckoutSessionMiddleware(auth))
	r.GET("/api/orders/x", func(c *gin.Context) {
		session, _ := handlershared.GetCheckoutSession(c)
		c.JSON(http.StatusOK, gin.H{"cart_ref": session.CartRef})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders/x", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing session want 401 got %d", w.Code)
	}

	session, err := auth.IssueCheckoutSession("")
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/x", nil)
	req.Header.Set(handlershared.HeaderCheckoutSession, session.Token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), session.CartRef) {
		t.Fatalf("valid session should pass, got %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/orders/x", nil)
	req.Header.Set(handlershared.HeaderCheckoutSession, "garbage")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("invalid session want 401 got %d", w.Code)
	}
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New()

	r := gin.New()
	r.Use(MetricsMiddleware(m))
	r.GET("/api/orders/:id", func(c *gin.Context) {
		time.Sleep(time.Millisecond)
		c.Status(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/orders/abc", nil))

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), `route="/api/orders/:id"`) {
		t.Fatalf("expected route template label, got %s", w.Body.String())
	}

	// nil 指标直接放行
	r2 := gin.New()
	r2.Use(MetricsMiddleware(nil))
	r2.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	w2 := httptest.NewRecorder()
	r2.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w2.Code != http.StatusOK {
		t.Fatalf("nil metrics should pass through, got %d", w2.Code)
	}
}
