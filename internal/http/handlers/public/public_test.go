package public

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/licenseshop/internal/cache"
	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/constants"
	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/payment/paypal"
	"github.com/licenseshop/internal/provider"
	"github.com/licenseshop/internal/repository"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type stubGateway struct {
	mu      sync.Mutex
	created []paypal.InvoiceInput
}

func (g *stubGateway) CreateAndSendInvoice(_ context.Context, input paypal.InvoiceInput) (*paypal.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created = append(g.created, input)
	id := fmt.Sprintf("INV2-%04d", len(g.created))
	return &paypal.Invoice{
		ID:       id,
		URL:      "https://www.sandbox.paypal.com/invoice/p/#" + id,
		Total:    input.Amount.StringFixed(2),
		Currency: input.Currency,
		Status:   constants.InvoiceStatusPending,
	}, nil
}

func (g *stubGateway) GetInvoiceStatus(_ context.Context, _ string) (string, error) {
	return constants.InvoiceStatusPending, nil
}

func (g *stubGateway) VerifyWebhookSignature(_ context.Context, _ http.Header, _ map[string]interface{}) error {
	return nil
}

func setupPublicHandlerTest(t *testing.T) (*Handler, *stubGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	store := repository.NewGormStore(db)
	cfg := &config.Config{
		Shop:     config.ShopConfig{Name: "License Shop", Email: "support@example.com", Currency: "USD"},
		Checkout: config.CheckoutConfig{SessionSecret: "checkout-test-secret", SessionTTLHours: 1},
	}

	gateway := &stubGateway{}
	notifier := service.NewNotificationService(service.LogMailer{}, cfg.Shop, "en")
	effects := service.NewOrderEffects(nil, notifier, nil, nil)
	orders := service.NewOrderService(store.Orders, effects)
	invoices := service.NewInvoiceService(gateway, orders, nil, "USD", cfg.Shop.Name)
	// 间隔足够长，测试期间不会真正发起查询
	poller := service.NewPoller(cache.NewPollStore(), invoices, orders, nil, nil, service.PollerOptions{
		Interval: time.Hour,
		Timeout:  2 * time.Hour,
	})
	t.Cleanup(poller.Stop)
	cart := service.NewCartService(store.Products, "USD", false)

	h := New(&provider.Container{
		Config:          cfg,
		Store:           store,
		AuthService:     service.NewAuthService(cfg),
		OrderEffects:    effects,
		CartService:     cart,
		OrderService:    orders,
		InvoiceService:  invoices,
		Poller:          poller,
		CheckoutService: service.NewCheckoutService(store.Orders, orders, cart, invoices, poller, effects, "USD"),
		ProductService:  service.NewProductService(store.Products, "USD"),
	})
	return h, gateway
}

func performPublicRequest(t *testing.T, handler gin.HandlerFunc, method, path string, params gin.Params, session *service.CheckoutSession, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, path, bytes.NewReader(raw))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if session != nil {
		c.Set(handlershared.ContextKeyCheckoutSession, session)
	}
	handler(c)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode body failed: %v body=%s", err, w.Body.String())
	}
}

func TestStorefrontCheckoutFlow(t *testing.T) {
	h, gateway := setupPublicHandlerTest(t)

	w := performPublicRequest(t, h.IssueCheckoutSession, http.MethodPost, "/api/checkout/session", nil, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("issue session failed: %d %s", w.Code, w.Body.String())
	}
	var session service.CheckoutSession
	decodeBody(t, w, &session)
	if session.Token == "" || session.CartRef == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	orderBody := gin.H{
		"customer_email": "buyer@example.com",
		"customer_name":  "Buyer",
		"items":          `[{"id":"prod_office","name":"Office Pro","price":49.5,"quantity":2}]`,
		"info":           gin.H{"country": "DE"},
	}
	w = performPublicRequest(t, h.CreateOrder, http.MethodPost, "/api/orders", nil, &session, orderBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create order failed: %d %s", w.Code, w.Body.String())
	}
	var order models.Order
	decodeBody(t, w, &order)
	if order.PaymentStatus != constants.PaymentStatusAbandoned || order.Total.String() != "99.00" {
		t.Fatalf("unexpected order: status=%s total=%s", order.PaymentStatus, order.Total.String())
	}

	// 同一会话重复提交更新原订单
	w = performPublicRequest(t, h.CreateOrder, http.MethodPost, "/api/orders", nil, &session, orderBody)
	if w.Code != http.StatusOK {
		t.Fatalf("resubmit should update, got %d %s", w.Code, w.Body.String())
	}
	var again models.Order
	decodeBody(t, w, &again)
	if again.ID != order.ID {
		t.Fatalf("resubmit created a duplicate order: %s != %s", again.ID, order.ID)
	}

	params := gin.Params{{Key: "id", Value: order.ID}}
	w = performPublicRequest(t, h.StartPayment, http.MethodPost, "/api/orders/x/pay", params, &session, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start payment failed: %d %s", w.Code, w.Body.String())
	}
	var start service.PaymentStart
	decodeBody(t, w, &start)
	if start.ID != "INV2-0001" || start.Total != "99.00" || !strings.Contains(start.URL, start.ID) {
		t.Fatalf("unexpected payment start: %+v", start)
	}
	if start.Poll == nil || start.Poll.Status != constants.PollStateActive {
		t.Fatalf("poll should be active: %+v", start.Poll)
	}
	if len(gateway.created) != 1 || gateway.created[0].Email != "buyer@example.com" {
		t.Fatalf("unexpected gateway calls: %+v", gateway.created)
	}

	w = performPublicRequest(t, h.PollPayment, http.MethodGet, "/api/orders/x/poll", params, &session, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("poll failed: %d %s", w.Code, w.Body.String())
	}
	var outcome service.PollOutcome
	decodeBody(t, w, &outcome)
	if outcome.InvoiceID != start.ID || outcome.Status != constants.PollStateActive {
		t.Fatalf("unexpected poll outcome: %+v", outcome)
	}

	w = performPublicRequest(t, h.GetOrder, http.MethodGet, "/api/orders/x", params, &session, nil)
	var pending models.Order
	decodeBody(t, w, &pending)
	if pending.PaymentStatus != constants.PaymentStatusPending || pending.InvoiceID != start.ID {
		t.Fatalf("order should be pending with invoice: %+v", pending)
	}
}

func TestStorefrontOrderBelongsToSession(t *testing.T) {
	h, _ := setupPublicHandlerTest(t)
	owner, err := h.AuthService.IssueCheckoutSession("")
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}
	other, err := h.AuthService.IssueCheckoutSession("")
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}

	w := performPublicRequest(t, h.CreateOrder, http.MethodPost, "/api/orders", nil, owner, gin.H{
		"customer_email": "buyer@example.com",
		"items":          []gin.H{{"id": "prod_a", "name": "A", "price": 10, "quantity": 1}},
	})
	var order models.Order
	decodeBody(t, w, &order)

	w = performPublicRequest(t, h.GetOrder, http.MethodGet, "/api/orders/x", gin.Params{{Key: "id", Value: order.ID}}, other, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("foreign session should get 403, got %d", w.Code)
	}
	w = performPublicRequest(t, h.GetOrder, http.MethodGet, "/api/orders/x", gin.Params{{Key: "id", Value: "missing"}}, owner, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing order should get 404, got %d", w.Code)
	}
	w = performPublicRequest(t, h.GetOrder, http.MethodGet, "/api/orders/x", gin.Params{{Key: "id", Value: order.ID}}, nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("request without session should get 401, got %d", w.Code)
	}
}

func TestCreateInvoiceMissingFields(t *testing.T) {
	h, gateway := setupPublicHandlerTest(t)

	w := performPublicRequest(t, h.CreateInvoice, http.MethodPost, "/api/create-invoice", nil, nil, gin.H{"orderRef": "LS1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var fail struct {
		StatusCode int    `json:"statusCode"`
		Message    string `json:"message"`
	}
	decodeBody(t, w, &fail)
	if fail.StatusCode != http.StatusBadRequest || fail.Message != "Missing required fields: amount, email" {
		t.Fatalf("unexpected error body: %+v", fail)
	}

	w = performPublicRequest(t, h.CreateInvoice, http.MethodPost, "/api/create-invoice", nil, nil, gin.H{"amount": "19.90", "orderRef": "LS1", "email": "buyer@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("create invoice failed: %d %s", w.Code, w.Body.String())
	}
	var result service.InvoiceResult
	decodeBody(t, w, &result)
	if result.Total != "19.90" || len(gateway.created) != 1 {
		t.Fatalf("unexpected invoice result: %+v", result)
	}
}
