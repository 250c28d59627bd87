package service

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/licenseshop/internal/cache"
	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/payment/paypal"
	"github.com/licenseshop/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return repository.NewGormStore(db)
}

type fakeGateway struct {
	mu         sync.Mutex
	created    []paypal.InvoiceInput
	statuses   map[string]string
	statusErr  error
	createErr  error
	verifyErr  error
	nextNumber int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]string{}}
}

func (g *fakeGateway) CreateAndSendInvoice(_ context.Context, input paypal.InvoiceInput) (*paypal.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextNumber++
	id := fmt.Sprintf("INV2-%04d", g.nextNumber)
	g.created = append(g.created, input)
	g.statuses[id] = constants.InvoiceStatusPending
	return &paypal.Invoice{
		ID:       id,
		URL:      "https://www.sandbox.paypal.com/invoice/p/#" + id,
		Total:    input.Amount.StringFixed(2),
		Currency: input.Currency,
		Status:   constants.InvoiceStatusPending,
	}, nil
}

func (g *fakeGateway) GetInvoiceStatus(_ context.Context, invoiceID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return "", g.statusErr
	}
	status, ok := g.statuses[invoiceID]
	if !ok {
		return "", paypal.ErrInvoiceNotFound
	}
	return status, nil
}

func (g *fakeGateway) VerifyWebhookSignature(context.Context, http.Header, map[string]interface{}) error {
	return g.verifyErr
}

func (g *fakeGateway) setStatus(invoiceID, status string) {
	g.mu.Lock()
	g.statuses[invoiceID] = status
	g.mu.Unlock()
}

func (g *fakeGateway) createdCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Mail
}

func (m *recordingMailer) Send(_ context.Context, mail Mail) error {
	m.mu.Lock()
	m.sent = append(m.sent, mail)
	m.mu.Unlock()
	return nil
}

func (m *recordingMailer) kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, mail := range m.sent {
		out = append(out, mail.Kind)
	}
	return out
}

// testEnv 组装一套不依赖外部服务的订单服务
type testEnv struct {
	store    *repository.Store
	gateway  *fakeGateway
	mailer   *recordingMailer
	orders   *OrderService
	invoices *InvoiceService
	poller   *Poller
	checkout *CheckoutService
	admin    *OrderAdminService
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := newTestStore(t)
	gateway := newFakeGateway()
	mailer := &recordingMailer{}
	shop := config.ShopConfig{Name: "License Shop", Email: "support@example.com", URL: "https://shop.example.com", Currency: "USD"}
	notifier := NewNotificationService(mailer, shop, "en")
	effects := NewOrderEffects(nil, notifier, nil, nil)
	orders := NewOrderService(store.Orders, effects)
	invoices := NewInvoiceService(gateway, orders, nil, "USD", shop.Name)
	poller := NewPoller(cache.NewPollStore(), invoices, orders, nil, nil, PollerOptions{
		Interval: time.Hour,
		Timeout:  10 * time.Minute,
	})
	t.Cleanup(poller.Stop)
	cart := NewCartService(store.Products, "USD", false)
	checkout := NewCheckoutService(store.Orders, orders, cart, invoices, poller, effects, "USD")
	admin := NewOrderAdminService(store.Orders, orders, invoices, notifier, effects)

	cfg := &config.Config{}
	cfg.Admin.JWT.SecretKey = "test-admin-secret"
	cfg.Admin.JWT.ExpireHours = 1
	cfg.Checkout.SessionSecret = "test-session-secret"
	return &testEnv{
		store:    store,
		gateway:  gateway,
		mailer:   mailer,
		orders:   orders,
		invoices: invoices,
		poller:   poller,
		checkout: checkout,
		admin:    admin,
		auth:     NewAuthService(cfg),
	}
}

func (e *testEnv) session(t *testing.T) *CheckoutSession {
	t.Helper()
	session, err := e.auth.IssueCheckoutSession("")
	if err != nil {
		t.Fatalf("issue session failed: %v", err)
	}
	return session
}

func testCartLines() models.OrderLines {
	return models.OrderLines{
		{ID: "prod_office", Name: "Office Pro", Price: models.NewMoneyFromFloat(49.5), Quantity: 1},
		{ID: "prod_win", Name: "Windows 11", Variant: "Home", Price: models.NewMoneyFromFloat(20), Quantity: 2},
	}
}

// seedOrder 直接写入指定状态的订单
func (e *testEnv) seedOrder(t *testing.T, paymentStatus, deliveryStatus string) *models.Order {
	t.Helper()
	lines := testCartLines()
	subtotal, total := Summarize(lines)
	order := &models.Order{
		OrderNumber:    generateOrderNo(time.Now()),
		CustomerEmail:  "buyer@example.com",
		CustomerName:   "Ada Buyer",
		CartRef:        "cart_seed_" + paymentStatus,
		Items:          lines,
		Subtotal:       models.NewMoneyFromDecimal(subtotal),
		Total:          models.NewMoneyFromDecimal(total),
		Currency:       "USD",
		PaymentStatus:  paymentStatus,
		DeliveryStatus: deliveryStatus,
	}
	if err := e.store.Orders.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	return order
}
