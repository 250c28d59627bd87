package worker

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/payment/paypal"
	"github.com/licenseshop/internal/provider"
	"github.com/licenseshop/internal/queue"
	"github.com/licenseshop/internal/repository"
	"github.com/licenseshop/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

type stubGateway struct {
	mu       sync.Mutex
	statuses map[string]string
}

func (g *stubGateway) CreateAndSendInvoice(context.Context, paypal.InvoiceInput) (*paypal.Invoice, error) {
	return nil, fmt.Errorf("not supported")
}

func (g *stubGateway) GetInvoiceStatus(_ context.Context, invoiceID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[invoiceID]
	if !ok {
		return "", paypal.ErrInvoiceNotFound
	}
	return status, nil
}

func (g *stubGateway) VerifyWebhookSignature(context.Context, http.Header, map[string]interface{}) error {
	return nil
}

type memoryMailer struct {
	mu   sync.Mutex
	sent []service.Mail
}

func (m *memoryMailer) Send(_ context.Context, mail service.Mail) error {
	m.mu.Lock()
	m.sent = append(m.sent, mail)
	m.mu.Unlock()
	return nil
}

func (m *memoryMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func newTestConsumer(t *testing.T) (*Consumer, *stubGateway, *memoryMailer) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	store := repository.NewGormStore(db)
	gateway := &stubGateway{statuses: map[string]string{}}
	mailer := &memoryMailer{}

	shop := config.ShopConfig{Name: "License Shop", Email: "support@example.com", Currency: "USD"}
	notifier := service.NewNotificationService(mailer, shop, "en")
	effects := service.NewOrderEffects(nil, notifier, nil, nil)
	orders := service.NewOrderService(store.Orders, effects)
	invoices := service.NewInvoiceService(gateway, orders, nil, "USD", shop.Name)

	container := &provider.Container{
		Config:              &config.Config{Shop: shop},
		Store:               store,
		NotificationService: notifier,
		OrderEffects:        effects,
		OrderService:        orders,
		InvoiceService:      invoices,
		OrderAdminService:   service.NewOrderAdminService(store.Orders, orders, invoices, notifier, effects),
	}
	return NewConsumer(container), gateway, mailer
}

func seedWorkerOrder(t *testing.T, c *Consumer, invoiceID string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:   "LS20260301120000" + fmt.Sprintf("%06d", len(invoiceID)),
		CustomerEmail: "buyer@example.com",
		CartRef:       "cart_worker_" + invoiceID,
		Items: models.OrderLines{
			{ID: "prod_office", Name: "Office Pro", Price: models.NewMoneyFromFloat(49.5), Quantity: 1},
		},
		Subtotal:       models.NewMoneyFromFloat(49.5),
		Total:          models.NewMoneyFromFloat(49.5),
		Currency:       "USD",
		PaymentStatus:  constants.PaymentStatusPending,
		DeliveryStatus: constants.DeliveryStatusPending,
		InvoiceID:      invoiceID,
	}
	if err := c.Store.Orders.Create(context.Background(), order); err != nil {
		t.Fatalf("seed order failed: %v", err)
	}
	return order
}

func TestHandleOrderMailSendsNotification(t *testing.T) {
	consumer, _, mailer := newTestConsumer(t)
	order := seedWorkerOrder(t, consumer, "")

	task, err := queue.NewOrderMailTask(queue.OrderMailPayload{OrderID: order.ID, Kind: constants.MailKindOrderConfirmation})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleOrderMail(context.Background(), task); err != nil {
		t.Fatalf("handle mail failed: %v", err)
	}
	if mailer.count() != 1 {
		t.Fatalf("expected one mail, got %d", mailer.count())
	}

	// 订单已不存在时直接丢弃任务
	missing, _ := queue.NewOrderMailTask(queue.OrderMailPayload{OrderID: "gone", Kind: constants.MailKindOrderConfirmation})
	if err := consumer.handleOrderMail(context.Background(), missing); err != nil {
		t.Fatalf("missing order should be skipped, got %v", err)
	}
	if mailer.count() != 1 {
		t.Fatalf("no mail expected for missing order")
	}
}

func TestHandleOrderMailRejectsBadPayload(t *testing.T) {
	consumer, _, _ := newTestConsumer(t)
	if err := consumer.handleOrderMail(context.Background(), asynq.NewTask(queue.TaskOrderMail, []byte("{"))); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestHandleOrderReconcileFinalizesPaidInvoice(t *testing.T) {
	consumer, gateway, mailer := newTestConsumer(t)
	order := seedWorkerOrder(t, consumer, "INV2-0001")
	gateway.statuses["INV2-0001"] = constants.InvoiceStatusPaid

	task, err := queue.NewOrderReconcileTask(queue.OrderReconcilePayload{OrderID: order.ID})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handleOrderReconcile(context.Background(), task); err != nil {
		t.Fatalf("handle reconcile failed: %v", err)
	}
	updated, err := consumer.OrderService.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if updated.PaymentStatus != constants.PaymentStatusCompleted {
		t.Fatalf("expected completed, got %s", updated.PaymentStatus)
	}
	if mailer.count() == 0 {
		t.Fatalf("expected confirmation mail after reconcile")
	}

	// 没有发票的订单跳过
	bare := seedWorkerOrder(t, consumer, "")
	task, _ = queue.NewOrderReconcileTask(queue.OrderReconcilePayload{OrderID: bare.ID})
	if err := consumer.handleOrderReconcile(context.Background(), task); err != nil {
		t.Fatalf("order without invoice should be skipped, got %v", err)
	}
}

func TestReconcileLoopRunOnce(t *testing.T) {
	consumer, gateway, _ := newTestConsumer(t)
	seedWorkerOrder(t, consumer, "INV2-0001")
	seedWorkerOrder(t, consumer, "INV2-0002")
	gateway.statuses["INV2-0001"] = constants.InvoiceStatusPaid
	gateway.statuses["INV2-0002"] = constants.InvoiceStatusPending

	loop, err := NewReconcileLoop(consumer.OrderAdminService, 0)
	if err == nil || loop != nil {
		t.Fatalf("zero interval must be rejected")
	}
	loop, err = NewReconcileLoop(consumer.OrderAdminService, time.Minute)
	if err != nil {
		t.Fatalf("new loop failed: %v", err)
	}
	if got := loop.RunOnce(context.Background()); got != 1 {
		t.Fatalf("expected one finalized order, got %d", got)
	}
	// 第二轮没有新的付款
	if got := loop.RunOnce(context.Background()); got != 0 {
		t.Fatalf("expected nothing left to finalize, got %d", got)
	}
	if err := loop.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("start after stop should return nil, got %v", err)
	}
}

type recordingDispatcher struct {
	ids []string
}

func (d *recordingDispatcher) Enabled() bool { return true }

func (d *recordingDispatcher) EnqueueOrderReconcile(payload queue.OrderReconcilePayload, _ ...asynq.Option) error {
	if len(d.ids) > 0 && d.ids[len(d.ids)-1] == payload.OrderID {
		return asynq.ErrTaskIDConflict
	}
	d.ids = append(d.ids, payload.OrderID)
	return nil
}

func TestReconcileLoopDispatchesToQueue(t *testing.T) {
	consumer, gateway, _ := newTestConsumer(t)
	paid := seedWorkerOrder(t, consumer, "INV2-0001")
	seedWorkerOrder(t, consumer, "")
	gateway.statuses["INV2-0001"] = constants.InvoiceStatusPaid

	dispatcher := &recordingDispatcher{}
	loop, err := NewReconcileLoop(consumer.OrderAdminService, time.Minute, WithDispatcher(dispatcher))
	if err != nil {
		t.Fatalf("new loop failed: %v", err)
	}
	if got := loop.RunOnce(context.Background()); got != 0 {
		t.Fatalf("dispatching should not finalize inline, got %d", got)
	}
	if len(dispatcher.ids) != 1 || dispatcher.ids[0] != paid.ID {
		t.Fatalf("expected only the invoiced order to be enqueued, got %v", dispatcher.ids)
	}
	order, err := consumer.OrderService.Get(context.Background(), paid.ID)
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if order.PaymentStatus == constants.PaymentStatusCompleted {
		t.Fatalf("order must stay open until the task runs")
	}

	loop.RunOnce(context.Background())
	if len(dispatcher.ids) != 1 {
		t.Fatalf("conflicting task id should not be counted twice, got %v", dispatcher.ids)
	}
}
