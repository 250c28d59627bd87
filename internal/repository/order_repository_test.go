package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupOrderRepositoryTest(t *testing.T) *GormOrderRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return NewOrderRepository(db)
}

func newTestOrder(cartRef, status string) *models.Order {
	return &models.Order{
		OrderNumber:    "LS" + cartRef,
		CustomerEmail:  "buyer@example.com",
		CartRef:        cartRef,
		Items:          models.OrderLines{{ID: "p1", Name: "Pro", Price: models.NewMoneyFromFloat(10), Quantity: 1}},
		Subtotal:       models.NewMoneyFromFloat(10),
		Total:          models.NewMoneyFromFloat(10),
		Currency:       "USD",
		PaymentStatus:  status,
		DeliveryStatus: constants.DeliveryStatusPending,
	}
}

func TestGormOrderRepositoryRoundTrip(t *testing.T) {
	repo := setupOrderRepositoryTest(t)
	ctx := context.Background()

	order := newTestOrder("cart-1", constants.PaymentStatusAbandoned)
	order.Info = models.JSON{"country": "DE"}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(order.ID) != 15 {
		t.Fatalf("expected generated record id, got %q", order.ID)
	}

	got, err := repo.GetByID(ctx, order.ID)
	if err != nil || got == nil {
		t.Fatalf("get failed: %v %v", got, err)
	}
	if got.Items[0].Name != "Pro" || got.Info["country"] != "DE" || got.Total.String() != "10.00" {
		t.Fatalf("unexpected order: %+v", got)
	}

	now := time.Now()
	got.PaymentStatus = constants.PaymentStatusRefunded
	got.RefundedAt = &now
	got.DeliveryMessages = models.DeliveryMessages{{Timestamp: now, Deliverables: map[string]string{"p1": "KEY-1"}, Status: "delivered"}}
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	reloaded, _ := repo.GetByID(ctx, order.ID)
	if reloaded.PaymentStatus != constants.PaymentStatusRefunded || reloaded.RefundedAt == nil {
		t.Fatalf("update not persisted: %+v", reloaded)
	}
	if len(reloaded.DeliveryMessages) != 1 || reloaded.DeliveryMessages[0].Deliverables["p1"] != "KEY-1" {
		t.Fatalf("delivery messages not persisted: %+v", reloaded.DeliveryMessages)
	}

	missing, err := repo.GetByID(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing order, got %v %v", missing, err)
	}
}

func TestGormOrderRepositoryFindOpenByCartRef(t *testing.T) {
	repo := setupOrderRepositoryTest(t)
	ctx := context.Background()

	paid := newTestOrder("cart-2", constants.PaymentStatusCompleted)
	if err := repo.Create(ctx, paid); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if open, err := repo.FindOpenByCartRef(ctx, "cart-2"); err != nil || open != nil {
		t.Fatalf("completed order should not be reopened: %v %v", open, err)
	}
	pending := newTestOrder("cart-2", constants.PaymentStatusPending)
	pending.InvoiceID = "INV2-1"
	if err := repo.Create(ctx, pending); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	open, err := repo.FindOpenByCartRef(ctx, "cart-2")
	if err != nil || open == nil || open.ID != pending.ID {
		t.Fatalf("expected pending order, got %v %v", open, err)
	}
	byInvoice, err := repo.GetByInvoiceID(ctx, "INV2-1")
	if err != nil || byInvoice == nil || byInvoice.ID != pending.ID {
		t.Fatalf("expected order by invoice, got %v %v", byInvoice, err)
	}
}

func TestGormOrderRepositoryListFilters(t *testing.T) {
	repo := setupOrderRepositoryTest(t)
	ctx := context.Background()
	for i, status := range []string{
		constants.PaymentStatusAbandoned,
		constants.PaymentStatusPending,
		constants.PaymentStatusCompleted,
		constants.PaymentStatusCompleted,
	} {
		o := newTestOrder(fmt.Sprintf("c%d", i), status)
		o.CreatedAt = time.Now().Add(time.Duration(i) * time.Minute)
		if status == constants.PaymentStatusPending {
			o.InvoiceID = "INV-P"
		}
		if err := repo.Create(ctx, o); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	all, total, err := repo.List(ctx, OrderListFilter{Page: 1, PageSize: 1000})
	if err != nil || total != 4 || len(all) != 4 {
		t.Fatalf("unexpected list: %d %d %v", len(all), total, err)
	}
	if !all[0].CreatedAt.After(all[3].CreatedAt) {
		t.Fatalf("expected newest first")
	}
	completed, total, _ := repo.List(ctx, OrderListFilter{PaymentStatuses: []string{constants.PaymentStatusCompleted}})
	if total != 2 || len(completed) != 2 {
		t.Fatalf("unexpected completed count: %d", total)
	}
	withInvoice, total, _ := repo.List(ctx, OrderListFilter{OnlyWithInvoice: true})
	if total != 1 || withInvoice[0].InvoiceID != "INV-P" {
		t.Fatalf("unexpected invoice filter result: %+v", withInvoice)
	}
}

func TestGormSettingRepositoryUpsert(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	repo := NewSettingRepository(db)
	ctx := context.Background()
	if _, err := repo.Upsert(ctx, "store_config", models.JSON{"name": "A"}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if _, err := repo.Upsert(ctx, "store_config", models.JSON{"name": "B"}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	got, err := repo.Get(ctx, "store_config")
	if err != nil || got == nil || got.Value["name"] != "B" {
		t.Fatalf("unexpected setting: %+v %v", got, err)
	}
	list, _ := repo.List(ctx)
	if len(list) != 1 {
		t.Fatalf("expected single setting row, got %d", len(list))
	}
}
