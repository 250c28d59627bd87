package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/licenseshop/internal/constants"
)

func TestDeliverRequiresPaidOrderAndAllContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	abandoned := env.seedOrder(t, constants.PaymentStatusAbandoned, constants.DeliveryStatusPending)
	if _, err := env.admin.Deliver(ctx, abandoned.ID, DeliverInput{}); !errors.Is(err, ErrDeliveryNotPaid) {
		t.Fatalf("expected not paid, got %v", err)
	}

	paid := env.seedOrder(t, constants.PaymentStatusCompleted, constants.DeliveryStatusPending)
	_, err := env.admin.Deliver(ctx, paid.ID, DeliverInput{Deliverables: map[string]string{"prod_office": "KEY-OFFICE"}})
	if !errors.Is(err, ErrDeliveryIncomplete) || !strings.Contains(err.Error(), "prod_win::Home") {
		t.Fatalf("expected incomplete delivery naming the missing line, got %v", err)
	}

	delivered, err := env.admin.Deliver(ctx, paid.ID, DeliverInput{
		Deliverables: map[string]string{"prod_office": "KEY-OFFICE", "prod_win::Home": "KEY-WIN-1\nKEY-WIN-2"},
		EmailMessage: "Thanks for your purchase",
	})
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if delivered.DeliveryStatus != constants.DeliveryStatusDelivered || len(delivered.DeliveryMessages) != 1 {
		t.Fatalf("unexpected delivered order: %+v", delivered)
	}
	msg := delivered.DeliveryMessages[0]
	if msg.Deliverables["prod_win::Home"] != "KEY-WIN-1\nKEY-WIN-2" || msg.EmailMessage != "Thanks for your purchase" {
		t.Fatalf("unexpected delivery message: %+v", msg)
	}
	stored, _ := env.store.Orders.GetByID(ctx, paid.ID)
	if stored.DeliveryStatus != constants.DeliveryStatusDelivered || len(stored.DeliveryMessages) != 1 {
		t.Fatalf("delivery not persisted: %+v", stored)
	}
	if kinds := env.mailer.kinds(); len(kinds) != 1 || kinds[0] != constants.MailKindDelivery {
		t.Fatalf("expected delivery mail, got %v", kinds)
	}
}

func TestBuildDeliveryEmailDoesNotSend(t *testing.T) {
	env := newTestEnv(t)
	order := env.seedOrder(t, constants.PaymentStatusCompleted, constants.DeliveryStatusPending)
	mail, err := env.admin.BuildDeliveryEmail(context.Background(), order.ID, DeliverInput{
		Deliverables: map[string]string{"prod_office": "KEY-OFFICE"},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(mail.Body, "KEY-OFFICE") || mail.To != "buyer@example.com" {
		t.Fatalf("unexpected mail: %+v", mail)
	}
	if len(env.mailer.kinds()) != 0 {
		t.Fatalf("preview must not send mail")
	}
}

func TestRecoverAbandonedOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.seedOrder(t, constants.PaymentStatusAbandoned, constants.DeliveryStatusPending)

	recovered, err := env.admin.RecoverAbandoned(ctx, order.ID)
	if err != nil || !recovered.AbandonedCartProcessed {
		t.Fatalf("recover failed: %+v err=%v", recovered, err)
	}
	if _, err := env.admin.RecoverAbandoned(ctx, order.ID); !errors.Is(err, ErrRecoveryNotAllowed) {
		t.Fatalf("expected recovery not allowed on second call, got %v", err)
	}
	paid := env.seedOrder(t, constants.PaymentStatusCompleted, constants.DeliveryStatusPending)
	if _, err := env.admin.RecoverAbandoned(ctx, paid.ID); !errors.Is(err, ErrRecoveryNotAllowed) {
		t.Fatalf("expected recovery not allowed for paid order, got %v", err)
	}
	if kinds := env.mailer.kinds(); len(kinds) != 1 || kinds[0] != constants.MailKindAbandonedRecovery {
		t.Fatalf("expected one recovery mail, got %v", kinds)
	}
}

func TestRefundIgnoresDeliveryStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, delivery := range []string{constants.DeliveryStatusPending, constants.DeliveryStatusDelivered} {
		order := env.seedOrder(t, constants.PaymentStatusCompleted, delivery)
		refunded, err := env.admin.Refund(ctx, order.ID)
		if err != nil {
			t.Fatalf("refund with delivery %s failed: %v", delivery, err)
		}
		if refunded.PaymentStatus != constants.PaymentStatusRefunded || refunded.RefundedAt == nil {
			t.Fatalf("unexpected refund result: %+v", refunded)
		}
		if refunded.DeliveryStatus != delivery {
			t.Fatalf("refund must not change delivery status")
		}
	}
	abandoned := env.seedOrder(t, constants.PaymentStatusAbandoned, constants.DeliveryStatusPending)
	if _, err := env.admin.Refund(ctx, abandoned.ID); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("expected invalid status for unpaid refund, got %v", err)
	}
}

func TestUpdateStatusFollowsTransitionTable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order := env.seedOrder(t, constants.PaymentStatusPending, constants.DeliveryStatusPending)

	if _, err := env.admin.UpdateStatus(ctx, order.ID, constants.PaymentStatusRefunded, ""); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("pending -> refunded must be rejected, got %v", err)
	}
	updated, err := env.admin.UpdateStatus(ctx, order.ID, constants.PaymentStatusCompleted, "")
	if err != nil || updated.PaymentStatus != constants.PaymentStatusCompleted || updated.PaidAt == nil {
		t.Fatalf("pending -> completed failed: %+v err=%v", updated, err)
	}
	if _, err := env.admin.UpdateStatus(ctx, order.ID, "", "shipped"); !errors.Is(err, ErrOrderStatusInvalid) {
		t.Fatalf("unknown delivery status must be rejected, got %v", err)
	}
	if _, err := env.admin.UpdateStatus(ctx, order.ID, "", ""); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected missing fields, got %v", err)
	}
}

func TestListTabsAndCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedOrder(t, constants.PaymentStatusAbandoned, constants.DeliveryStatusPending)
	env.seedOrder(t, constants.PaymentStatusCompleted, constants.DeliveryStatusPending)
	delivered := env.seedOrder(t, constants.PaymentStatusCompleted, constants.DeliveryStatusDelivered)

	counts, err := env.admin.TabCounts(ctx)
	if err != nil {
		t.Fatalf("tab counts failed: %v", err)
	}
	if counts[constants.OrderTabAll] != 3 || counts[constants.OrderTabAbandoned] != 1 ||
		counts[constants.OrderTabPending] != 1 || counts[constants.OrderTabDelivered] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
	orders, total, err := env.admin.List(ctx, ListQuery{Tab: constants.OrderTabDelivered, PageSize: 10000})
	if err != nil || total != 1 || orders[0].ID != delivered.ID {
		t.Fatalf("unexpected delivered tab: %d err=%v", total, err)
	}
	if _, _, err := env.admin.List(ctx, ListQuery{Tab: "archived"}); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("expected bad request for unknown tab, got %v", err)
	}
}

func TestReconcileFinalizesPaidInvoices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	noInvoice := env.seedOrder(t, constants.PaymentStatusAbandoned, constants.DeliveryStatusPending)
	if _, err := env.admin.Reconcile(ctx, noInvoice.ID); !errors.Is(err, ErrInvoiceMissing) {
		t.Fatalf("expected invoice missing, got %v", err)
	}

	order := env.seedOrder(t, constants.PaymentStatusPending, constants.DeliveryStatusPending)
	order.InvoiceID = "INV2-REC"
	if err := env.store.Orders.Update(ctx, order); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	env.gateway.setStatus("INV2-REC", constants.InvoiceStatusPending)
	result, err := env.admin.Reconcile(ctx, order.ID)
	if err != nil || result.Finalized || result.InvoiceStatus != constants.InvoiceStatusPending {
		t.Fatalf("unexpected pending reconcile: %+v err=%v", result, err)
	}

	env.gateway.setStatus("INV2-REC", constants.InvoiceStatusPaid)
	results, err := env.admin.ReconcileOpen(ctx)
	if err != nil {
		t.Fatalf("reconcile open failed: %v", err)
	}
	if len(results) != 1 || !results[0].Finalized || results[0].PaymentStatus != constants.PaymentStatusCompleted {
		t.Fatalf("unexpected reconcile results: %+v", results)
	}
}
