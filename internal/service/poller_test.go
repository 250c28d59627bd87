package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/queue"
)

// startPendingOrder 创建一个已开票、待支付的订单
func startPendingOrder(t *testing.T, env *testEnv) (*models.Order, *PaymentStart) {
	t.Helper()
	ctx := context.Background()
	session := env.session(t)
	order, _, err := env.checkout.SaveAbandonedOrder(ctx, session, SaveOrderInput{
		CustomerEmail: "poll@example.com",
		CustomerName:  "Poll Buyer",
		Items:         testCartLines(),
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	start, err := env.checkout.StartPayment(ctx, session, order.ID)
	if err != nil {
		t.Fatalf("start payment failed: %v", err)
	}
	return order, start
}

func TestPollerPaidFinalizesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order, start := startPendingOrder(t, env)

	outcome, err := env.poller.CheckOnce(ctx, order.ID)
	if err != nil {
		t.Fatalf("check once failed: %v", err)
	}
	if outcome.Status != constants.PollStateActive || outcome.InvoiceStatus != constants.InvoiceStatusPending || outcome.Attempts != 1 {
		t.Fatalf("unexpected pending outcome: %+v", outcome)
	}

	env.gateway.setStatus(start.ID, constants.InvoiceStatusPaid)
	outcome, err = env.poller.CheckOnce(ctx, order.ID)
	if err != nil {
		t.Fatalf("check once failed: %v", err)
	}
	if outcome.Status != constants.PollStatePaid || !outcome.ClearCart || outcome.Redirect != "/thank-you" {
		t.Fatalf("unexpected paid outcome: %+v", outcome)
	}

	stored, _ := env.store.Orders.GetByID(ctx, order.ID)
	if stored.PaymentStatus != constants.PaymentStatusCompleted || stored.DeliveryStatus != constants.DeliveryStatusPending {
		t.Fatalf("unexpected status after paid: %s/%s", stored.PaymentStatus, stored.DeliveryStatus)
	}
	if stored.PaidAt == nil || stored.PaymentDetails["source"] != "poll" {
		t.Fatalf("payment details not recorded: %+v", stored.PaymentDetails)
	}
	kinds := env.mailer.kinds()
	if len(kinds) != 1 || kinds[0] != constants.MailKindOrderConfirmation {
		t.Fatalf("expected confirmation mail, got %v", kinds)
	}

	// 结束后的会话保持结果，不再查询网关
	again, err := env.poller.Status(ctx, order.ID)
	if err != nil || again.Status != constants.PollStatePaid {
		t.Fatalf("expected retained paid outcome, got %+v err=%v", again, err)
	}
}

func TestPollerTimeoutLeavesOrderUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order, _ := startPendingOrder(t, env)

	env.poller.now = func() time.Time { return time.Now().Add(11 * time.Minute) }
	outcome, err := env.poller.CheckOnce(ctx, order.ID)
	if err != nil {
		t.Fatalf("check once failed: %v", err)
	}
	if outcome.Status != constants.PollStateTimeout || outcome.ClearCart {
		t.Fatalf("unexpected timeout outcome: %+v", outcome)
	}
	stored, _ := env.store.Orders.GetByID(ctx, order.ID)
	if stored.PaymentStatus != constants.PaymentStatusPending {
		t.Fatalf("timeout must not change the order, got %s", stored.PaymentStatus)
	}
}

func TestPollerStatusErrorsAreTransient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order, _ := startPendingOrder(t, env)

	env.gateway.statusErr = errors.New("connection reset")
	outcome, err := env.poller.CheckOnce(ctx, order.ID)
	if err != nil {
		t.Fatalf("transient error should not fail the poll: %v", err)
	}
	if outcome.Status != constants.PollStateActive || outcome.Attempts != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestPollerStartDeduplicatesByInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order, start := startPendingOrder(t, env)

	first, err := env.poller.Status(ctx, order.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	second, err := env.poller.Start(ctx, order.ID, start.ID)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !second.Deadline.Equal(first.Deadline) {
		t.Fatalf("expected existing session, deadlines differ: %v vs %v", first.Deadline, second.Deadline)
	}
	if env.poller.Running() != 1 {
		t.Fatalf("expected a single runner, got %d", env.poller.Running())
	}
	if _, err := env.poller.Status(ctx, "unknown"); !errors.Is(err, ErrPollNotFound) {
		t.Fatalf("expected poll not found, got %v", err)
	}
}

func TestPollStatusSynthesizesPaidForCompletedOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.session(t)
	order, _, err := env.checkout.SaveAbandonedOrder(ctx, session, SaveOrderInput{CustomerEmail: "a@example.com", Items: testCartLines()})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := env.checkout.FinalizePaid(ctx, order.ID, models.JSON{"source": "manual"}); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	outcome, err := env.checkout.PollStatus(ctx, session, order.ID)
	if err != nil {
		t.Fatalf("poll status failed: %v", err)
	}
	if outcome.Status != constants.PollStatePaid || !outcome.ClearCart {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

func TestPollerRepricedOrderIgnoresStaleInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session := env.session(t)
	order, _, err := env.checkout.SaveAbandonedOrder(ctx, session, SaveOrderInput{CustomerEmail: "a@example.com", Items: testCartLines()})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	start, err := env.checkout.StartPayment(ctx, session, order.ID)
	if err != nil {
		t.Fatalf("start payment failed: %v", err)
	}
	if start.Total != "89.50" {
		t.Fatalf("unexpected invoice total: %s", start.Total)
	}

	lines := append(testCartLines(), models.OrderLine{ID: "prod_server", Name: "Server 2022", Price: models.NewMoneyFromFloat(500), Quantity: 1})
	updated, err := env.checkout.UpdateOrder(ctx, session, order.ID, SaveOrderInput{CustomerEmail: "a@example.com", Items: lines})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Total.String() != "589.50" || updated.InvoiceID != "" {
		t.Fatalf("expected repriced order without invoice, got %s %q", updated.Total.String(), updated.InvoiceID)
	}
	if env.poller.Running() != 0 {
		t.Fatalf("runner for the dropped invoice should be cancelled, got %d", env.poller.Running())
	}

	// 客户仍按旧发票付款
	env.gateway.setStatus(start.ID, constants.InvoiceStatusPaid)
	outcome, err := env.poller.CheckOnce(ctx, order.ID)
	if err != nil {
		t.Fatalf("check once failed: %v", err)
	}
	if outcome.Status != constants.PollStateSuperseded || outcome.ClearCart {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	stored, _ := env.store.Orders.GetByID(ctx, order.ID)
	if stored.PaymentStatus != constants.PaymentStatusAbandoned || stored.PaidAt != nil {
		t.Fatalf("stale invoice must not finalize the order, got %s", stored.PaymentStatus)
	}
}

func TestPollerCheckOnceRequiresBoundInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order, start := startPendingOrder(t, env)

	// 订单在轮询会话之外被换绑
	stored, _ := env.store.Orders.GetByID(ctx, order.ID)
	stored.InvoiceID = "INV2-9999"
	if err := env.store.Orders.Update(ctx, stored); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	env.gateway.setStatus(start.ID, constants.InvoiceStatusPaid)
	outcome, err := env.poller.CheckOnce(ctx, order.ID)
	if err != nil {
		t.Fatalf("check once failed: %v", err)
	}
	if outcome.Status != constants.PollStateSuperseded {
		t.Fatalf("expected superseded, got %+v", outcome)
	}
	stored, _ = env.store.Orders.GetByID(ctx, order.ID)
	if stored.PaymentStatus != constants.PaymentStatusPending {
		t.Fatalf("order must stay pending, got %s", stored.PaymentStatus)
	}
	if len(env.mailer.kinds()) != 0 {
		t.Fatalf("no confirmation mail expected, got %v", env.mailer.kinds())
	}
}

func TestPollerHandleTaskDropsStaleChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	order, start := startPendingOrder(t, env)

	err := env.poller.HandleTask(ctx, queue.InvoicePollPayload{OrderID: order.ID, InvoiceID: "INV2-0000"})
	if err != nil {
		t.Fatalf("stale task should end quietly, got %v", err)
	}
	status, err := env.poller.Status(ctx, order.ID)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Attempts != 0 || status.InvoiceID != start.ID {
		t.Fatalf("stale task must not touch the current session: %+v", status)
	}

	if err := env.poller.HandleTask(ctx, queue.InvoicePollPayload{OrderID: order.ID, InvoiceID: start.ID}); err != nil {
		t.Fatalf("current task failed: %v", err)
	}
	status, _ = env.poller.Status(ctx, order.ID)
	if status.Attempts != 1 || status.Status != constants.PollStateActive {
		t.Fatalf("current task should check the invoice: %+v", status)
	}
}
