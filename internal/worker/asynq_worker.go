package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/provider"
	"github.com/licenseshop/internal/queue"
	"github.com/licenseshop/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskInvoicePoll, c.handleInvoicePoll)
	mux.HandleFunc(queue.TaskOrderMail, c.handleOrderMail)
	mux.HandleFunc(queue.TaskOrderReconcile, c.handleOrderReconcile)
}

func (c *Consumer) handleInvoicePoll(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.Poller == nil {
		logger.Debugw("worker_invoice_poll_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.InvoicePollPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_invoice_poll_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		logger.Debugw("worker_invoice_poll_skip_invalid_payload", "invoice_id", payload.InvoiceID)
		return nil
	}
	if err := c.Poller.HandleTask(ctx, payload); err != nil {
		logger.Warnw("worker_invoice_poll_failed", "order_id", payload.OrderID, "invoice_id", payload.InvoiceID, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleOrderMail(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.OrderService == nil || c.NotificationService == nil {
		logger.Debugw("worker_order_mail_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderMailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_mail_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.OrderID) == "" || strings.TrimSpace(payload.Kind) == "" {
		logger.Debugw("worker_order_mail_skip_invalid_payload", "order_id", payload.OrderID, "kind", payload.Kind)
		return nil
	}
	order, err := c.OrderService.Get(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) {
			logger.Debugw("worker_order_mail_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		}
		logger.Warnw("worker_order_mail_fetch_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	mail, err := c.NotificationService.Send(ctx, service.MailInput{
		Kind:         payload.Kind,
		Order:        order,
		Deliverables: payload.Deliverables,
		Message:      payload.Message,
	})
	if err != nil {
		logger.Warnw("worker_order_mail_send_failed", "order_id", order.ID, "kind", payload.Kind, "error", err)
		return err
	}
	logger.Debugw("worker_order_mail_sent", "order_id", order.ID, "kind", payload.Kind, "to", mail.To)
	return nil
}

func (c *Consumer) handleOrderReconcile(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil || c.OrderAdminService == nil {
		logger.Debugw("worker_order_reconcile_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_order_reconcile_unmarshal_failed", "error", err)
		return err
	}
	if strings.TrimSpace(payload.OrderID) == "" {
		logger.Debugw("worker_order_reconcile_skip_invalid_payload")
		return nil
	}
	result, err := c.OrderAdminService.Reconcile(ctx, payload.OrderID)
	if err != nil {
		if errors.Is(err, service.ErrOrderNotFound) || errors.Is(err, service.ErrInvoiceMissing) {
			logger.Debugw("worker_order_reconcile_skip", "order_id", payload.OrderID, "reason", err.Error())
			return nil
		}
		logger.Warnw("worker_order_reconcile_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	logger.Debugw("worker_order_reconcile_done", "order_id", payload.OrderID, "invoice_status", result.InvoiceStatus, "finalized", result.Finalized)
	return nil
}
