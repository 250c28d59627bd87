package service

import (
	"context"
	"time"

	"github.com/licenseshop/internal/events"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/metrics"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/queue"
)

// OrderEffects 订单变更后的副作用：邮件、事件与指标。
// 失败只记录日志，不回滚已保存的订单。
type OrderEffects struct {
	queueClient *queue.Client
	notifier    *NotificationService
	publisher   *events.Publisher
	metrics     *metrics.Metrics
}

// NewOrderEffects 创建副作用执行器
func NewOrderEffects(queueClient *queue.Client, notifier *NotificationService, publisher *events.Publisher, m *metrics.Metrics) *OrderEffects {
	return &OrderEffects{
		queueClient: queueClient,
		notifier:    notifier,
		publisher:   publisher,
		metrics:     m,
	}
}

// Metrics 返回指标集合
func (e *OrderEffects) Metrics() *metrics.Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// Publish 发布订单事件
func (e *OrderEffects) Publish(ctx context.Context, event string, order *models.Order) {
	if e == nil || e.publisher == nil || order == nil {
		return
	}
	if err := e.publisher.Publish(ctx, event, events.NewOrderEvent(order, time.Now())); err != nil {
		e.metrics.EventPublishFailed()
		logger.Warnw("order_event_publish_failed", "event", event, "order_id", order.ID, "error", err)
	}
}

// Transition 记录状态流转指标
func (e *OrderEffects) Transition(field, to string) {
	if e == nil {
		return
	}
	e.metrics.OrderTransition(field, to)
}

// SendMail 队列启用时入队，否则同步发送
func (e *OrderEffects) SendMail(ctx context.Context, kind string, order *models.Order, deliverables map[string]string, message string) {
	if e == nil || order == nil {
		return
	}
	if e.queueClient.Enabled() {
		err := e.queueClient.EnqueueOrderMail(queue.OrderMailPayload{
			OrderID:      order.ID,
			Kind:         kind,
			Deliverables: deliverables,
			Message:      message,
		})
		if err == nil {
			return
		}
		logger.Warnw("order_mail_enqueue_failed", "order_id", order.ID, "kind", kind, "error", err)
	}
	if e.notifier == nil {
		return
	}
	if _, err := e.notifier.Send(ctx, MailInput{Kind: kind, Order: order, Deliverables: deliverables, Message: message}); err != nil {
		logger.Warnw("order_mail_send_failed", "order_id", order.ID, "kind", kind, "error", err)
	}
}
