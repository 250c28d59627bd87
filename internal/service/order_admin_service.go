package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/repository"
)

// OrderAdminService 管理端订单操作
type OrderAdminService struct {
	orderRepo repository.OrderRepository
	orderSvc  *OrderService
	invoices  *InvoiceService
	notifier  *NotificationService
	effects   *OrderEffects
	now       func() time.Time
}

// NewOrderAdminService 创建管理端订单服务
func NewOrderAdminService(orderRepo repository.OrderRepository, orderSvc *OrderService, invoices *InvoiceService, notifier *NotificationService, effects *OrderEffects) *OrderAdminService {
	return &OrderAdminService{
		orderRepo: orderRepo,
		orderSvc:  orderSvc,
		invoices:  invoices,
		notifier:  notifier,
		effects:   effects,
		now:       time.Now,
	}
}

// List 按分组分页查询
func (s *OrderAdminService) List(ctx context.Context, query ListQuery) ([]models.Order, int64, error) {
	return s.orderSvc.List(ctx, query)
}

// TabCounts 各分组订单数
func (s *OrderAdminService) TabCounts(ctx context.Context) (map[string]int64, error) {
	return s.orderSvc.TabCounts(ctx)
}

// Get 订单详情
func (s *OrderAdminService) Get(ctx context.Context, id string) (*models.Order, error) {
	return s.orderSvc.Get(ctx, id)
}

// DeliverInput 交付参数，Deliverables 以商品行键（id 或 id::variant）为键
type DeliverInput struct {
	Deliverables map[string]string
	EmailMessage string
}

// resolveDeliverables 为每个商品行取交付内容，兼容仅以商品 ID 为键的输入
func resolveDeliverables(items models.OrderLines, input map[string]string) (map[string]string, []string) {
	resolved := make(map[string]string, len(items))
	var missing []string
	for _, item := range items {
		content := strings.TrimSpace(input[item.Key()])
		if content == "" {
			content = strings.TrimSpace(input[item.ID])
		}
		if content == "" {
			missing = append(missing, item.Key())
			continue
		}
		resolved[item.Key()] = content
	}
	return resolved, missing
}

// Deliver 录入交付内容并标记已交付
func (s *OrderAdminService) Deliver(ctx context.Context, id string, input DeliverInput) (*models.Order, error) {
	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != constants.PaymentStatusCompleted {
		return nil, ErrDeliveryNotPaid
	}
	deliverables, missing := resolveDeliverables(order.Items, input.Deliverables)
	if len(order.Items) == 0 || len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDeliveryIncomplete, strings.Join(missing, ", "))
	}
	if err := s.orderSvc.ApplyStatus(order, "", constants.DeliveryStatusDelivered); err != nil {
		return nil, err
	}

	emailMessage := strings.TrimSpace(input.EmailMessage)
	if emailMessage == "" && s.notifier != nil {
		if mail, err := s.notifier.BuildDeliveryEmail(order, deliverables, ""); err == nil {
			emailMessage = mail.Body
		}
	}
	order.DeliveryMessages = append(order.DeliveryMessages, models.DeliveryMessage{
		Timestamp:    s.now(),
		EmailMessage: emailMessage,
		Deliverables: deliverables,
		Status:       constants.DeliveryStatusDelivered,
	})
	if err := s.orderSvc.save(ctx, order); err != nil {
		return nil, err
	}
	logger.Infow("order_delivered", "order_id", order.ID, "order_number", order.OrderNumber, "items", len(deliverables))
	s.effects.Publish(ctx, constants.EventOrderDelivered, order)
	s.effects.SendMail(ctx, constants.MailKindDelivery, order, deliverables, strings.TrimSpace(input.EmailMessage))
	return order, nil
}

// BuildDeliveryEmail 生成交付邮件预览，只记录日志不发送
func (s *OrderAdminService) BuildDeliveryEmail(ctx context.Context, id string, input DeliverInput) (Mail, error) {
	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		return Mail{}, err
	}
	if s.notifier == nil {
		return Mail{}, fmt.Errorf("notification service unavailable")
	}
	mail, err := s.notifier.BuildDeliveryEmail(order, input.Deliverables, input.EmailMessage)
	if err != nil {
		return Mail{}, err
	}
	logger.Infow("delivery_email_preview", "order_id", order.ID, "to", mail.To, "subject", mail.Subject, "body", mail.Body)
	return mail, nil
}

// RecoverAbandoned 发送弃单召回邮件，每个订单只处理一次
func (s *OrderAdminService) RecoverAbandoned(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != constants.PaymentStatusAbandoned || order.AbandonedCartProcessed {
		return nil, ErrRecoveryNotAllowed
	}
	order.AbandonedCartProcessed = true
	if err := s.orderSvc.save(ctx, order); err != nil {
		return nil, err
	}
	logger.Infow("order_abandoned_recovered", "order_id", order.ID, "email", order.CustomerEmail)
	s.effects.Publish(ctx, constants.EventOrderRecovered, order)
	s.effects.SendMail(ctx, constants.MailKindAbandonedRecovery, order, nil, "")
	return order, nil
}

// Refund 退款，不受交付状态限制
func (s *OrderAdminService) Refund(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.orderSvc.ApplyStatus(order, constants.PaymentStatusRefunded, ""); err != nil {
		return nil, err
	}
	if err := s.orderSvc.save(ctx, order); err != nil {
		return nil, err
	}
	logger.Infow("order_refunded", "order_id", order.ID, "delivery_status", order.DeliveryStatus, "total", order.Total.String())
	s.effects.Publish(ctx, constants.EventOrderRefunded, order)
	s.effects.SendMail(ctx, constants.MailKindRefund, order, nil, "")
	return order, nil
}

// UpdateStatus 按流转表修改状态
func (s *OrderAdminService) UpdateStatus(ctx context.Context, id, paymentStatus, deliveryStatus string) (*models.Order, error) {
	if strings.TrimSpace(paymentStatus) == "" && strings.TrimSpace(deliveryStatus) == "" {
		return nil, &MissingFieldsError{Fields: []string{"payment_status", "delivery_status"}}
	}
	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousPayment := order.PaymentStatus
	if err := s.orderSvc.ApplyStatus(order, paymentStatus, deliveryStatus); err != nil {
		return nil, err
	}
	if err := s.orderSvc.save(ctx, order); err != nil {
		return nil, err
	}
	logger.Infow("order_status_updated",
		"order_id", order.ID,
		"payment_status", order.PaymentStatus,
		"delivery_status", order.DeliveryStatus,
	)
	event := constants.EventOrderUpdated
	if previousPayment != order.PaymentStatus {
		switch order.PaymentStatus {
		case constants.PaymentStatusCompleted:
			event = constants.EventOrderPaid
		case constants.PaymentStatusRefunded:
			event = constants.EventOrderRefunded
			s.effects.SendMail(ctx, constants.MailKindRefund, order, nil, "")
		}
	}
	s.effects.Publish(ctx, event, order)
	return order, nil
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	InvoiceID     string `json:"invoice_id"`
	InvoiceStatus string `json:"invoice_status"`
	PaymentStatus string `json:"payment_status"`
	Finalized     bool   `json:"finalized"`
	Error         string `json:"error,omitempty"`
}

// Reconcile 重新查询 PayPal 发票状态，已支付则完成订单
func (s *OrderAdminService) Reconcile(ctx context.Context, id string) (*ReconcileResult, error) {
	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.reconcileOrder(ctx, order)
}

func (s *OrderAdminService) reconcileOrder(ctx context.Context, order *models.Order) (*ReconcileResult, error) {
	if strings.TrimSpace(order.InvoiceID) == "" {
		return nil, ErrInvoiceMissing
	}
	result := &ReconcileResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		InvoiceID:     order.InvoiceID,
		PaymentStatus: order.PaymentStatus,
	}
	status, err := s.invoices.GetInvoiceStatus(ctx, order.InvoiceID)
	if err != nil {
		return nil, err
	}
	result.InvoiceStatus = status
	if status != constants.InvoiceStatusPaid {
		return result, nil
	}
	updated, changed, err := s.orderSvc.FinalizePaid(ctx, order.ID, models.JSON{
		"source":         "reconcile",
		"invoice_id":     order.InvoiceID,
		"invoice_status": constants.PaypalInvoiceStatusPaid,
		"reconciled_at":  s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	result.PaymentStatus = updated.PaymentStatus
	result.Finalized = changed
	logger.Infow("order_reconciled", "order_id", order.ID, "invoice_id", order.InvoiceID, "finalized", changed)
	return result, nil
}

func (s *OrderAdminService) listOpenInvoiced(ctx context.Context) ([]models.Order, error) {
	orders, _, err := s.orderRepo.List(ctx, repository.OrderListFilter{
		Page:            1,
		PageSize:        constants.DefaultAdminListSize,
		PaymentStatuses: []string{constants.PaymentStatusAbandoned, constants.PaymentStatusPending},
		OnlyWithInvoice: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	return orders, nil
}

// OpenInvoicedOrderIDs 带发票的未完成订单 ID
func (s *OrderAdminService) OpenInvoicedOrderIDs(ctx context.Context) ([]string, error) {
	orders, err := s.listOpenInvoiced(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	return ids, nil
}

// ReconcileOpen 对所有带发票的未完成订单逐一对账
func (s *OrderAdminService) ReconcileOpen(ctx context.Context) ([]ReconcileResult, error) {
	orders, err := s.listOpenInvoiced(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ReconcileResult, 0, len(orders))
	for i := range orders {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.reconcileOrder(ctx, &orders[i])
		if err != nil {
			results = append(results, ReconcileResult{
				OrderID:       orders[i].ID,
				OrderNumber:   orders[i].OrderNumber,
				InvoiceID:     orders[i].InvoiceID,
				PaymentStatus: orders[i].PaymentStatus,
				Error:         err.Error(),
			})
			continue
		}
		results = append(results, *result)
	}
	return results, nil
}
