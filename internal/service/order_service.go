package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/repository"
)

// OrderService 订单状态流转，结账、轮询与管理端共用
type OrderService struct {
	orderRepo repository.OrderRepository
	effects   *OrderEffects
	now       func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(orderRepo repository.OrderRepository, effects *OrderEffects) *OrderService {
	return &OrderService{orderRepo: orderRepo, effects: effects, now: time.Now}
}

// Get 读取订单
func (s *OrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrOrderNotFound
	}
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) save(ctx context.Context, order *models.Order) error {
	if err := s.orderRepo.Update(ctx, order); err != nil {
		return fmt.Errorf("%w: %v", ErrOrderUpdateFailed, err)
	}
	return nil
}

// ApplyStatus 按流转表修改支付/交付状态，空字符串表示不修改
func (s *OrderService) ApplyStatus(order *models.Order, paymentStatus, deliveryStatus string) error {
	paymentStatus = normalizeStatus(paymentStatus)
	deliveryStatus = normalizeStatus(deliveryStatus)
	if paymentStatus != "" && !IsValidPaymentStatus(paymentStatus) {
		return fmt.Errorf("%w: unknown payment_status %s", ErrOrderStatusInvalid, paymentStatus)
	}
	if deliveryStatus != "" && !IsValidDeliveryStatus(deliveryStatus) {
		return fmt.Errorf("%w: unknown delivery_status %s", ErrOrderStatusInvalid, deliveryStatus)
	}
	if paymentStatus != "" && !CanTransitionPayment(order.PaymentStatus, paymentStatus) {
		return fmt.Errorf("%w: payment_status %s -> %s", ErrOrderStatusInvalid, order.PaymentStatus, paymentStatus)
	}
	if deliveryStatus != "" && !CanTransitionDelivery(order.DeliveryStatus, deliveryStatus) {
		return fmt.Errorf("%w: delivery_status %s -> %s", ErrOrderStatusInvalid, order.DeliveryStatus, deliveryStatus)
	}
	now := s.now()
	if paymentStatus != "" && paymentStatus != order.PaymentStatus {
		order.PaymentStatus = paymentStatus
		switch paymentStatus {
		case constants.PaymentStatusCompleted:
			if order.PaidAt == nil {
				order.PaidAt = &now
			}
		case constants.PaymentStatusRefunded:
			order.RefundedAt = &now
		}
		s.effects.Transition("payment_status", paymentStatus)
	}
	if deliveryStatus != "" && deliveryStatus != order.DeliveryStatus {
		order.DeliveryStatus = deliveryStatus
		s.effects.Transition("delivery_status", deliveryStatus)
	}
	return nil
}

// FinalizePaid 标记订单已支付；已完成的订单直接返回，不重复处理
func (s *OrderService) FinalizePaid(ctx context.Context, orderID string, details models.JSON) (*models.Order, bool, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	return s.finalize(ctx, order, details)
}

// FinalizeByInvoice 根据发票号标记订单已支付
func (s *OrderService) FinalizeByInvoice(ctx context.Context, invoiceID string, details models.JSON) (*models.Order, bool, error) {
	order, err := s.orderRepo.GetByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if order == nil {
		return nil, false, ErrOrderNotFound
	}
	return s.finalize(ctx, order, details)
}

func (s *OrderService) finalize(ctx context.Context, order *models.Order, details models.JSON) (*models.Order, bool, error) {
	switch order.PaymentStatus {
	case constants.PaymentStatusCompleted, constants.PaymentStatusRefunded:
		return order, false, nil
	}
	if err := s.ApplyStatus(order, constants.PaymentStatusCompleted, ""); err != nil {
		return nil, false, err
	}
	order.DeliveryStatus = constants.DeliveryStatusPending
	order.PaymentDetails = mergeJSON(order.PaymentDetails, details)
	if err := s.save(ctx, order); err != nil {
		return nil, false, err
	}
	logger.Infow("order_paid",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"invoice_id", order.InvoiceID,
		"total", order.Total.String(),
	)
	s.effects.Publish(ctx, constants.EventOrderPaid, order)
	s.effects.SendMail(ctx, constants.MailKindOrderConfirmation, order, nil, "")
	return order, true, nil
}

// MarkFailed 将未完成订单标记为支付失败
func (s *OrderService) MarkFailed(ctx context.Context, order *models.Order, reason string) error {
	if err := s.ApplyStatus(order, constants.PaymentStatusFailed, ""); err != nil {
		return err
	}
	order.PaymentDetails = mergeJSON(order.PaymentDetails, models.JSON{"failure_reason": reason})
	if err := s.save(ctx, order); err != nil {
		return err
	}
	s.effects.Publish(ctx, constants.EventOrderUpdated, order)
	return nil
}

// ListQuery 管理端订单查询
type ListQuery struct {
	Tab      string
	Page     int
	PageSize int
	Email    string
}

// List 分页查询订单，每次最多 500 条，按创建时间倒序
func (s *OrderService) List(ctx context.Context, query ListQuery) ([]models.Order, int64, error) {
	paymentStatuses, deliveryStatus, ok := OrderTabStatuses(query.Tab)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown tab %q", ErrBadRequest, query.Tab)
	}
	pageSize := query.PageSize
	if pageSize <= 0 || pageSize > constants.DefaultAdminListSize {
		pageSize = constants.DefaultAdminListSize
	}
	orders, total, err := s.orderRepo.List(ctx, repository.OrderListFilter{
		Page:            query.Page,
		PageSize:        pageSize,
		PaymentStatuses: paymentStatuses,
		DeliveryStatus:  deliveryStatus,
		CustomerEmail:   query.Email,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	return orders, total, nil
}

// TabCounts 各分组订单数
func (s *OrderService) TabCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, 4)
	for _, tab := range []string{constants.OrderTabAll, constants.OrderTabAbandoned, constants.OrderTabPending, constants.OrderTabDelivered} {
		paymentStatuses, deliveryStatus, _ := OrderTabStatuses(tab)
		_, total, err := s.orderRepo.List(ctx, repository.OrderListFilter{
			Page:            1,
			PageSize:        1,
			PaymentStatuses: paymentStatuses,
			DeliveryStatus:  deliveryStatus,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
		}
		counts[tab] = total
	}
	return counts, nil
}

func mergeJSON(base, extra models.JSON) models.JSON {
	out := models.JSON{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func isOrderNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}
