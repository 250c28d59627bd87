package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/repository"
)

// CheckoutService 结账流程：弃单保存、发起支付
type CheckoutService struct {
	orderRepo repository.OrderRepository
	orderSvc  *OrderService
	cart      *CartService
	invoices  *InvoiceService
	poller    *Poller
	effects   *OrderEffects
	currency  string
	now       func() time.Time
}

// NewCheckoutService 创建结账服务
func NewCheckoutService(orderRepo repository.OrderRepository, orderSvc *OrderService, cart *CartService, invoices *InvoiceService, poller *Poller, effects *OrderEffects, currency string) *CheckoutService {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}
	return &CheckoutService{
		orderRepo: orderRepo,
		orderSvc:  orderSvc,
		cart:      cart,
		invoices:  invoices,
		poller:    poller,
		effects:   effects,
		currency:  currency,
		now:       time.Now,
	}
}

// SaveOrderInput 客户可编辑的订单字段
type SaveOrderInput struct {
	CustomerEmail string
	CustomerName  string
	Items         models.OrderLines
	Info          models.JSON
}

// PaymentStart 发起支付的结果
type PaymentStart struct {
	URL   string       `json:"url"`
	ID    string       `json:"id"`
	Total string       `json:"total"`
	Poll  *PollOutcome `json:"poll"`
}

// SaveAbandonedOrder 保存弃单；同一结账会话已有未完成订单时更新该订单
func (s *CheckoutService) SaveAbandonedOrder(ctx context.Context, session *CheckoutSession, input SaveOrderInput) (*models.Order, bool, error) {
	if session == nil || session.CartRef == "" {
		return nil, false, ErrSessionRequired
	}
	existing, err := s.orderRepo.FindOpenByCartRef(ctx, session.CartRef)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
	}
	if existing != nil {
		order, err := s.overwrite(ctx, existing, input)
		return order, false, err
	}

	order := &models.Order{
		OrderNumber:        generateOrderNo(s.now()),
		CustomerDeviceHash: session.DeviceHash,
		CartRef:            session.CartRef,
		Currency:           s.currency,
		PaymentStatus:      constants.PaymentStatusAbandoned,
		DeliveryStatus:     constants.DeliveryStatusPending,
	}
	if err := s.applyInput(ctx, order, input); err != nil {
		return nil, false, err
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrOrderCreateFailed, err)
	}
	logger.Infow("order_abandoned_created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"cart_ref", order.CartRef,
		"total", order.Total.String(),
	)
	s.effects.Publish(ctx, constants.EventOrderCreated, order)
	return order, true, nil
}

// UpdateOrder 整体覆盖客户可编辑字段，状态类字段不受影响
func (s *CheckoutService) UpdateOrder(ctx context.Context, session *CheckoutSession, id string, input SaveOrderInput) (*models.Order, error) {
	order, err := s.GetOrder(ctx, session, id)
	if err != nil {
		return nil, err
	}
	return s.overwrite(ctx, order, input)
}

// GetOrder 读取属于当前结账会话的订单
func (s *CheckoutService) GetOrder(ctx context.Context, session *CheckoutSession, id string) (*models.Order, error) {
	if session == nil || session.CartRef == "" {
		return nil, ErrSessionRequired
	}
	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.CartRef != session.CartRef {
		return nil, ErrOrderForbidden
	}
	return order, nil
}

func (s *CheckoutService) overwrite(ctx context.Context, order *models.Order, input SaveOrderInput) (*models.Order, error) {
	if !isOpenPaymentStatus(order.PaymentStatus) {
		return nil, ErrOrderStatusInvalid
	}
	previousTotal := order.Total
	if err := s.applyInput(ctx, order, input); err != nil {
		return nil, err
	}
	// 金额变化后原发票失效，订单回到弃单状态
	staleInvoice := ""
	if order.InvoiceID != "" && !previousTotal.Equal(order.Total.Decimal) {
		if err := s.orderSvc.ApplyStatus(order, constants.PaymentStatusAbandoned, ""); err != nil {
			return nil, err
		}
		logger.Infow("order_invoice_invalidated", "order_id", order.ID, "invoice_id", order.InvoiceID)
		staleInvoice = order.InvoiceID
		order.InvoiceID = ""
		order.PaymentDetails = nil
	}
	if err := s.orderSvc.save(ctx, order); err != nil {
		return nil, err
	}
	if staleInvoice != "" {
		if err := s.poller.Supersede(ctx, order.ID, staleInvoice); err != nil {
			logger.Warnw("order_poll_supersede_failed", "order_id", order.ID, "invoice_id", staleInvoice, "error", err)
		}
	}
	s.effects.Publish(ctx, constants.EventOrderUpdated, order)
	return order, nil
}

func (s *CheckoutService) applyInput(ctx context.Context, order *models.Order, input SaveOrderInput) error {
	email := strings.ToLower(strings.TrimSpace(input.CustomerEmail))
	if email == "" {
		return &MissingFieldsError{Fields: []string{"customer_email"}}
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrOrderEmailInvalid
	}
	summary, err := s.cart.Summarize(ctx, input.Items)
	if err != nil {
		return err
	}
	order.CustomerEmail = email
	order.CustomerName = strings.TrimSpace(input.CustomerName)
	order.Items = summary.Items
	order.Info = input.Info
	order.Subtotal = summary.Subtotal
	order.Total = summary.Total
	if summary.Currency != "" {
		order.Currency = summary.Currency
	}
	return nil
}

// StartPayment 创建发票、将订单置为 pending 并开始轮询
func (s *CheckoutService) StartPayment(ctx context.Context, session *CheckoutSession, id string) (*PaymentStart, error) {
	order, err := s.GetOrder(ctx, session, id)
	if err != nil {
		return nil, err
	}
	if !isOpenPaymentStatus(order.PaymentStatus) && order.PaymentStatus != constants.PaymentStatusFailed {
		return nil, ErrOrderStatusInvalid
	}
	if len(order.Items) == 0 {
		return nil, ErrOrderItemsEmpty
	}

	// 已有同金额发票时复用，避免重复开票
	if order.PaymentStatus == constants.PaymentStatusPending && order.InvoiceID != "" {
		if url, _ := order.PaymentDetails["invoice_url"].(string); url != "" {
			poll, err := s.poller.Start(ctx, order.ID, order.InvoiceID)
			if err != nil {
				return nil, err
			}
			return &PaymentStart{URL: url, ID: order.InvoiceID, Total: order.Total.String(), Poll: poll}, nil
		}
	}

	invoice, err := s.invoices.CreateForOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if err := s.orderSvc.ApplyStatus(order, constants.PaymentStatusPending, ""); err != nil {
		return nil, err
	}
	order.InvoiceID = invoice.ID
	order.PaymentDetails = models.JSON{
		"invoice_id":  invoice.ID,
		"invoice_url": invoice.URL,
		"requested":   s.now().UTC().Format(time.RFC3339),
	}
	if err := s.orderSvc.save(ctx, order); err != nil {
		// 发票已发出但订单未更新，需要人工对账
		logger.Errorw("order_invoice_link_failed", "order_id", order.ID, "invoice_id", invoice.ID, "error", err)
		return nil, err
	}
	s.effects.Publish(ctx, constants.EventOrderUpdated, order)

	poll, err := s.poller.Start(ctx, order.ID, invoice.ID)
	if err != nil {
		return nil, err
	}
	return &PaymentStart{URL: invoice.URL, ID: invoice.ID, Total: invoice.Total, Poll: poll}, nil
}

// FinalizePaid 标记订单已支付（幂等）
func (s *CheckoutService) FinalizePaid(ctx context.Context, orderID string, details models.JSON) (*models.Order, error) {
	order, _, err := s.orderSvc.FinalizePaid(ctx, orderID, details)
	return order, err
}

// PollStatus 读取当前会话订单的轮询状态
func (s *CheckoutService) PollStatus(ctx context.Context, session *CheckoutSession, id string) (*PollOutcome, error) {
	order, err := s.GetOrder(ctx, session, id)
	if err != nil {
		return nil, err
	}
	outcome, err := s.poller.Status(ctx, order.ID)
	if err == nil {
		return outcome, nil
	}
	if err != ErrPollNotFound {
		return nil, err
	}
	// 会话已过期但订单仍待支付时重新开始轮询
	if order.PaymentStatus == constants.PaymentStatusPending && order.InvoiceID != "" {
		return s.poller.Start(ctx, order.ID, order.InvoiceID)
	}
	if order.PaymentStatus == constants.PaymentStatusCompleted {
		return &PollOutcome{
			Status:    constants.PollStatePaid,
			OrderID:   order.ID,
			InvoiceID: order.InvoiceID,
			ClearCart: true,
			Redirect:  s.poller.opts.ThankYouPath,
		}, nil
	}
	return nil, ErrPollNotFound
}

// generateOrderNo LS + 时间戳 + 6 位随机数
func generateOrderNo(now time.Time) string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		n = big.NewInt(now.UnixNano() % 1000000)
	}
	return fmt.Sprintf("LS%s%06d", now.Format("20060102150405"), n.Int64())
}
