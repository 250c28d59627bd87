package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/metrics"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/payment/paypal"

	"github.com/shopspring/decimal"
)

// InvoiceGateway PayPal 发票能力
type InvoiceGateway interface {
	CreateAndSendInvoice(ctx context.Context, input paypal.InvoiceInput) (*paypal.Invoice, error)
	GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error)
	VerifyWebhookSignature(ctx context.Context, headers http.Header, event map[string]interface{}) error
}

// CreateInvoiceInput 创建发票请求
type CreateInvoiceInput struct {
	Amount       string
	OrderRef     string
	Email        string
	CustomerName string
	Currency     string
	Items        models.OrderLines
}

// InvoiceResult 发票创建结果
type InvoiceResult struct {
	URL   string `json:"url"`
	ID    string `json:"id"`
	Total string `json:"total"`
}

// InvoiceService 发票网关服务
type InvoiceService struct {
	gateway  InvoiceGateway
	orderSvc *OrderService
	metrics  *metrics.Metrics
	currency string
	shopName string
}

// NewInvoiceService 创建发票服务，gateway 为空表示未配置 PayPal
func NewInvoiceService(gateway InvoiceGateway, orderSvc *OrderService, m *metrics.Metrics, currency, shopName string) *InvoiceService {
	return &InvoiceService{
		gateway:  gateway,
		orderSvc: orderSvc,
		metrics:  m,
		currency: strings.ToUpper(strings.TrimSpace(currency)),
		shopName: shopName,
	}
}

// CreateInvoice 校验必填字段后创建并发送发票
func (s *InvoiceService) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*InvoiceResult, error) {
	input.Amount = strings.TrimSpace(input.Amount)
	input.OrderRef = strings.TrimSpace(input.OrderRef)
	input.Email = strings.TrimSpace(input.Email)

	var missing []string
	if input.Amount == "" {
		missing = append(missing, "amount")
	}
	if input.OrderRef == "" {
		missing = append(missing, "orderRef")
	}
	if input.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return nil, &MissingFieldsError{Fields: missing}
	}
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceAmountInvalid, input.Amount)
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return nil, ErrOrderEmailInvalid
	}
	if s.gateway == nil {
		return nil, ErrPaymentGatewayInvalid
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}
	invoiceInput := paypal.InvoiceInput{
		OrderRef:     input.OrderRef,
		Email:        input.Email,
		CustomerName: input.CustomerName,
		Amount:       amount,
		Currency:     currency,
		Note:         s.invoiceNote(input.OrderRef),
		Items:        invoiceItems(input.Items, amount),
	}
	invoice, err := s.gateway.CreateAndSendInvoice(ctx, invoiceInput)
	if err != nil {
		s.metrics.InvoiceError("create")
		logger.Errorw("invoice_create_failed", "order_ref", input.OrderRef, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvoiceFailed, err)
	}
	s.metrics.InvoiceCreated()
	logger.Infow("invoice_created",
		"order_ref", input.OrderRef,
		"invoice_id", invoice.ID,
		"total", invoice.Total,
		"currency", invoice.Currency,
	)
	return &InvoiceResult{URL: invoice.URL, ID: invoice.ID, Total: invoice.Total}, nil
}

// CreateForOrder 为订单创建发票
func (s *InvoiceService) CreateForOrder(ctx context.Context, order *models.Order) (*InvoiceResult, error) {
	return s.CreateInvoice(ctx, CreateInvoiceInput{
		Amount:       order.Total.String(),
		OrderRef:     order.OrderNumber,
		Email:        order.CustomerEmail,
		CustomerName: order.CustomerName,
		Currency:     order.Currency,
		Items:        order.Items,
	})
}

// GetInvoiceStatus 查询归一化后的发票状态
func (s *InvoiceService) GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return "", &MissingFieldsError{Fields: []string{"id"}}
	}
	if s.gateway == nil {
		return "", ErrPaymentGatewayInvalid
	}
	status, err := s.gateway.GetInvoiceStatus(ctx, invoiceID)
	if err != nil {
		s.metrics.InvoiceError("status")
		if errors.Is(err, paypal.ErrInvoiceNotFound) {
			return "", fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return "", fmt.Errorf("%w: %w", ErrInvoiceStatusFailed, err)
	}
	return status, nil
}

// WebhookResult Webhook 处理结果
type WebhookResult struct {
	EventType string `json:"event_type"`
	InvoiceID string `json:"invoice_id"`
	OrderID   string `json:"order_id,omitempty"`
	Handled   bool   `json:"handled"`
}

// HandleWebhook 校验签名并处理发票事件
func (s *InvoiceService) HandleWebhook(ctx context.Context, headers http.Header, body []byte) (*WebhookResult, error) {
	if s.gateway == nil {
		return nil, ErrPaymentGatewayInvalid
	}
	event, err := paypal.ParseWebhookEvent(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookInvalid, err)
	}
	if err := s.gateway.VerifyWebhookSignature(ctx, headers, event.Raw); err != nil {
		logger.Warnw("paypal_webhook_verify_failed", "event_id", event.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrWebhookInvalid, err)
	}
	result := &WebhookResult{EventType: event.EventType, InvoiceID: event.InvoiceID()}
	if result.InvoiceID == "" || s.orderSvc == nil {
		return result, nil
	}

	switch event.EventType {
	case paypal.EventInvoicePaid:
		details := models.JSON{
			"source":         "webhook",
			"event_id":       event.ID,
			"invoice_id":     result.InvoiceID,
			"invoice_status": constants.PaypalInvoiceStatusPaid,
		}
		if paidAt := event.PaidAt(); paidAt != nil {
			details["paid_at"] = paidAt.UTC().Format(time.RFC3339)
		}
		order, _, err := s.orderSvc.FinalizeByInvoice(ctx, result.InvoiceID, details)
		if err != nil {
			if isOrderNotFound(err) {
				logger.Warnw("paypal_webhook_order_missing", "invoice_id", result.InvoiceID)
				return result, nil
			}
			return nil, err
		}
		result.OrderID, result.Handled = order.ID, true
	case paypal.EventInvoiceCancelled:
		order, err := s.orderSvc.orderRepo.GetByInvoiceID(ctx, result.InvoiceID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOrderFetchFailed, err)
		}
		if order != nil && isOpenPaymentStatus(order.PaymentStatus) {
			if err := s.orderSvc.MarkFailed(ctx, order, "invoice cancelled"); err != nil {
				return nil, err
			}
			result.OrderID, result.Handled = order.ID, true
		}
	}
	logger.Infow("paypal_webhook_processed",
		"event_id", event.ID,
		"event_type", event.EventType,
		"invoice_id", result.InvoiceID,
		"handled", result.Handled,
	)
	return result, nil
}

func (s *InvoiceService) invoiceNote(orderRef string) string {
	if s.shopName == "" {
		return "Order " + orderRef
	}
	return s.shopName + " order " + orderRef
}

// invoiceItems 商品行合计与金额一致时逐行开票，否则合并为单行
func invoiceItems(lines models.OrderLines, amount decimal.Decimal) []paypal.InvoiceItem {
	if len(lines) == 0 {
		return nil
	}
	subtotal, _ := Summarize(lines)
	if !subtotal.Equal(amount.Round(2)) {
		return nil
	}
	items := make([]paypal.InvoiceItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, paypal.InvoiceItem{
			Name:       lineLabel(line),
			Quantity:   line.Quantity,
			UnitAmount: line.Price.Decimal,
		})
	}
	return items
}
