package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/pocketbase"
)

// pbOrderRecord store_orders 记录的线上格式
type pbOrderRecord struct {
	ID                     string                  `json:"id"`
	OrderNumber            string                  `json:"order_number"`
	CustomerEmail          string                  `json:"customer_email"`
	CustomerName           string                  `json:"customer_name"`
	CustomerDeviceHash     string                  `json:"customer_device_hash"`
	CartRef                string                  `json:"cart_ref"`
	Items                  models.OrderLines       `json:"items"`
	Info                   models.JSON             `json:"info"`
	Subtotal               models.Money            `json:"subtotal"`
	Total                  models.Money            `json:"total"`
	Currency               string                  `json:"currency"`
	PaymentStatus          string                  `json:"payment_status"`
	DeliveryStatus         string                  `json:"delivery_status"`
	DeliveryMessages       models.DeliveryMessages `json:"delivery_messages"`
	InvoiceID              string                  `json:"invoice_id"`
	PaymentDetails         models.JSON             `json:"payment_details"`
	AbandonedCartProcessed bool                    `json:"abandoned_cart_processed"`
	RefundedAt             string                  `json:"refunded_at"`
	PaidAt                 string                  `json:"paid_at"`
	Created                string                  `json:"created"`
	Updated                string                  `json:"updated"`
}

func (r pbOrderRecord) toModel() *models.Order {
	return &models.Order{
		ID:                     r.ID,
		OrderNumber:            r.OrderNumber,
		CustomerEmail:          r.CustomerEmail,
		CustomerName:           r.CustomerName,
		CustomerDeviceHash:     r.CustomerDeviceHash,
		CartRef:                r.CartRef,
		Items:                  r.Items,
		Info:                   r.Info,
		Subtotal:               r.Subtotal,
		Total:                  r.Total,
		Currency:               r.Currency,
		PaymentStatus:          r.PaymentStatus,
		DeliveryStatus:         r.DeliveryStatus,
		DeliveryMessages:       r.DeliveryMessages,
		InvoiceID:              r.InvoiceID,
		PaymentDetails:         r.PaymentDetails,
		AbandonedCartProcessed: r.AbandonedCartProcessed,
		RefundedAt:             parsePBTime(r.RefundedAt),
		PaidAt:                 parsePBTime(r.PaidAt),
		CreatedAt:              timeOrZero(parsePBTime(r.Created)),
		UpdatedAt:              timeOrZero(parsePBTime(r.Updated)),
	}
}

// orderPayload 写入 PocketBase 的记录体，items 与 info 以 JSON 字符串保存
func orderPayload(o *models.Order) map[string]interface{} {
	messages := o.DeliveryMessages
	if messages == nil {
		messages = models.DeliveryMessages{}
	}
	payload := map[string]interface{}{
		"order_number":             o.OrderNumber,
		"customer_email":           o.CustomerEmail,
		"customer_name":            o.CustomerName,
		"customer_device_hash":     o.CustomerDeviceHash,
		"cart_ref":                 o.CartRef,
		"items":                    o.Items.Stringify(),
		"info":                     stringifyJSON(o.Info),
		"subtotal":                 o.Subtotal.InexactFloat64(),
		"total":                    o.Total.InexactFloat64(),
		"currency":                 o.Currency,
		"payment_status":           o.PaymentStatus,
		"delivery_status":          o.DeliveryStatus,
		"delivery_messages":        messages,
		"invoice_id":               o.InvoiceID,
		"abandoned_cart_processed": o.AbandonedCartProcessed,
		"refunded_at":              formatPBTime(o.RefundedAt),
		"paid_at":                  formatPBTime(o.PaidAt),
		"payment_details":          o.PaymentDetails,
	}
	return payload
}

// PBOrderRepository PocketBase 实现
type PBOrderRepository struct {
	client     recordClient
	collection string
}

// NewPBOrderRepository 创建 PocketBase 订单仓库
func NewPBOrderRepository(client recordClient, collection string) *PBOrderRepository {
	if strings.TrimSpace(collection) == "" {
		collection = constants.CollectionOrders
	}
	return &PBOrderRepository{client: client, collection: collection}
}

// Create 创建订单
func (r *PBOrderRepository) Create(ctx context.Context, order *models.Order) error {
	var created pbOrderRecord
	if err := r.client.Create(ctx, r.collection, orderPayload(order), &created); err != nil {
		return fmt.Errorf("create order record: %w", err)
	}
	saved := created.toModel()
	order.ID = saved.ID
	order.CreatedAt = saved.CreatedAt
	order.UpdatedAt = saved.UpdatedAt
	return nil
}

// GetByID 根据 ID 获取订单
func (r *PBOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var record pbOrderRecord
	if err := r.client.Get(ctx, r.collection, id, &record); err != nil {
		return nil, ignoreNotFound(err)
	}
	return record.toModel(), nil
}

// GetByInvoiceID 根据发票号获取订单
func (r *PBOrderRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Order, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, nil
	}
	return r.first(ctx, "invoice_id = "+pocketbase.Quote(invoiceID))
}

// FindOpenByCartRef 查找购物车对应的未支付订单
func (r *PBOrderRepository) FindOpenByCartRef(ctx context.Context, cartRef string) (*models.Order, error) {
	if strings.TrimSpace(cartRef) == "" {
		return nil, nil
	}
	filter := joinFilters(
		"cart_ref = "+pocketbase.Quote(cartRef),
		anyOf("payment_status", []string{constants.PaymentStatusAbandoned, constants.PaymentStatusPending}),
	)
	return r.first(ctx, filter)
}

// Update 全量覆盖订单字段
func (r *PBOrderRepository) Update(ctx context.Context, order *models.Order) error {
	var updated pbOrderRecord
	if err := r.client.Update(ctx, r.collection, order.ID, orderPayload(order), &updated); err != nil {
		return fmt.Errorf("update order record: %w", err)
	}
	order.UpdatedAt = updated.toModel().UpdatedAt
	return nil
}

// List 分页查询订单，按创建时间倒序
func (r *PBOrderRepository) List(ctx context.Context, filter OrderListFilter) ([]models.Order, int64, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	parts := []string{anyOf("payment_status", filter.PaymentStatuses)}
	if filter.DeliveryStatus != "" {
		parts = append(parts, "delivery_status = "+pocketbase.Quote(filter.DeliveryStatus))
	}
	if email := strings.TrimSpace(filter.CustomerEmail); email != "" {
		parts = append(parts, "customer_email = "+pocketbase.Quote(strings.ToLower(email)))
	}
	if filter.OnlyWithInvoice {
		parts = append(parts, `invoice_id != ""`)
	}
	if filter.CreatedFrom != nil {
		parts = append(parts, "created >= "+pocketbase.Quote(formatPBTime(filter.CreatedFrom)))
	}
	if filter.CreatedTo != nil {
		parts = append(parts, "created <= "+pocketbase.Quote(formatPBTime(filter.CreatedTo)))
	}

	result, err := r.client.List(ctx, r.collection, pocketbase.ListParams{
		Page:    page,
		PerPage: pageSize,
		Sort:    "-created",
		Filter:  joinFilters(parts...),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list order records: %w", err)
	}
	var records []pbOrderRecord
	if err := result.DecodeItems(&records); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", pocketbase.ErrResponseInvalid, err)
	}
	orders := make([]models.Order, 0, len(records))
	for _, rec := range records {
		orders = append(orders, *rec.toModel())
	}
	return orders, int64(result.TotalItems), nil
}

func (r *PBOrderRepository) first(ctx context.Context, filter string) (*models.Order, error) {
	var record pbOrderRecord
	if err := r.client.First(ctx, r.collection, filter, "-created", &record); err != nil {
		return nil, ignoreNotFound(err)
	}
	return record.toModel(), nil
}
