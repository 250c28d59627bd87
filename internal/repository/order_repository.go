package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"

	"gorm.io/gorm"
)

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create 创建订单
func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		order.ID = models.NewRecordID()
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID 根据 ID 获取订单
func (r *GormOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// GetByInvoiceID 根据 PayPal 发票号获取订单
func (r *GormOrderRepository) GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Order, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, nil
	}
	return r.first(r.db.WithContext(ctx).Where("invoice_id = ?", invoiceID).Order("created_at DESC"))
}

// FindOpenByCartRef 查找购物车对应的未支付订单
func (r *GormOrderRepository) FindOpenByCartRef(ctx context.Context, cartRef string) (*models.Order, error) {
	if strings.TrimSpace(cartRef) == "" {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("cart_ref = ?", cartRef).
		Where("payment_status IN ?", []string{constants.PaymentStatusAbandoned, constants.PaymentStatusPending}).
		Order("created_at DESC")
	return r.first(query)
}

// Update 全量保存订单
func (r *GormOrderRepository) Update(ctx context.Context, order *models.Order) error {
	result := r.db.WithContext(ctx).Save(order)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// List 分页查询订单，按创建时间倒序
func (r *GormOrderRepository) List(ctx context.Context, filter OrderListFilter) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if len(filter.PaymentStatuses) > 0 {
		query = query.Where("payment_status IN ?", filter.PaymentStatuses)
	}
	if filter.DeliveryStatus != "" {
		query = query.Where("delivery_status = ?", filter.DeliveryStatus)
	}
	if email := strings.TrimSpace(filter.CustomerEmail); email != "" {
		query = query.Where("LOWER(customer_email) = ?", strings.ToLower(email))
	}
	if filter.OnlyWithInvoice {
		query = query.Where("invoice_id <> ''")
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	if err := applyPagination(query.Order("created_at DESC"), filter.Page, filter.PageSize).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *GormOrderRepository) first(query *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}
