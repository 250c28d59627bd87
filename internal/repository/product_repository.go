package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/licenseshop/internal/models"

	"gorm.io/gorm"
)

// GormProductRepository GORM 实现
type GormProductRepository struct {
	db *gorm.DB
}

// NewProductRepository 创建商品仓库
func NewProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Create 创建商品
func (r *GormProductRepository) Create(ctx context.Context, product *models.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		product.ID = models.NewRecordID()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

// GetByID 根据 ID 获取商品
func (r *GormProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// GetBySlug 根据 slug 获取商品
func (r *GormProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	return r.first(r.db.WithContext(ctx).Where("slug = ?", slug))
}

// Update 更新商品
func (r *GormProductRepository) Update(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// Delete 删除商品
func (r *GormProductRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{}).Error
}

// List 商品列表
func (r *GormProductRepository) List(ctx context.Context, filter ProductListFilter) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.OnlyActive {
		query = query.Where("active = ?", true)
	}
	query = whereSearch(query, filter.Search, "name", "slug")
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var products []models.Product
	if err := applyPagination(query.Order("sort_order DESC, created_at DESC"), filter.Page, filter.PageSize).Find(&products).Error; err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *GormProductRepository) first(query *gorm.DB) (*models.Product, error) {
	var product models.Product
	if err := query.First(&product).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}
