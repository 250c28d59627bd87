package repository

import (
	"context"

	"github.com/licenseshop/internal/models"
)

// OrderRepository 订单数据访问接口，记录不存在时返回 (nil, nil)
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*models.Order, error)
	FindOpenByCartRef(ctx context.Context, cartRef string) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	List(ctx context.Context, filter OrderListFilter) ([]models.Order, int64, error)
}

// ProductRepository 商品数据访问接口
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ProductListFilter) ([]models.Product, int64, error)
}

// UserRepository 店铺用户数据访问接口
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.StoreUser, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserListFilter) ([]models.StoreUser, int64, error)
}

// SettingRepository 店铺配置数据访问接口
type SettingRepository interface {
	Get(ctx context.Context, key string) (*models.StoreSetting, error)
	Upsert(ctx context.Context, key string, value models.JSON) (*models.StoreSetting, error)
	List(ctx context.Context) ([]models.StoreSetting, error)
}

// Store 一组存储后端仓库
type Store struct {
	Orders   OrderRepository
	Products ProductRepository
	Users    UserRepository
	Settings SettingRepository
}
