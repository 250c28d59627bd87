package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/pocketbase"
)

type pbProductRecord struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Slug          string                 `json:"slug"`
	Description   string                 `json:"description"`
	Price         models.Money           `json:"price"`
	OriginalPrice models.Money           `json:"original_price"`
	Currency      string                 `json:"currency"`
	Variants      models.ProductVariants `json:"variants"`
	Active        bool                   `json:"active"`
	SortOrder     int                    `json:"sort_order"`
	Created       string                 `json:"created"`
	Updated       string                 `json:"updated"`
}

func (r pbProductRecord) toModel() *models.Product {
	return &models.Product{
		ID:            r.ID,
		Name:          r.Name,
		Slug:          r.Slug,
		Description:   r.Description,
		Price:         r.Price,
		OriginalPrice: r.OriginalPrice,
		Currency:      r.Currency,
		Variants:      r.Variants,
		Active:        r.Active,
		SortOrder:     r.SortOrder,
		CreatedAt:     timeOrZero(parsePBTime(r.Created)),
		UpdatedAt:     timeOrZero(parsePBTime(r.Updated)),
	}
}

func productPayload(p *models.Product) map[string]interface{} {
	variants := p.Variants
	if variants == nil {
		variants = models.ProductVariants{}
	}
	return map[string]interface{}{
		"name":           p.Name,
		"slug":           p.Slug,
		"description":    p.Description,
		"price":          p.Price.InexactFloat64(),
		"original_price": p.OriginalPrice.InexactFloat64(),
		"currency":       p.Currency,
		"variants":       variants,
		"active":         p.Active,
		"sort_order":     p.SortOrder,
	}
}

// PBProductRepository PocketBase 商品仓库
type PBProductRepository struct {
	client     recordClient
	collection string
}

// Create 创建商品
func (r *PBProductRepository) Create(ctx context.Context, product *models.Product) error {
	var created pbProductRecord
	if err := r.client.Create(ctx, r.collection, productPayload(product), &created); err != nil {
		return fmt.Errorf("create product record: %w", err)
	}
	saved := created.toModel()
	product.ID, product.CreatedAt, product.UpdatedAt = saved.ID, saved.CreatedAt, saved.UpdatedAt
	return nil
}

// GetByID 根据 ID 获取商品
func (r *PBProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var record pbProductRecord
	if err := r.client.Get(ctx, r.collection, id, &record); err != nil {
		return nil, ignoreNotFound(err)
	}
	return record.toModel(), nil
}

// GetBySlug 根据 slug 获取商品
func (r *PBProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var record pbProductRecord
	if err := r.client.First(ctx, r.collection, "slug = "+pocketbase.Quote(slug), "", &record); err != nil {
		return nil, ignoreNotFound(err)
	}
	return record.toModel(), nil
}

// Update 更新商品
func (r *PBProductRepository) Update(ctx context.Context, product *models.Product) error {
	var updated pbProductRecord
	if err := r.client.Update(ctx, r.collection, product.ID, productPayload(product), &updated); err != nil {
		return fmt.Errorf("update product record: %w", err)
	}
	product.UpdatedAt = updated.toModel().UpdatedAt
	return nil
}

// Delete 删除商品
func (r *PBProductRepository) Delete(ctx context.Context, id string) error {
	return ignoreNotFound(r.client.Delete(ctx, r.collection, id))
}

// List 商品列表
func (r *PBProductRepository) List(ctx context.Context, filter ProductListFilter) ([]models.Product, int64, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	var parts []string
	if filter.OnlyActive {
		parts = append(parts, "active = true")
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q := pocketbase.Quote(search)
		parts = append(parts, "name ~ "+q+" || slug ~ "+q)
	}
	result, err := r.client.List(ctx, r.collection, pocketbase.ListParams{
		Page: page, PerPage: pageSize, Sort: "-sort_order,-created", Filter: joinFilters(parts...),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list product records: %w", err)
	}
	var records []pbProductRecord
	if err := result.DecodeItems(&records); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", pocketbase.ErrResponseInvalid, err)
	}
	products := make([]models.Product, 0, len(records))
	for _, rec := range records {
		products = append(products, *rec.toModel())
	}
	return products, int64(result.TotalItems), nil
}

type pbUserRecord struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Created string `json:"created"`
	Updated string `json:"updated"`
}

func (r pbUserRecord) toModel() *models.StoreUser {
	return &models.StoreUser{
		ID:        r.ID,
		Email:     r.Email,
		Name:      r.Name,
		Role:      r.Role,
		CreatedAt: timeOrZero(parsePBTime(r.Created)),
		UpdatedAt: timeOrZero(parsePBTime(r.Updated)),
	}
}

// PBUserRepository PocketBase 用户仓库
type PBUserRepository struct {
	client     recordClient
	collection string
}

// GetByID 根据 ID 获取用户
func (r *PBUserRepository) GetByID(ctx context.Context, id string) (*models.StoreUser, error) {
	var record pbUserRecord
	if err := r.client.Get(ctx, r.collection, id, &record); err != nil {
		return nil, ignoreNotFound(err)
	}
	return record.toModel(), nil
}

// Delete 删除用户
func (r *PBUserRepository) Delete(ctx context.Context, id string) error {
	return ignoreNotFound(r.client.Delete(ctx, r.collection, id))
}

// List 用户列表
func (r *PBUserRepository) List(ctx context.Context, filter UserListFilter) ([]models.StoreUser, int64, error) {
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	var parts []string
	if role := strings.TrimSpace(filter.Role); role != "" {
		parts = append(parts, "role = "+pocketbase.Quote(role))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		q := pocketbase.Quote(search)
		parts = append(parts, "email ~ "+q+" || name ~ "+q)
	}
	result, err := r.client.List(ctx, r.collection, pocketbase.ListParams{
		Page: page, PerPage: pageSize, Sort: "-created", Filter: joinFilters(parts...),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list user records: %w", err)
	}
	var records []pbUserRecord
	if err := result.DecodeItems(&records); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", pocketbase.ErrResponseInvalid, err)
	}
	users := make([]models.StoreUser, 0, len(records))
	for _, rec := range records {
		users = append(users, *rec.toModel())
	}
	return users, int64(result.TotalItems), nil
}

type pbSettingRecord struct {
	ID    string      `json:"id"`
	Key   string      `json:"key"`
	Value models.JSON `json:"value"`
}

func (r pbSettingRecord) toModel() *models.StoreSetting {
	return &models.StoreSetting{ID: r.ID, Key: r.Key, Value: r.Value}
}

// PBSettingRepository PocketBase 店铺配置仓库
type PBSettingRepository struct {
	client     recordClient
	collection string
}

// Get 读取配置
func (r *PBSettingRepository) Get(ctx context.Context, key string) (*models.StoreSetting, error) {
	var record pbSettingRecord
	if err := r.client.First(ctx, r.collection, "key = "+pocketbase.Quote(key), "", &record); err != nil {
		return nil, ignoreNotFound(err)
	}
	return record.toModel(), nil
}

// Upsert 写入配置
func (r *PBSettingRepository) Upsert(ctx context.Context, key string, value models.JSON) (*models.StoreSetting, error) {
	existing, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{"key": key, "value": value}
	var saved pbSettingRecord
	if existing == nil {
		err = r.client.Create(ctx, r.collection, body, &saved)
	} else {
		err = r.client.Update(ctx, r.collection, existing.ID, body, &saved)
	}
	if err != nil {
		return nil, fmt.Errorf("save config record: %w", err)
	}
	return saved.toModel(), nil
}

// List 全部配置
func (r *PBSettingRepository) List(ctx context.Context) ([]models.StoreSetting, error) {
	result, err := r.client.List(ctx, r.collection, pocketbase.ListParams{Page: 1, PerPage: pocketbase.MaxPerPage, Sort: "key"})
	if err != nil {
		return nil, fmt.Errorf("list config records: %w", err)
	}
	var records []pbSettingRecord
	if err := result.DecodeItems(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", pocketbase.ErrResponseInvalid, err)
	}
	settings := make([]models.StoreSetting, 0, len(records))
	for _, rec := range records {
		settings = append(settings, *rec.toModel())
	}
	return settings, nil
}
