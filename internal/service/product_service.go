package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/repository"

	"github.com/shopspring/decimal"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// ProductService 商品业务服务
type ProductService struct {
	repo     repository.ProductRepository
	currency string
}

// NewProductService 创建商品服务
func NewProductService(repo repository.ProductRepository, currency string) *ProductService {
	return &ProductService{repo: repo, currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// ProductInput 创建/更新商品输入
type ProductInput struct {
	Name          string
	Slug          string
	Description   string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
	Currency      string
	Variants      models.ProductVariants
	Active        *bool
	SortOrder     int
}

// ListPublic 获取上架商品列表
func (s *ProductService) ListPublic(ctx context.Context, search string, page, pageSize int) ([]models.Product, int64, error) {
	return s.repo.List(ctx, repository.ProductListFilter{
		Page:       page,
		PageSize:   pageSize,
		Search:     search,
		OnlyActive: true,
	})
}

// GetPublicBySlug 获取上架商品详情
func (s *ProductService) GetPublicBySlug(ctx context.Context, slug string) (*models.Product, error) {
	product, err := s.repo.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Active {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// ListAdmin 获取后台商品列表
func (s *ProductService) ListAdmin(ctx context.Context, search string, page, pageSize int) ([]models.Product, int64, error) {
	return s.repo.List(ctx, repository.ProductListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   search,
	})
}

// GetAdminByID 获取后台商品详情
func (s *ProductService) GetAdminByID(ctx context.Context, id string) (*models.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}
	return product, nil
}

// Create 创建商品
func (s *ProductService) Create(ctx context.Context, input ProductInput) (*models.Product, error) {
	product := &models.Product{Active: true}
	if err := s.apply(ctx, product, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// Update 更新商品
func (s *ProductService) Update(ctx context.Context, id string, input ProductInput) (*models.Product, error) {
	product, err := s.GetAdminByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, product, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// Delete 删除商品
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if _, err := s.GetAdminByID(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

func (s *ProductService) apply(ctx context.Context, product *models.Product, input ProductInput) error {
	name := strings.TrimSpace(input.Name)
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if slug == "" {
		missing = append(missing, "slug")
	}
	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug %q", ErrProductInvalid, slug)
	}
	price := input.Price.Round(2)
	if price.IsNegative() || input.OriginalPrice.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrProductInvalid)
	}
	for _, variant := range input.Variants {
		if strings.TrimSpace(variant.Name) == "" || variant.Price.IsNegative() {
			return fmt.Errorf("%w: variant %q", ErrProductInvalid, variant.Name)
		}
	}

	existing, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != product.ID {
		return ErrProductSlugExists
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}
	product.Name = name
	product.Slug = slug
	product.Description = strings.TrimSpace(input.Description)
	product.Price = models.NewMoneyFromDecimal(price)
	product.OriginalPrice = models.NewMoneyFromDecimal(input.OriginalPrice)
	product.Currency = currency
	product.Variants = input.Variants
	if input.Active != nil {
		product.Active = *input.Active
	}
	product.SortOrder = input.SortOrder
	return nil
}
