package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/repository"

	"github.com/shopspring/decimal"
)

// CartSummary 购物车汇总
type CartSummary struct {
	Items    models.OrderLines `json:"items"`
	Subtotal models.Money      `json:"subtotal"`
	Total    models.Money      `json:"total"`
	Currency string            `json:"currency"`
}

// CartService 购物车计算服务
type CartService struct {
	productRepo  repository.ProductRepository
	currency     string
	verifyPrices bool
}

// NewCartService 创建购物车服务
func NewCartService(productRepo repository.ProductRepository, currency string, verifyPrices bool) *CartService {
	return &CartService{
		productRepo:  productRepo,
		currency:     strings.ToUpper(strings.TrimSpace(currency)),
		verifyPrices: verifyPrices,
	}
}

// NormalizeCart 合并相同商品与规格的行，并校验数量与价格
func NormalizeCart(items models.OrderLines) (models.OrderLines, error) {
	if len(items) == 0 {
		return nil, ErrOrderItemsEmpty
	}
	merged := make(models.OrderLines, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		item.ID = strings.TrimSpace(item.ID)
		item.Variant = strings.TrimSpace(item.Variant)
		item.Name = strings.TrimSpace(item.Name)
		if item.ID == "" || item.Quantity <= 0 || item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: %s", ErrOrderItemInvalid, item.Key())
		}
		item.Price = models.NewMoneyFromDecimal(item.Price.Decimal)
		if pos, ok := index[item.Key()]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[item.Key()] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// Summarize 计算小计与合计，保留 2 位小数
func Summarize(items models.OrderLines) (subtotal, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}
	subtotal = subtotal.Round(2)
	return subtotal, subtotal
}

// Summarize 归一化购物车并返回汇总
func (s *CartService) Summarize(ctx context.Context, items models.OrderLines) (*CartSummary, error) {
	lines, err := NormalizeCart(items)
	if err != nil {
		return nil, err
	}
	if s.verifyPrices {
		if err := s.verify(ctx, lines); err != nil {
			return nil, err
		}
	}
	subtotal, total := Summarize(lines)
	return &CartSummary{
		Items:    lines,
		Subtotal: models.NewMoneyFromDecimal(subtotal),
		Total:    models.NewMoneyFromDecimal(total),
		Currency: s.currency,
	}, nil
}

// verify 以商品目录价格为准校验购物车
func (s *CartService) verify(ctx context.Context, lines models.OrderLines) error {
	if s.productRepo == nil {
		return nil
	}
	for i := range lines {
		product, err := s.productRepo.GetByID(ctx, lines[i].ID)
		if err != nil {
			return err
		}
		if product == nil || !product.Active {
			return fmt.Errorf("%w: %s", ErrOrderItemInvalid, lines[i].ID)
		}
		price, ok := product.PriceFor(lines[i].Variant)
		if !ok {
			return fmt.Errorf("%w: unknown variant %s", ErrOrderItemInvalid, lines[i].Key())
		}
		if !price.Round(2).Equal(lines[i].Price.Round(2)) {
			return fmt.Errorf("%w: %s", ErrOrderPriceMismatch, lines[i].Key())
		}
		if lines[i].Name == "" {
			lines[i].Name = product.Name
		}
	}
	return nil
}
