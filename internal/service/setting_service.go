package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/repository"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// 可在后台修改的店铺配置字段
var editableStoreFields = map[string]struct{}{
	"shop_name":      {},
	"shop_email":     {},
	"shop_url":       {},
	"currency":       {},
	"thank_you_path": {},
	"announcement":   {},
	"support_url":    {},
}

// SettingService 店铺配置服务
type SettingService struct {
	repo repository.SettingRepository
	shop config.ShopConfig
	mode string
}

// NewSettingService 创建配置服务，shop 为配置文件中的默认值
func NewSettingService(repo repository.SettingRepository, shop config.ShopConfig, paypalMode string) *SettingService {
	return &SettingService{repo: repo, shop: shop, mode: paypalMode}
}

func (s *SettingService) defaults() map[string]interface{} {
	currency := strings.ToUpper(strings.TrimSpace(s.shop.Currency))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}
	return map[string]interface{}{
		"shop_name":      s.shop.Name,
		"shop_email":     s.shop.Email,
		"shop_url":       s.shop.URL,
		"currency":       currency,
		"thank_you_path": s.shop.ThankYouPath,
		"paypal_mode":    s.mode,
	}
}

// GetStoreConfig 店面公开配置（默认值合并存储值）
func (s *SettingService) GetStoreConfig(ctx context.Context) (map[string]interface{}, error) {
	data := s.defaults()
	setting, err := s.repo.Get(ctx, constants.SettingKeyStoreConfig)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return data, nil
	}
	for k, v := range setting.Value {
		if _, ok := editableStoreFields[k]; ok {
			data[k] = v
		}
	}
	return data, nil
}

// UpdateStoreConfig 合并写入店铺配置
func (s *SettingService) UpdateStoreConfig(ctx context.Context, patch map[string]interface{}) (map[string]interface{}, error) {
	current := models.JSON{}
	setting, err := s.repo.Get(ctx, constants.SettingKeyStoreConfig)
	if err != nil {
		return nil, err
	}
	if setting != nil {
		for k, v := range setting.Value {
			current[k] = v
		}
	}
	for k, v := range patch {
		if _, ok := editableStoreFields[k]; !ok {
			return nil, fmt.Errorf("%w: unknown field %q", ErrConfigInvalid, k)
		}
		text, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: field %q must be a string", ErrConfigInvalid, k)
		}
		text = strings.TrimSpace(text)
		switch k {
		case "currency":
			text = strings.ToUpper(text)
			if !currencyPattern.MatchString(text) {
				return nil, fmt.Errorf("%w: currency %q", ErrConfigInvalid, text)
			}
		case "thank_you_path":
			if text != "" && !strings.HasPrefix(text, "/") {
				return nil, fmt.Errorf("%w: thank_you_path must start with /", ErrConfigInvalid)
			}
		}
		current[k] = text
	}
	if _, err := s.repo.Upsert(ctx, constants.SettingKeyStoreConfig, current); err != nil {
		return nil, err
	}
	return s.GetStoreConfig(ctx)
}
