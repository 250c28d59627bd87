package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"
)

// Product 商品（对应 store_products 集合）
type Product struct {
	ID            string          `gorm:"primaryKey;type:varchar(32)" json:"id"`                       // 记录 ID
	Name          string          `gorm:"type:varchar(255);not null" json:"name"`                      // 名称
	Slug          string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`          // 唯一标识
	Description   string          `gorm:"type:text" json:"description"`                                // 描述
	Price         Money           `gorm:"type:decimal(20,2);not null;default:0" json:"price"`          // 售价
	OriginalPrice Money           `gorm:"type:decimal(20,2);not null;default:0" json:"original_price"` // 原价
	Currency      string          `gorm:"type:varchar(8)" json:"currency"`                             // 币种
	Variants      ProductVariants `gorm:"type:json" json:"variants"`                                   // 规格
	Active        bool            `gorm:"index" json:"active"`                                         // 是否上架
	SortOrder     int             `gorm:"default:0;index" json:"sort_order"`                           // 排序权重
	CreatedAt     time.Time       `gorm:"index" json:"created"`                                        // 创建时间
	UpdatedAt     time.Time       `json:"updated"`                                                     // 更新时间
}

// TableName 指定表名
func (Product) TableName() string {
	return "store_products"
}

// PriceFor 返回指定规格的售价，规格未定价时回退到商品售价
func (p Product) PriceFor(variant string) (Money, bool) {
	variant = strings.TrimSpace(variant)
	if variant == "" {
		return p.Price, true
	}
	for _, v := range p.Variants {
		if strings.EqualFold(v.Name, variant) {
			if v.Price.IsPositive() {
				return v.Price, true
			}
			return p.Price, true
		}
	}
	return Money{}, false
}

// ProductVariant 商品规格
type ProductVariant struct {
	Name  string `json:"name"`
	Price Money  `json:"price"`
}

// ProductVariants 规格列表
type ProductVariants []ProductVariant

// Value 实现 driver.Valuer 接口
func (v ProductVariants) Value() (driver.Value, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]ProductVariant(v))
	return string(b), err
}

// Scan 实现 sql.Scanner 接口
func (v *ProductVariants) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil || len(raw) == 0 {
		*v = ProductVariants{}
		return err
	}
	return json.Unmarshal(raw, (*[]ProductVariant)(v))
}

// UnmarshalJSON 同时接受数组与字符串化数组
func (v *ProductVariants) UnmarshalJSON(b []byte) error {
	raw, err := unwrapJSONString(b)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		*v = ProductVariants{}
		return nil
	}
	var out []ProductVariant
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*v = out
	return nil
}
