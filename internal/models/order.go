package models

import (
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order 订单（对应 PocketBase store_orders 集合）
type Order struct {
	ID                     string           `gorm:"primaryKey;type:varchar(32)" json:"id"`                  // 记录 ID
	OrderNumber            string           `gorm:"type:varchar(64);index" json:"order_number"`             // 订单编号
	CustomerEmail          string           `gorm:"type:varchar(255);index" json:"customer_email"`          // 客户邮箱
	CustomerName           string           `gorm:"type:varchar(255)" json:"customer_name"`                 // 客户姓名
	CustomerDeviceHash     string           `gorm:"type:varchar(128);index" json:"customer_device_hash"`    // 设备标识
	CartRef                string           `gorm:"type:varchar(128);index" json:"cart_ref"`                // 购物车标识
	Items                  OrderLines       `gorm:"type:json" json:"items"`                                 // 商品行
	Info                   JSON             `gorm:"type:json" json:"info"`                                  // 客户信息
	Subtotal               Money            `gorm:"type:decimal(20,2);not null;default:0" json:"subtotal"`  // 小计
	Total                  Money            `gorm:"type:decimal(20,2);not null;default:0" json:"total"`     // 合计
	Currency               string           `gorm:"type:varchar(8)" json:"currency"`                        // 币种
	PaymentStatus          string           `gorm:"type:varchar(20);index;not null" json:"payment_status"`  // 支付状态
	DeliveryStatus         string           `gorm:"type:varchar(20);index;not null" json:"delivery_status"` // 交付状态
	DeliveryMessages       DeliveryMessages `gorm:"type:json" json:"delivery_messages"`                     // 交付记录
	InvoiceID              string           `gorm:"type:varchar(64);index" json:"invoice_id"`               // PayPal 发票 ID
	PaymentDetails         JSON             `gorm:"type:json" json:"payment_details"`                       // 支付详情
	AbandonedCartProcessed bool             `gorm:"not null;default:false" json:"abandoned_cart_processed"` // 弃单已召回
	RefundedAt             *time.Time       `json:"refunded_at"`                                            // 退款时间
	PaidAt                 *time.Time       `json:"paid_at"`                                                // 支付时间
	CreatedAt              time.Time        `gorm:"index" json:"created"`                                   // 创建时间
	UpdatedAt              time.Time        `json:"updated"`                                                // 更新时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "store_orders"
}

// OrderLine 订单商品行
type OrderLine struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Variant       string `json:"variant,omitempty"`
	Price         Money  `json:"price"`
	OriginalPrice Money  `json:"originalPrice"`
	Quantity      int    `json:"quantity"`
}

// Key 商品行唯一键（商品 ID + 规格）
func (l OrderLine) Key() string {
	variant := strings.TrimSpace(l.Variant)
	if variant == "" {
		return l.ID
	}
	return l.ID + "::" + variant
}

// LineTotal 单行金额
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.Price.Decimal.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderLines 商品行列表
type OrderLines []OrderLine

// Value 实现 driver.Valuer 接口
func (l OrderLines) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]OrderLine(l))
	return string(b), err
}

// Scan 实现 sql.Scanner 接口
func (l *OrderLines) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil || len(raw) == 0 {
		*l = OrderLines{}
		return err
	}
	return json.Unmarshal(raw, (*[]OrderLine)(l))
}

// UnmarshalJSON 同时接受数组与字符串化数组
func (l *OrderLines) UnmarshalJSON(b []byte) error {
	raw, err := unwrapJSONString(b)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		*l = OrderLines{}
		return nil
	}
	var lines []OrderLine
	if err := json.Unmarshal(raw, &lines); err != nil {
		return err
	}
	*l = lines
	return nil
}

// Stringify 返回 JSON 字符串形式
func (l OrderLines) Stringify() string {
	v, _ := l.Value()
	return v.(string)
}

// DeliveryMessage 一次交付操作记录
type DeliveryMessage struct {
	Timestamp    time.Time         `json:"timestamp"`
	EmailMessage string            `json:"emailMessage"`
	Deliverables map[string]string `json:"deliverables"`
	Status       string            `json:"status"`
}

// DeliveryMessages 交付记录列表
type DeliveryMessages []DeliveryMessage

// Value 实现 driver.Valuer 接口
func (m DeliveryMessages) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]DeliveryMessage(m))
	return string(b), err
}

// Scan 实现 sql.Scanner 接口
func (m *DeliveryMessages) Scan(value interface{}) error {
	raw, err := scanBytes(value)
	if err != nil || len(raw) == 0 {
		*m = DeliveryMessages{}
		return err
	}
	return json.Unmarshal(raw, (*[]DeliveryMessage)(m))
}

// UnmarshalJSON 同时接受数组与字符串化数组
func (m *DeliveryMessages) UnmarshalJSON(b []byte) error {
	raw, err := unwrapJSONString(b)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		*m = DeliveryMessages{}
		return nil
	}
	var msgs []DeliveryMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return err
	}
	*m = msgs
	return nil
}
