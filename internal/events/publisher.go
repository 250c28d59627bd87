package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/models"

	"github.com/nats-io/nats.go"
)

// OrderEvent 订单生命周期事件载荷
type OrderEvent struct {
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	PaymentStatus  string    `json:"payment_status"`
	DeliveryStatus string    `json:"delivery_status"`
	InvoiceID      string    `json:"invoice_id,omitempty"`
	Total          string    `json:"total"`
	Currency       string    `json:"currency"`
	At             time.Time `json:"at"`
}

// NewOrderEvent 从订单构建事件
func NewOrderEvent(order *models.Order, at time.Time) OrderEvent {
	if order == nil {
		return OrderEvent{At: at}
	}
	return OrderEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PaymentStatus:  order.PaymentStatus,
		DeliveryStatus: order.DeliveryStatus,
		InvoiceID:      order.InvoiceID,
		Total:          order.Total.String(),
		Currency:       order.Currency,
		At:             at.UTC(),
	}
}

// conn 发布所需的 NATS 连接能力
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Publisher 订单事件发布器，未启用时为空操作
type Publisher struct {
	mu     sync.Mutex
	conn   conn
	prefix string
	closed bool
}

// Connect 按配置连接 NATS，未启用时返回空操作发布器
func Connect(cfg *config.EventsConfig) (*Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return &Publisher{}, nil
	}
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("licenseshop"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnw("events_nats_disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infow("events_nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return newPublisher(nc, cfg.SubjectPrefix), nil
}

func newPublisher(c conn, prefix string) *Publisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "storefront"
	}
	return &Publisher{conn: c, prefix: prefix}
}

// Enabled 是否已连接
func (p *Publisher) Enabled() bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.closed
}

// Subject 拼接完整主题
func (p *Publisher) Subject(event string) string {
	if p == nil || p.prefix == "" {
		return event
	}
	return p.prefix + "." + event
}

// Publish 发布订单事件
func (p *Publisher) Publish(ctx context.Context, event string, payload OrderEvent) error {
	if !p.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.Subject(event), body); err != nil {
		return fmt.Errorf("publish %s: %w", event, err)
	}
	return nil
}

// Close 刷新并断开连接
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil || p.closed {
		return nil
	}
	p.closed = true
	if err := p.conn.FlushWithContext(ctx); err != nil {
		logger.Warnw("events_flush_failed", "error", err)
	}
	return p.conn.Drain()
}
