package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	EventInvoicePaid      = "INVOICING.INVOICE.PAID"
	EventInvoiceCancelled = "INVOICING.INVOICE.CANCELLED"
	EventInvoiceRefunded  = "INVOICING.INVOICE.REFUNDED"
)

// WebhookEvent PayPal Webhook 事件
type WebhookEvent struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"event_type"`
	CreateTime string                 `json:"create_time"`
	Resource   map[string]interface{} `json:"resource"`
	Raw        map[string]interface{}
}

// VerifyWebhookSignature 调用 PayPal 校验 Webhook 签名
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers http.Header, event map[string]interface{}) error {
	if c.cfg.WebhookID == "" {
		return fmt.Errorf("%w: webhook_id is required", ErrConfigInvalid)
	}
	payload := map[string]interface{}{
		"transmission_id":   strings.TrimSpace(headers.Get("Paypal-Transmission-Id")),
		"transmission_time": strings.TrimSpace(headers.Get("Paypal-Transmission-Time")),
		"cert_url":          strings.TrimSpace(headers.Get("Paypal-Cert-Url")),
		"auth_algo":         strings.TrimSpace(headers.Get("Paypal-Auth-Algo")),
		"transmission_sig":  strings.TrimSpace(headers.Get("Paypal-Transmission-Sig")),
		"webhook_id":        c.cfg.WebhookID,
		"webhook_event":     event,
	}
	for _, key := range []string{"transmission_id", "transmission_time", "cert_url", "auth_algo", "transmission_sig"} {
		if readString(payload, key) == "" {
			return fmt.Errorf("%w: missing %s", ErrWebhookVerifyFailed, key)
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: marshal verify payload failed", ErrWebhookVerifyFailed)
	}
	respBody, status, err := c.doJSON(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", body, nil)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: verify status %d", ErrWebhookVerifyFailed, status)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("%w: decode verify response failed", ErrWebhookVerifyFailed)
	}
	if !strings.EqualFold(readString(resp, "verification_status"), "SUCCESS") {
		return fmt.Errorf("%w: verify result is not success", ErrWebhookVerifyFailed)
	}
	return nil
}

// ParseWebhookEvent 解析 Webhook 事件
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: webhook body is empty", ErrResponseInvalid)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: webhook body invalid", ErrResponseInvalid)
	}
	event := &WebhookEvent{
		ID:         strings.TrimSpace(readString(raw, "id")),
		EventType:  strings.ToUpper(strings.TrimSpace(readString(raw, "event_type"))),
		CreateTime: strings.TrimSpace(readString(raw, "create_time")),
		Raw:        raw,
	}
	if resource, ok := raw["resource"].(map[string]interface{}); ok {
		event.Resource = resource
	} else {
		event.Resource = map[string]interface{}{}
	}
	if event.EventType == "" {
		return nil, fmt.Errorf("%w: event_type is missing", ErrResponseInvalid)
	}
	return event, nil
}

// invoice 发票事件的资源体，兼容 resource.invoice 与 resource 两种结构
func (e *WebhookEvent) invoice() map[string]interface{} {
	if inv, ok := e.Resource["invoice"].(map[string]interface{}); ok {
		return inv
	}
	return e.Resource
}

// InvoiceID 提取关联发票 ID
func (e *WebhookEvent) InvoiceID() string {
	if e == nil {
		return ""
	}
	return strings.TrimSpace(readString(e.invoice(), "id"))
}

// InvoiceStatus 提取归一化后的发票状态
func (e *WebhookEvent) InvoiceStatus() string {
	if e == nil {
		return ""
	}
	if e.EventType == EventInvoicePaid {
		return "paid"
	}
	return NormalizeInvoiceStatus(readString(e.invoice(), "status"))
}

// PaidAt 提取支付时间
func (e *WebhookEvent) PaidAt() *time.Time {
	if e == nil {
		return nil
	}
	candidates := []string{
		readString(e.invoice(), "payments", "transactions", "0", "payment_date"),
		readString(e.invoice(), "detail", "metadata", "last_update_time"),
		e.CreateTime,
	}
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, raw); err == nil {
				return &parsed
			}
		}
	}
	return nil
}
