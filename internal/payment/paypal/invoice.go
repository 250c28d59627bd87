package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const invoicesPath = "/v2/invoicing/invoices"

// InvoiceItem 发票明细
type InvoiceItem struct {
	Name       string
	Quantity   int
	UnitAmount decimal.Decimal
}

// InvoiceInput 创建发票输入
type InvoiceInput struct {
	OrderRef     string
	Email        string
	CustomerName string
	Amount       decimal.Decimal
	Currency     string
	Note         string
	Items        []InvoiceItem
}

// Invoice 已发送的发票
type Invoice struct {
	ID        string
	URL       string
	Total     string
	Currency  string
	Status    string
	RawStatus string
	Raw       map[string]interface{}
}

// CreateAndSendInvoice 创建草稿发票、发送给付款人，并返回付款链接
func (c *Client) CreateAndSendInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error) {
	created, err := c.CreateInvoice(ctx, input)
	if err != nil {
		return nil, err
	}
	payerURL, err := c.SendInvoice(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	if payerURL != "" {
		created.URL = payerURL
	}
	return created, nil
}

// CreateInvoice 创建草稿发票
func (c *Client) CreateInvoice(ctx context.Context, input InvoiceInput) (*Invoice, error) {
	input.OrderRef = strings.TrimSpace(input.OrderRef)
	input.Email = strings.TrimSpace(input.Email)
	if input.OrderRef == "" || input.Email == "" || !input.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: invoice input is invalid", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = c.cfg.Currency
	}
	total := input.Amount.Round(2).StringFixed(2)

	body, err := json.Marshal(buildInvoicePayload(c.cfg, input, currency, total))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
	}
	respBody, status, err := c.doJSON(ctx, http.MethodPost, invoicesPath, body, map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: create invoice status %d: %s", ErrResponseInvalid, status, summarizeError(respBody))
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}

	id := strings.TrimSpace(readString(raw, "id"))
	if id == "" {
		id = lastPathSegment(readString(raw, "href"))
	}
	if id == "" {
		id = lastPathSegment(extractLinkByRel(raw, "self"))
	}
	if id == "" {
		return nil, fmt.Errorf("%w: missing invoice id", ErrResponseInvalid)
	}

	invoice := &Invoice{
		ID:        id,
		Total:     total,
		Currency:  currency,
		RawStatus: strings.TrimSpace(readString(raw, "status")),
		Raw:       raw,
	}
	if amount := strings.TrimSpace(readString(raw, "amount", "value")); amount != "" {
		invoice.Total = amount
	}
	invoice.Status = NormalizeInvoiceStatus(invoice.RawStatus)
	invoice.URL = strings.TrimSpace(readString(raw, "detail", "metadata", "recipient_view_url"))
	if invoice.URL == "" {
		invoice.URL = c.PayerURL(id)
	}
	return invoice, nil
}

// SendInvoice 发送发票，返回 PayPal 提供的付款链接（可能为空）
func (c *Client) SendInvoice(ctx context.Context, invoiceID string) (string, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return "", fmt.Errorf("%w: invoice id is empty", ErrConfigInvalid)
	}
	payload := []byte(`{"send_to_invoicer":true}`)
	respBody, status, err := c.doJSON(ctx, http.MethodPost, invoicesPath+"/"+url.PathEscape(invoiceID)+"/send", payload, nil)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: send invoice status %d: %s", ErrResponseInvalid, status, summarizeError(respBody))
	}
	if len(respBody) == 0 {
		return "", nil
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return "", nil
	}
	return extractLinkByRel(raw, "payer-view"), nil
}

// GetInvoice 查询发票详情
func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, fmt.Errorf("%w: invoice id is empty", ErrConfigInvalid)
	}
	respBody, status, err := c.doJSON(ctx, http.MethodGet, invoicesPath+"/"+url.PathEscape(invoiceID), nil, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("%w: get invoice status %d", ErrResponseInvalid, status)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	rawStatus := strings.TrimSpace(readString(raw, "status"))
	if rawStatus == "" {
		return nil, fmt.Errorf("%w: missing invoice status", ErrResponseInvalid)
	}
	invoice := &Invoice{
		ID:        invoiceID,
		Total:     strings.TrimSpace(readString(raw, "amount", "value")),
		Currency:  strings.TrimSpace(readString(raw, "amount", "currency_code")),
		RawStatus: rawStatus,
		Status:    NormalizeInvoiceStatus(rawStatus),
		URL:       strings.TrimSpace(readString(raw, "detail", "metadata", "recipient_view_url")),
		Raw:       raw,
	}
	if invoice.URL == "" {
		invoice.URL = c.PayerURL(invoiceID)
	}
	return invoice, nil
}

// GetInvoiceStatus 查询归一化后的发票状态
func (c *Client) GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	invoice, err := c.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	return invoice.Status, nil
}

// PayerURL 按运行模式拼接付款人查看链接
func (c *Client) PayerURL(invoiceID string) string {
	return c.cfg.WebBaseURL + "/invoice/p/#" + invoiceID
}

// NormalizeInvoiceStatus PAYMENT_PENDING→pending，PAID→paid，其余原样转小写
func NormalizeInvoiceStatus(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAYMENT_PENDING":
		return "pending"
	case "PAID":
		return "paid"
	default:
		return strings.ToLower(strings.TrimSpace(raw))
	}
}

func buildInvoicePayload(cfg Config, input InvoiceInput, currency, total string) map[string]interface{} {
	detail := map[string]interface{}{
		"currency_code": currency,
		"reference":     input.OrderRef,
		"payment_term":  map[string]string{"term_type": "DUE_ON_RECEIPT"},
	}
	if note := strings.TrimSpace(input.Note); note != "" {
		detail["note"] = note
	}

	billing := map[string]interface{}{"email_address": input.Email}
	if name := strings.TrimSpace(input.CustomerName); name != "" {
		given, surname, _ := strings.Cut(name, " ")
		billing["name"] = map[string]string{"given_name": given, "surname": strings.TrimSpace(surname)}
	}

	items := make([]map[string]interface{}, 0, len(input.Items))
	for _, item := range input.Items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		items = append(items, map[string]interface{}{
			"name":     truncate(item.Name, 200),
			"quantity": strconv.Itoa(qty),
			"unit_amount": map[string]string{
				"currency_code": currency,
				"value":         item.UnitAmount.Round(2).StringFixed(2),
			},
		})
	}
	if len(items) == 0 {
		items = append(items, map[string]interface{}{
			"name":     "Order " + input.OrderRef,
			"quantity": "1",
			"unit_amount": map[string]string{
				"currency_code": currency,
				"value":         total,
			},
		})
	}

	payload := map[string]interface{}{
		"detail":             detail,
		"primary_recipients": []map[string]interface{}{{"billing_info": billing}},
		"items":              items,
		"configuration": map[string]interface{}{
			"allow_tip":                     false,
			"tax_calculated_after_discount": true,
		},
	}
	if cfg.InvoicerEmail != "" {
		payload["invoicer"] = map[string]string{"email_address": cfg.InvoicerEmail}
	}
	return payload
}

func lastPathSegment(href string) string {
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	if href == "" {
		return ""
	}
	if idx := strings.LastIndex(href, "/"); idx >= 0 {
		return href[idx+1:]
	}
	return href
}

// truncate 按字节上限截断，不拆分多字节字符
func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func summarizeError(body []byte) string {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return truncate(string(body), 200)
	}
	if msg := readString(raw, "message"); msg != "" {
		if issue := readString(raw, "details", "0", "issue"); issue != "" {
			return msg + " (" + issue + ")"
		}
		return msg
	}
	return readString(raw, "name")
}
