package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

type fakePaypal struct {
	tokenCalls  int32
	createCalls int32
	sendCalls   int32
	status      string
	createBody  map[string]interface{}
	recipient   string
	payerView   string
}

func (f *fakePaypal) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/oauth2/token":
			atomic.AddInt32(&f.tokenCalls, 1)
			user, pass, ok := r.BasicAuth()
			if !ok || user != "cid" || pass != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"tok-1","expires_in":32400}`))
		case r.URL.Path == "/v2/invoicing/invoices" && r.Method == http.MethodPost:
			atomic.AddInt32(&f.createCalls, 1)
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
			}
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &f.createBody)
			w.WriteHeader(http.StatusCreated)
			resp := map[string]interface{}{
				"id":     "INV2-AAAA-BBBB",
				"status": "DRAFT",
				"amount": map[string]string{"value": "39.98", "currency_code": "USD"},
			}
			if f.recipient != "" {
				resp["detail"] = map[string]interface{}{"metadata": map[string]string{"recipient_view_url": f.recipient}}
			}
			_ = json.NewEncoder(w).Encode(resp)
		case strings.HasSuffix(r.URL.Path, "/send"):
			atomic.AddInt32(&f.sendCalls, 1)
			if f.payerView == "" {
				w.WriteHeader(http.StatusAccepted)
				return
			}
			_, _ = w.Write([]byte(`{"links":[{"rel":"payer-view","href":"` + f.payerView + `"}]}`))
		case strings.HasPrefix(r.URL.Path, "/v2/invoicing/invoices/") && r.Method == http.MethodGet:
			if strings.HasSuffix(r.URL.Path, "/missing") {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write([]byte(`{"id":"INV2-AAAA-BBBB","status":"` + f.status + `","amount":{"value":"39.98","currency_code":"USD"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func newTestClient(t *testing.T, fake *fakePaypal, mode string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{ClientID: "cid", ClientSecret: "secret", Mode: mode, BaseURL: srv.URL, Currency: "usd"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	return client
}

func TestValidateConfigRejectsUnknownMode(t *testing.T) {
	err := ValidateConfig(Config{ClientID: "cid", ClientSecret: "secret", Mode: "staging"})
	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid, got %v", err)
	}
	if err := ValidateConfig(Config{ClientID: "cid", ClientSecret: "secret"}); err != nil {
		t.Fatalf("default sandbox config should pass, got %v", err)
	}
}

func TestCreateAndSendInvoiceUsesModeAwareURL(t *testing.T) {
	fake := &fakePaypal{}
	client := newTestClient(t, fake, ModeLive)

	invoice, err := client.CreateAndSendInvoice(context.Background(), InvoiceInput{
		OrderRef: "LS20260101000000123456",
		Email:    "buyer@example.com",
		Amount:   decimal.RequireFromString("39.98"),
		Items: []InvoiceItem{
			{Name: "Pro license", Quantity: 2, UnitAmount: decimal.RequireFromString("19.99")},
		},
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	if invoice.ID != "INV2-AAAA-BBBB" || invoice.Total != "39.98" {
		t.Fatalf("unexpected invoice: %+v", invoice)
	}
	if invoice.URL != "https://www.paypal.com/invoice/p/#INV2-AAAA-BBBB" {
		t.Fatalf("expected live payer url, got %s", invoice.URL)
	}
	if fake.sendCalls != 1 {
		t.Fatalf("expected invoice to be sent once, got %d", fake.sendCalls)
	}
	detail, _ := fake.createBody["detail"].(map[string]interface{})
	if detail["currency_code"] != "USD" || detail["reference"] != "LS20260101000000123456" {
		t.Fatalf("unexpected detail payload: %+v", detail)
	}
	items, _ := fake.createBody["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("unexpected items payload: %+v", fake.createBody["items"])
	}
}

func TestCreateInvoicePrefersPaypalProvidedURLs(t *testing.T) {
	fake := &fakePaypal{recipient: "https://www.sandbox.paypal.com/invoice/p/#recipient"}
	client := newTestClient(t, fake, ModeSandbox)
	invoice, err := client.CreateInvoice(context.Background(), InvoiceInput{
		OrderRef: "ref", Email: "a@b.c", Amount: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create invoice failed: %v", err)
	}
	if invoice.URL != fake.recipient {
		t.Fatalf("expected recipient view url, got %s", invoice.URL)
	}

	fake.payerView = "https://www.sandbox.paypal.com/invoice/p/#payer"
	sent, err := client.CreateAndSendInvoice(context.Background(), InvoiceInput{
		OrderRef: "ref", Email: "a@b.c", Amount: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("create and send failed: %v", err)
	}
	if sent.URL != fake.payerView {
		t.Fatalf("expected payer-view link, got %s", sent.URL)
	}
}

func TestSandboxPayerURL(t *testing.T) {
	client := newTestClient(t, &fakePaypal{}, ModeSandbox)
	if got := client.PayerURL("INV2-X"); got != "https://www.sandbox.paypal.com/invoice/p/#INV2-X" {
		t.Fatalf("unexpected sandbox url: %s", got)
	}
}

func TestAccessTokenIsCached(t *testing.T) {
	fake := &fakePaypal{status: "PAYMENT_PENDING"}
	client := newTestClient(t, fake, ModeSandbox)
	for i := 0; i < 3; i++ {
		if _, err := client.GetInvoiceStatus(context.Background(), "INV2-AAAA-BBBB"); err != nil {
			t.Fatalf("get status failed: %v", err)
		}
	}
	if fake.tokenCalls != 1 {
		t.Fatalf("expected one token request, got %d", fake.tokenCalls)
	}
}

func TestGetInvoiceStatusMapping(t *testing.T) {
	cases := map[string]string{
		"PAYMENT_PENDING": "pending",
		"PAID":            "paid",
		"MARKED_AS_PAID":  "marked_as_paid",
		"PARTIALLY_PAID":  "partially_paid",
		"CANCELLED":       "cancelled",
	}
	fake := &fakePaypal{}
	client := newTestClient(t, fake, ModeSandbox)
	for raw, want := range cases {
		fake.status = raw
		got, err := client.GetInvoiceStatus(context.Background(), "INV2-AAAA-BBBB")
		if err != nil {
			t.Fatalf("get status failed: %v", err)
		}
		if got != want {
			t.Fatalf("status %s mapped to %s, want %s", raw, got, want)
		}
	}
}

func TestGetInvoiceNotFound(t *testing.T) {
	client := newTestClient(t, &fakePaypal{}, ModeSandbox)
	_, err := client.GetInvoice(context.Background(), "missing")
	if !errors.Is(err, ErrInvoiceNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	client, err := NewClient(Config{ClientID: "cid", ClientSecret: "bad", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, err := client.GetInvoiceStatus(context.Background(), "INV2"); !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestParseInvoicePaidWebhook(t *testing.T) {
	body := []byte(`{
		"id": "WH-1",
		"event_type": "INVOICING.INVOICE.PAID",
		"create_time": "2026-02-09T12:00:00Z",
		"resource": {"invoice": {"id": "INV2-AAAA-BBBB", "status": "PAID",
			"payments": {"transactions": [{"payment_date": "2026-02-09T11:59:00Z"}]}}}
	}`)
	event, err := ParseWebhookEvent(body)
	if err != nil {
		t.Fatalf("parse webhook failed: %v", err)
	}
	if event.InvoiceID() != "INV2-AAAA-BBBB" || event.InvoiceStatus() != "paid" {
		t.Fatalf("unexpected event fields: %s %s", event.InvoiceID(), event.InvoiceStatus())
	}
	if paidAt := event.PaidAt(); paidAt == nil || paidAt.Minute() != 59 {
		t.Fatalf("unexpected paid at: %v", paidAt)
	}
	if _, err := ParseWebhookEvent([]byte(`{}`)); !errors.Is(err, ErrResponseInvalid) {
		t.Fatalf("expected invalid event error, got %v", err)
	}
}

func TestVerifyWebhookSignatureRequiresHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth2/token" {
			_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`{"verification_status":"SUCCESS"}`))
	}))
	defer srv.Close()
	client, err := NewClient(Config{ClientID: "cid", ClientSecret: "secret", BaseURL: srv.URL, WebhookID: "wh"})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if err := client.VerifyWebhookSignature(context.Background(), http.Header{}, map[string]interface{}{}); !errors.Is(err, ErrWebhookVerifyFailed) {
		t.Fatalf("expected verify failure without headers, got %v", err)
	}
	headers := http.Header{}
	for _, k := range []string{"Paypal-Transmission-Id", "Paypal-Transmission-Time", "Paypal-Cert-Url", "Paypal-Auth-Algo", "Paypal-Transmission-Sig"} {
		headers.Set(k, "v")
	}
	if err := client.VerifyWebhookSignature(context.Background(), headers, map[string]interface{}{"id": "WH-1"}); err != nil {
		t.Fatalf("expected verify success, got %v", err)
	}
}

func TestTruncateKeepsRunesIntact(t *testing.T) {
	if got := truncate("  Office Pro  ", 200); got != "Office Pro" {
		t.Fatalf("short names are only trimmed, got %q", got)
	}
	if got := truncate("Windows 11 Home", 7); got != "Windows" {
		t.Fatalf("ascii cut, got %q", got)
	}
	// 每个西里尔字母占两个字节，上限落在字符中间
	got := truncate("Лицензия", 5)
	if !utf8.ValidString(got) || got != "Ли" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
	if got := truncate("许可证密钥", 4); got != "许" {
		t.Fatalf("expected rune-safe cut for cjk, got %q", got)
	}
}
