package i18n

import "testing"

func TestResolveLocale(t *testing.T) {
	cases := map[string]string{
		"":                        LocaleEN,
		"zh-CN,zh;q=0.9":          LocaleZhCN,
		"fr-FR, en-US;q=0.8":      LocaleEN,
		"de":                      LocaleEN,
		"  zh-TW ; q=1, en;q=0.5": LocaleZhCN,
	}
	for input, want := range cases {
		if got := ResolveLocale(input); got != want {
			t.Fatalf("ResolveLocale(%q)=%s want %s", input, got, want)
		}
	}
}

func TestTFallbacks(t *testing.T) {
	if got := T(LocaleZhCN, "error.order_not_found"); got != "订单不存在" {
		t.Fatalf("unexpected zh message: %s", got)
	}
	if got := T("ja", "error.order_not_found"); got != "Order not found" {
		t.Fatalf("expected english fallback, got %s", got)
	}
	if got := T(LocaleEN, "error.unknown_key"); got != "error.unknown_key" {
		t.Fatalf("expected key fallback, got %s", got)
	}
	if got := Sprintf(LocaleEN, "error.missing_fields", "amount, email"); got != "Missing required fields: amount, email" {
		t.Fatalf("unexpected formatted message: %s", got)
	}
}
