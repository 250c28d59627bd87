package i18n

import (
	"fmt"
	"strings"
)

const (
	LocaleEN   = "en"
	LocaleZhCN = "zh-CN"
)

// DefaultLocale 默认语言
const DefaultLocale = LocaleEN

var catalog = map[string]map[string]string{
	LocaleEN: {
		"error.bad_request":                "Invalid request",
		"error.missing_fields":             "Missing required fields: %s",
		"error.unauthorized":               "Unauthorized",
		"error.forbidden":                  "Forbidden",
		"error.not_found":                  "Not found",
		"error.too_many_requests":          "Too many requests",
		"error.internal_error":             "Internal server error",
		"error.login_invalid":              "Invalid username or password",
		"error.session_invalid":            "Checkout session is invalid or expired",
		"error.session_required":           "Checkout session is required",
		"error.order_not_found":            "Order not found",
		"error.order_forbidden":            "Order does not belong to this checkout session",
		"error.order_status_invalid":       "Order status does not allow this action",
		"error.order_email_invalid":        "A valid email address is required",
		"error.order_items_empty":          "The cart is empty",
		"error.order_item_invalid":         "Cart item is invalid",
		"error.order_price_mismatch":       "Cart price does not match the catalog",
		"error.order_fetch_failed":         "Failed to load the order",
		"error.order_create_failed":        "Failed to create the order",
		"error.order_update_failed":        "Failed to update the order",
		"error.delivery_incomplete":        "Delivery content is required for every item",
		"error.delivery_not_paid":          "Order payment is not completed",
		"error.recovery_not_allowed":       "Order is not an unprocessed abandoned order",
		"error.invoice_missing":            "Order has no invoice",
		"error.invoice_failed":             "Failed to create invoice",
		"error.invoice_status_failed":      "Failed to fetch invoice status",
		"error.payment_gateway_invalid":    "Payment gateway is not configured",
		"error.webhook_invalid":            "Webhook verification failed",
		"error.product_not_found":          "Product not found",
		"error.product_slug_exists":        "Product slug already exists",
		"error.user_not_found":             "User not found",
		"error.invoice_amount_invalid":     "Invoice amount must be a positive number",
		"error.poll_not_found":             "No active payment check for this order",
		"error.product_invalid":            "Product data is invalid",
		"error.product_fetch_failed":       "Failed to load products",
		"error.product_save_failed":        "Failed to save the product",
		"error.config_fetch_failed":        "Failed to load store configuration",
		"error.user_fetch_failed":          "Failed to load users",
		"error.user_delete_failed":         "Failed to delete the user",
		"error.config_invalid":             "Store configuration is invalid",
		"error.token_invalid":              "Login token is invalid or expired",
		"error.auth_header_missing":        "Authorization header is missing",
		"error.rate_limited":               "Too many requests, retry in %d seconds",
		"error.rate_limit_unavailable":     "Rate limiter is unavailable",
		"email.order_confirmation.subject": "Your {{shop_name}} order {{order_number}}",
		"email.order_confirmation.body":    "Hi {{customer_name}},\n\nThank you for your purchase. We received your payment of {{total}} {{currency}} for order {{order_number}}.\n\n{{items}}\n\nYour license details will follow in a separate email.\n\n{{shop_name}}\n{{shop_url}}",
		"email.delivery.subject":           "Your {{shop_name}} license for order {{order_number}}",
		"email.delivery.body":              "Hi {{customer_name}},\n\nHere are the details for order {{order_number}}:\n\n{{deliverables}}\n\n{{message}}\n\nQuestions? Reply to {{shop_email}}.\n\n{{shop_name}}",
		"email.abandoned_recovery.subject": "You left something in your {{shop_name}} cart",
		"email.abandoned_recovery.body":    "Hi {{customer_name}},\n\nYour order {{order_number}} is still waiting:\n\n{{items}}\n\nTotal: {{total}} {{currency}}\n\nComplete your purchase at {{shop_url}}.\n\n{{shop_name}}",
		"email.refund.subject":             "Refund processed for order {{order_number}}",
		"email.refund.body":                "Hi {{customer_name}},\n\nWe refunded {{total}} {{currency}} for order {{order_number}}. It may take a few days to appear on your statement.\n\n{{shop_name}}\n{{shop_email}}",
	},
	LocaleZhCN: {
		"error.bad_request":                "请求参数错误",
		"error.missing_fields":             "缺少必填字段: %s",
		"error.unauthorized":               "未登录或登录已过期",
		"error.forbidden":                  "无权访问",
		"error.not_found":                  "资源不存在",
		"error.too_many_requests":          "请求过于频繁",
		"error.internal_error":             "服务器内部错误",
		"error.login_invalid":              "用户名或密码错误",
		"error.session_invalid":            "结账会话无效或已过期",
		"error.session_required":           "缺少结账会话",
		"error.order_not_found":            "订单不存在",
		"error.order_forbidden":            "订单不属于当前结账会话",
		"error.order_status_invalid":       "订单状态不允许该操作",
		"error.order_email_invalid":        "请输入有效的邮箱地址",
		"error.order_items_empty":          "购物车为空",
		"error.order_item_invalid":         "购物车商品无效",
		"error.order_price_mismatch":       "购物车价格与商品目录不一致",
		"error.order_fetch_failed":         "订单读取失败",
		"error.order_create_failed":        "订单创建失败",
		"error.order_update_failed":        "订单更新失败",
		"error.delivery_incomplete":        "每个商品都需要填写交付内容",
		"error.delivery_not_paid":          "订单尚未完成支付",
		"error.recovery_not_allowed":       "订单不是未处理的弃单",
		"error.invoice_missing":            "订单没有关联发票",
		"error.invoice_failed":             "发票创建失败",
		"error.invoice_status_failed":      "发票状态查询失败",
		"error.payment_gateway_invalid":    "支付网关未配置",
		"error.webhook_invalid":            "回调验签失败",
		"error.product_not_found":          "商品不存在",
		"error.product_slug_exists":        "商品标识已存在",
		"error.user_not_found":             "用户不存在",
		"error.invoice_amount_invalid":     "发票金额必须为正数",
		"error.poll_not_found":             "该订单没有进行中的支付查询",
		"error.product_invalid":            "商品数据无效",
		"error.product_fetch_failed":       "商品读取失败",
		"error.product_save_failed":        "商品保存失败",
		"error.config_fetch_failed":        "店铺配置读取失败",
		"error.user_fetch_failed":          "用户读取失败",
		"error.user_delete_failed":         "用户删除失败",
		"error.config_invalid":             "店铺配置无效",
		"error.token_invalid":              "登录凭证无效或已过期",
		"error.auth_header_missing":        "缺少 Authorization 请求头",
		"error.rate_limited":               "请求过于频繁，请 %d 秒后重试",
		"error.rate_limit_unavailable":     "限流服务不可用",
		"email.order_confirmation.subject": "{{shop_name}} 订单 {{order_number}} 确认",
		"email.order_confirmation.body":    "{{customer_name}} 您好：\n\n感谢购买，订单 {{order_number}} 已收到付款 {{total}} {{currency}}。\n\n{{items}}\n\n授权信息将另行发送。\n\n{{shop_name}}\n{{shop_url}}",
		"email.delivery.subject":           "{{shop_name}} 订单 {{order_number}} 授权信息",
		"email.delivery.body":              "{{customer_name}} 您好：\n\n订单 {{order_number}} 的交付内容如下：\n\n{{deliverables}}\n\n{{message}}\n\n如有疑问请联系 {{shop_email}}。\n\n{{shop_name}}",
		"email.abandoned_recovery.subject": "您在 {{shop_name}} 的购物车还有商品",
		"email.abandoned_recovery.body":    "{{customer_name}} 您好：\n\n订单 {{order_number}} 尚未完成：\n\n{{items}}\n\n合计：{{total}} {{currency}}\n\n前往 {{shop_url}} 完成购买。\n\n{{shop_name}}",
		"email.refund.subject":             "订单 {{order_number}} 已退款",
		"email.refund.body":                "{{customer_name}} 您好：\n\n订单 {{order_number}} 已退款 {{total}} {{currency}}，到账可能需要几天。\n\n{{shop_name}}\n{{shop_email}}",
	},
}

// ResolveLocale 解析 Accept-Language 等输入为受支持的语言
func ResolveLocale(raw string) string {
	for _, part := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		if tag == "" {
			continue
		}
		lower := strings.ToLower(tag)
		switch {
		case strings.HasPrefix(lower, "zh"):
			return LocaleZhCN
		case strings.HasPrefix(lower, "en"):
			return LocaleEN
		}
	}
	return DefaultLocale
}

// T 翻译消息键，缺失时回退到默认语言，再回退到键本身
func T(locale, key string) string {
	if msgs, ok := catalog[locale]; ok {
		if msg, ok := msgs[key]; ok {
			return msg
		}
	}
	if msg, ok := catalog[DefaultLocale][key]; ok {
		return msg
	}
	return key
}

// Sprintf 翻译并格式化
func Sprintf(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(T(locale, key), args...)
}
