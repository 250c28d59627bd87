package public

import (
	"net/http"

	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError = handlershared.MappedError

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	if rule, ok := handlershared.MatchError(err, rules); ok {
		// 缺失字段需要原始错误来拼接字段名
		if rule.Target == service.ErrMissingFields {
			respondError(c, rule.Code, rule.Key, err)
			return
		}
		respondError(c, rule.Code, rule.Key, nil)
		return
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

var sessionErrorRules = []mappedHandlerError{
	{Target: service.ErrSessionRequired, Code: http.StatusUnauthorized, Key: "error.session_required"},
	{Target: service.ErrSessionInvalid, Code: http.StatusUnauthorized, Key: "error.session_invalid"},
}

var cartErrorRules = []mappedHandlerError{
	{Target: service.ErrOrderItemsEmpty, Code: http.StatusBadRequest, Key: "error.order_items_empty"},
	{Target: service.ErrOrderItemInvalid, Code: http.StatusBadRequest, Key: "error.order_item_invalid"},
	{Target: service.ErrOrderPriceMismatch, Code: http.StatusBadRequest, Key: "error.order_price_mismatch"},
}

var orderAccessErrorRules = []mappedHandlerError{
	{Target: service.ErrOrderNotFound, Code: http.StatusNotFound, Key: "error.order_not_found"},
	{Target: service.ErrOrderForbidden, Code: http.StatusForbidden, Key: "error.order_forbidden"},
	{Target: service.ErrOrderStatusInvalid, Code: http.StatusConflict, Key: "error.order_status_invalid"},
}

var orderSaveErrorRules = handlershared.ConcatErrorRules(
	sessionErrorRules,
	orderAccessErrorRules,
	cartErrorRules,
	[]mappedHandlerError{
		{Target: service.ErrOrderEmailInvalid, Code: http.StatusBadRequest, Key: "error.order_email_invalid"},
		{Target: service.ErrMissingFields, Code: http.StatusBadRequest, Key: "error.missing_fields"},
	},
)

var invoiceErrorRules = []mappedHandlerError{
	{Target: service.ErrMissingFields, Code: http.StatusBadRequest, Key: "error.missing_fields"},
	{Target: service.ErrInvoiceAmountInvalid, Code: http.StatusBadRequest, Key: "error.invoice_amount_invalid"},
	{Target: service.ErrOrderEmailInvalid, Code: http.StatusBadRequest, Key: "error.order_email_invalid"},
	{Target: service.ErrNotFound, Code: http.StatusNotFound, Key: "error.not_found"},
	{Target: service.ErrPaymentGatewayInvalid, Code: http.StatusServiceUnavailable, Key: "error.payment_gateway_invalid"},
	{Target: service.ErrInvoiceFailed, Code: http.StatusInternalServerError, Key: "error.invoice_failed"},
	{Target: service.ErrInvoiceStatusFailed, Code: http.StatusInternalServerError, Key: "error.invoice_status_failed"},
}

var paymentStartErrorRules = handlershared.ConcatErrorRules(
	sessionErrorRules,
	orderAccessErrorRules,
	invoiceErrorRules,
)

var pollErrorRules = handlershared.ConcatErrorRules(
	sessionErrorRules,
	orderAccessErrorRules,
	[]mappedHandlerError{
		{Target: service.ErrPollNotFound, Code: http.StatusNotFound, Key: "error.poll_not_found"},
	},
	invoiceErrorRules,
)

var webhookErrorRules = []mappedHandlerError{
	{Target: service.ErrWebhookInvalid, Code: http.StatusBadRequest, Key: "error.webhook_invalid"},
	{Target: service.ErrPaymentGatewayInvalid, Code: http.StatusServiceUnavailable, Key: "error.payment_gateway_invalid"},
}
