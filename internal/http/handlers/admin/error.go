package admin

import (
	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, key string, err error) {
	handlershared.RespondError(c, code, key, err)
}

type mappedHandlerError = handlershared.MappedError

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	if rule, ok := handlershared.MatchError(err, rules); ok {
		if rule.Target == service.ErrMissingFields || rule.Target == service.ErrDeliveryIncomplete {
			respondErrorWithDetail(c, rule, err)
			return
		}
		respondError(c, rule.Code, rule.Key, nil)
		return
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

// respondErrorWithDetail 附带原始错误文本，便于后台定位缺失的交付内容
func respondErrorWithDetail(c *gin.Context, rule mappedHandlerError, err error) {
	msg := handlershared.Message(c, rule.Key, err)
	response.ErrorWithData(c, rule.Code, msg, gin.H{"detail": err.Error()})
}

var orderActionErrorRules = []mappedHandlerError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Key: "error.order_not_found"},
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeBadRequest, Key: "error.order_status_invalid"},
	{Target: service.ErrDeliveryNotPaid, Code: response.CodeBadRequest, Key: "error.delivery_not_paid"},
	{Target: service.ErrDeliveryIncomplete, Code: response.CodeBadRequest, Key: "error.delivery_incomplete"},
	{Target: service.ErrRecoveryNotAllowed, Code: response.CodeBadRequest, Key: "error.recovery_not_allowed"},
	{Target: service.ErrMissingFields, Code: response.CodeBadRequest, Key: "error.missing_fields"},
	{Target: service.ErrBadRequest, Code: response.CodeBadRequest, Key: "error.bad_request"},
}

var reconcileErrorRules = []mappedHandlerError{
	{Target: service.ErrOrderNotFound, Code: response.CodeNotFound, Key: "error.order_not_found"},
	{Target: service.ErrInvoiceMissing, Code: response.CodeBadRequest, Key: "error.invoice_missing"},
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Key: "error.not_found"},
	{Target: service.ErrPaymentGatewayInvalid, Code: response.CodeServiceUnavailable, Key: "error.payment_gateway_invalid"},
	{Target: service.ErrInvoiceStatusFailed, Code: response.CodeBadGateway, Key: "error.invoice_status_failed"},
}

var productErrorRules = []mappedHandlerError{
	{Target: service.ErrProductNotFound, Code: response.CodeNotFound, Key: "error.product_not_found"},
	{Target: service.ErrProductSlugExists, Code: response.CodeConflict, Key: "error.product_slug_exists"},
	{Target: service.ErrProductInvalid, Code: response.CodeBadRequest, Key: "error.product_invalid"},
	{Target: service.ErrMissingFields, Code: response.CodeBadRequest, Key: "error.missing_fields"},
}
