package service

import (
	"errors"
	"strings"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrBadRequest            = errors.New("bad request")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrSessionRequired       = errors.New("checkout session required")
	ErrSessionInvalid        = errors.New("checkout session invalid")
	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderForbidden        = errors.New("order does not belong to session")
	ErrOrderStatusInvalid    = errors.New("order status invalid")
	ErrOrderEmailInvalid     = errors.New("order email invalid")
	ErrOrderItemsEmpty       = errors.New("order items empty")
	ErrOrderItemInvalid      = errors.New("order item invalid")
	ErrOrderPriceMismatch    = errors.New("order price mismatch")
	ErrOrderFetchFailed      = errors.New("order fetch failed")
	ErrOrderCreateFailed     = errors.New("order create failed")
	ErrOrderUpdateFailed     = errors.New("order update failed")
	ErrDeliveryIncomplete    = errors.New("delivery content incomplete")
	ErrDeliveryNotPaid       = errors.New("order not paid")
	ErrRecoveryNotAllowed    = errors.New("abandoned recovery not allowed")
	ErrInvoiceMissing        = errors.New("order has no invoice")
	ErrInvoiceFailed         = errors.New("invoice create failed")
	ErrInvoiceStatusFailed   = errors.New("invoice status failed")
	ErrInvoiceAmountInvalid  = errors.New("invoice amount invalid")
	ErrPollNotFound          = errors.New("poll session not found")
	ErrPaymentGatewayInvalid = errors.New("payment gateway not configured")
	ErrWebhookInvalid        = errors.New("webhook invalid")
	ErrProductNotFound       = errors.New("product not found")
	ErrProductSlugExists     = errors.New("product slug exists")
	ErrProductInvalid        = errors.New("product invalid")
	ErrUserNotFound          = errors.New("user not found")
	ErrConfigInvalid         = errors.New("store config invalid")
	ErrMissingFields         = errors.New("missing required fields")
)

// MissingFieldsError 列出缺失的必填字段
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// Is 使 errors.Is(err, ErrMissingFields) 成立
func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// FieldList 逗号分隔的字段名
func (e *MissingFieldsError) FieldList() string {
	return strings.Join(e.Fields, ", ")
}
