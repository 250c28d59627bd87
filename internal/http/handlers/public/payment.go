package public

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateInvoiceRequest 创建发票请求，amount 可为数字或字符串
type CreateInvoiceRequest struct {
	Amount       interface{}       `json:"amount"`
	OrderRef     string            `json:"orderRef"`
	Email        string            `json:"email"`
	CustomerName string            `json:"customerName"`
	Items        models.OrderLines `json:"items"`
}

func amountString(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// CreateInvoice 代理创建 PayPal 发票
func (h *Handler) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.bad_request", err)
		return
	}
	result, err := h.InvoiceService.CreateInvoice(c.Request.Context(), service.CreateInvoiceInput{
		Amount:       amountString(req.Amount),
		OrderRef:     req.OrderRef,
		Email:        req.Email,
		CustomerName: req.CustomerName,
		Items:        req.Items,
	})
	if err != nil {
		respondWithMappedError(c, err, invoiceErrorRules, http.StatusInternalServerError, "error.invoice_failed")
		return
	}
	response.Raw(c, http.StatusOK, result)
}

// InvoiceStatus 查询发票状态
func (h *Handler) InvoiceStatus(c *gin.Context) {
	status, err := h.InvoiceService.GetInvoiceStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithMappedError(c, err, invoiceErrorRules, http.StatusInternalServerError, "error.invoice_status_failed")
		return
	}
	response.Raw(c, http.StatusOK, gin.H{"status": status})
}

// StartPayment 为订单开票并开始轮询
func (h *Handler) StartPayment(c *gin.Context) {
	session, ok := checkoutSession(c)
	if !ok {
		return
	}
	result, err := h.CheckoutService.StartPayment(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		respondWithMappedError(c, err, paymentStartErrorRules, http.StatusInternalServerError, "error.invoice_failed")
		return
	}
	response.Raw(c, http.StatusOK, result)
}

// PollPayment 读取支付轮询状态，刷新页面后可继续跟进
func (h *Handler) PollPayment(c *gin.Context) {
	session, ok := checkoutSession(c)
	if !ok {
		return
	}
	orderID := c.Param("id")
	if orderID == "" {
		orderID = c.Param("order_id")
	}
	outcome, err := h.CheckoutService.PollStatus(c.Request.Context(), session, orderID)
	if err != nil {
		respondWithMappedError(c, err, pollErrorRules, http.StatusInternalServerError, "error.invoice_status_failed")
		return
	}
	response.Raw(c, http.StatusOK, outcome)
}
