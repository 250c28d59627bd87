package admin

import (
	"strings"

	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

// OrderListResponse 订单列表附带各分组数量
type OrderListResponse struct {
	Items     interface{}      `json:"items"`
	TabCounts map[string]int64 `json:"tab_counts"`
}

// AdminListOrders 管理端订单列表
func (h *Handler) AdminListOrders(c *gin.Context) {
	page, pageSize := handlershared.NormalizeOrderPagination(handlershared.QueryPage(c))
	query := service.ListQuery{
		Tab:      strings.TrimSpace(c.Query("tab")),
		Page:     page,
		PageSize: pageSize,
		Email:    strings.TrimSpace(c.Query("email")),
	}

	orders, total, err := h.OrderAdminService.List(c.Request.Context(), query)
	if err != nil {
		respondWithMappedError(c, err, orderActionErrorRules, response.CodeInternal, "error.order_fetch_failed")
		return
	}
	counts, err := h.OrderAdminService.TabCounts(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.order_fetch_failed", err)
		return
	}

	response.SuccessWithPage(c, OrderListResponse{Items: orders, TabCounts: counts}, handlershared.BuildPagination(page, pageSize, total))
}

// AdminGetOrder 管理端订单详情
func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.OrderAdminService.Get(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, orderActionErrorRules, response.CodeInternal, "error.order_fetch_failed")
		return
	}
	response.Success(c, order)
}

// UpdateOrderStatusRequest 状态修改请求
type UpdateOrderStatusRequest struct {
	PaymentStatus  string `json:"payment_status"`
	DeliveryStatus string `json:"delivery_status"`
}

// AdminUpdateOrderStatus 按流转表修改订单状态
func (h *Handler) AdminUpdateOrderStatus(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	order, err := h.OrderAdminService.UpdateStatus(c.Request.Context(), id, req.PaymentStatus, req.DeliveryStatus)
	if err != nil {
		respondWithMappedError(c, err, orderActionErrorRules, response.CodeInternal, "error.order_update_failed")
		return
	}
	requestLog(c).Infow("admin_order_status_updated",
		"admin", getAdminUsername(c),
		"order_id", order.ID,
		"payment_status", order.PaymentStatus,
		"delivery_status", order.DeliveryStatus,
	)
	response.Success(c, order)
}

// DeliverRequest 交付请求，deliverables 以商品行键为键
type DeliverRequest struct {
	Deliverables map[string]string `json:"deliverables"`
	EmailMessage string            `json:"email_message"`
}

func (r DeliverRequest) toInput() service.DeliverInput {
	return service.DeliverInput{Deliverables: r.Deliverables, EmailMessage: r.EmailMessage}
}

// AdminDeliverOrder 交付订单并发送交付邮件
func (h *Handler) AdminDeliverOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	order, err := h.OrderAdminService.Deliver(c.Request.Context(), id, req.toInput())
	if err != nil {
		respondWithMappedError(c, err, orderActionErrorRules, response.CodeInternal, "error.order_update_failed")
		return
	}
	requestLog(c).Infow("admin_order_delivered", "admin", getAdminUsername(c), "order_id", order.ID)
	response.Success(c, order)
}

// AdminPreviewDeliveryEmail 交付邮件预览
func (h *Handler) AdminPreviewDeliveryEmail(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	var req DeliverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	mail, err := h.OrderAdminService.BuildDeliveryEmail(c.Request.Context(), id, req.toInput())
	if err != nil {
		respondWithMappedError(c, err, orderActionErrorRules, response.CodeInternal, "error.internal_error")
		return
	}
	response.Success(c, mail)
}

// AdminRecoverOrder 发送弃单召回邮件
func (h *Handler) AdminRecoverOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.OrderAdminService.RecoverAbandoned(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, orderActionErrorRules, response.CodeInternal, "error.order_update_failed")
		return
	}
	requestLog(c).Infow("admin_order_recovered", "admin", getAdminUsername(c), "order_id", order.ID)
	response.Success(c, order)
}

// AdminRefundOrder 退款
func (h *Handler) AdminRefundOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.OrderAdminService.Refund(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, orderActionErrorRules, response.CodeInternal, "error.order_update_failed")
		return
	}
	requestLog(c).Infow("admin_order_refunded", "admin", getAdminUsername(c), "order_id", order.ID, "total", order.Total.String())
	response.Success(c, order)
}

// AdminReconcileOrder 重新查询订单发票状态
func (h *Handler) AdminReconcileOrder(c *gin.Context) {
	id, ok := orderIDParam(c)
	if !ok {
		return
	}
	result, err := h.OrderAdminService.Reconcile(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, reconcileErrorRules, response.CodeInternal, "error.invoice_status_failed")
		return
	}
	response.Success(c, result)
}

// AdminReconcileOpenOrders 对所有带发票的未完成订单对账
func (h *Handler) AdminReconcileOpenOrders(c *gin.Context) {
	results, err := h.OrderAdminService.ReconcileOpen(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.invoice_status_failed", err)
		return
	}
	if results == nil {
		results = []service.ReconcileResult{}
	}
	response.Success(c, results)
}

func orderIDParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return "", false
	}
	return id, true
}
