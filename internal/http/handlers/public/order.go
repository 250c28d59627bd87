package public

import (
	"net/http"
	"strings"

	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

// OrderRequest 店面订单请求，items/info 兼容 JSON 字符串形式
type OrderRequest struct {
	CustomerEmail      string            `json:"customer_email"`
	CustomerName       string            `json:"customer_name"`
	CustomerDeviceHash string            `json:"customer_device_hash"`
	Items              models.OrderLines `json:"items"`
	Info               models.JSON       `json:"info"`
}

func (r OrderRequest) toServiceInput() service.SaveOrderInput {
	return service.SaveOrderInput{
		CustomerEmail: strings.TrimSpace(r.CustomerEmail),
		CustomerName:  strings.TrimSpace(r.CustomerName),
		Items:         r.Items,
		Info:          r.Info,
	}
}

// CreateOrder 保存弃单（同一结账会话重复提交时更新原订单）
func (h *Handler) CreateOrder(c *gin.Context) {
	session, ok := checkoutSession(c)
	if !ok {
		return
	}
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.bad_request", err)
		return
	}
	if hash := strings.TrimSpace(req.CustomerDeviceHash); hash != "" && hash != session.DeviceHash {
		requestLog(c).Debugw("order_device_hash_ignored", "cart_ref", session.CartRef)
	}
	order, created, err := h.CheckoutService.SaveAbandonedOrder(c.Request.Context(), session, req.toServiceInput())
	if err != nil {
		respondWithMappedError(c, err, orderSaveErrorRules, http.StatusInternalServerError, "error.order_create_failed")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Raw(c, status, order)
}

// UpdateOrder 整体覆盖订单的客户字段
func (h *Handler) UpdateOrder(c *gin.Context) {
	session, ok := checkoutSession(c)
	if !ok {
		return
	}
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.bad_request", err)
		return
	}
	order, err := h.CheckoutService.UpdateOrder(c.Request.Context(), session, c.Param("id"), req.toServiceInput())
	if err != nil {
		respondWithMappedError(c, err, orderSaveErrorRules, http.StatusInternalServerError, "error.order_update_failed")
		return
	}
	response.Raw(c, http.StatusOK, order)
}

// GetOrder 读取当前会话的订单
func (h *Handler) GetOrder(c *gin.Context) {
	session, ok := checkoutSession(c)
	if !ok {
		return
	}
	order, err := h.CheckoutService.GetOrder(c.Request.Context(), session, c.Param("id"))
	if err != nil {
		respondWithMappedError(c, err, orderSaveErrorRules, http.StatusInternalServerError, "error.order_fetch_failed")
		return
	}
	response.Raw(c, http.StatusOK, order)
}
