package public

import (
	"net/http"

	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/models"

	"github.com/gin-gonic/gin"
)

// CheckoutSessionRequest 续签结账会话请求
type CheckoutSessionRequest struct {
	SessionToken string `json:"session_token"`
}

// CartSummaryRequest 购物车汇总请求
type CartSummaryRequest struct {
	Items models.OrderLines `json:"items"`
}

// IssueCheckoutSession 签发或续签结账会话
func (h *Handler) IssueCheckoutSession(c *gin.Context) {
	var req CheckoutSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "error.bad_request", err)
			return
		}
	}
	existing := req.SessionToken
	if existing == "" {
		existing = handlershared.CheckoutToken(c)
	}
	session, err := h.AuthService.IssueCheckoutSession(existing)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.internal_error", err)
		return
	}
	response.Raw(c, http.StatusOK, session)
}

// CartSummary 计算购物车合计
func (h *Handler) CartSummary(c *gin.Context) {
	var req CartSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.bad_request", err)
		return
	}
	summary, err := h.CartService.Summarize(c.Request.Context(), req.Items)
	if err != nil {
		respondWithMappedError(c, err, cartErrorRules, http.StatusInternalServerError, "error.internal_error")
		return
	}
	response.Raw(c, http.StatusOK, summary)
}
