package admin

import (
	"errors"
	"strings"
	"time"

	"github.com/licenseshop/internal/cache"
	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/provider"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler 管理端接口处理器，响应统一使用 response 信封
type Handler struct {
	*provider.Container
}

// New 创建管理端处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token     string                 `json:"token"`
	User      map[string]interface{} `json:"user"`
	ExpiresAt string                 `json:"expires_at"`
}

// AdminLogin 管理员登录
func (h *Handler) AdminLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	token, expiresAt, err := h.AuthService.Login(strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondError(c, response.CodeUnauthorized, "error.login_invalid", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.internal_error", err)
		return
	}

	requestLog(c).Infow("admin_login_success", "username", req.Username)
	response.Success(c, LoginResponse{
		Token:     token,
		User:      map[string]interface{}{"username": strings.TrimSpace(req.Username)},
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// GetAdminProducts 获取商品列表 (Admin)
func (h *Handler) GetAdminProducts(c *gin.Context) {
	page, pageSize := handlershared.NormalizePagination(handlershared.QueryPage(c))
	search := strings.TrimSpace(c.Query("search"))

	products, total, err := h.ProductService.ListAdmin(c.Request.Context(), search, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "error.product_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, products, handlershared.BuildPagination(page, pageSize, total))
}

// GetAdminProduct 获取商品详情 (Admin)
func (h *Handler) GetAdminProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}

	product, err := h.ProductService.GetAdminByID(c.Request.Context(), id)
	if err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "error.product_fetch_failed")
		return
	}
	response.Success(c, product)
}

// ProductRequest 商品创建/更新请求，价格接受数字或字符串
type ProductRequest struct {
	Name          string                 `json:"name"`
	Slug          string                 `json:"slug"`
	Description   string                 `json:"description"`
	Price         decimal.Decimal        `json:"price"`
	OriginalPrice decimal.Decimal        `json:"original_price"`
	Currency      string                 `json:"currency"`
	Variants      models.ProductVariants `json:"variants"`
	Active        *bool                  `json:"active"`
	SortOrder     int                    `json:"sort_order"`
}

func (r ProductRequest) toInput() service.ProductInput {
	return service.ProductInput{
		Name:          r.Name,
		Slug:          r.Slug,
		Description:   r.Description,
		Price:         r.Price,
		OriginalPrice: r.OriginalPrice,
		Currency:      r.Currency,
		Variants:      r.Variants,
		Active:        r.Active,
		SortOrder:     r.SortOrder,
	}
}

// CreateProduct 创建商品
func (h *Handler) CreateProduct(c *gin.Context) {
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	product, err := h.ProductService.Create(c.Request.Context(), req.toInput())
	if err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "error.product_save_failed")
		return
	}
	response.Success(c, product)
}

// UpdateProduct 更新商品
func (h *Handler) UpdateProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	var req ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil || id == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	product, err := h.ProductService.Update(c.Request.Context(), id, req.toInput())
	if err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "error.product_save_failed")
		return
	}
	response.Success(c, product)
}

// DeleteProduct 删除商品
func (h *Handler) DeleteProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}

	if err := h.ProductService.Delete(c.Request.Context(), id); err != nil {
		respondWithMappedError(c, err, productErrorRules, response.CodeInternal, "error.product_save_failed")
		return
	}
	response.Success(c, nil)
}

// GetStoreConfig 获取店铺配置
func (h *Handler) GetStoreConfig(c *gin.Context) {
	data, err := h.SettingService.GetStoreConfig(c.Request.Context())
	if err != nil {
		respondError(c, response.CodeInternal, "error.config_fetch_failed", err)
		return
	}
	response.Success(c, data)
}

// UpdateStoreConfig 更新店铺配置
func (h *Handler) UpdateStoreConfig(c *gin.Context) {
	var patch map[string]interface{}
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	data, err := h.SettingService.UpdateStoreConfig(c.Request.Context(), patch)
	if err != nil {
		if errors.Is(err, service.ErrConfigInvalid) {
			response.Error(c, response.CodeBadRequest, err.Error())
			return
		}
		respondError(c, response.CodeInternal, "error.config_fetch_failed", err)
		return
	}

	if err := cache.Del(c.Request.Context(), cache.PublicConfigKey); err != nil {
		requestLog(c).Warnw("admin_store_config_cache_clear_failed", "error", err)
	}
	requestLog(c).Infow("admin_store_config_updated", "admin", getAdminUsername(c))
	response.Success(c, data)
}

func getAdminUsername(c *gin.Context) string {
	username, _ := handlershared.GetAdminUsername(c)
	return username
}
