package public

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/licenseshop/internal/cache"
	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/provider"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	publicConfigCacheTTL = 60 * time.Second
	healthCheckTimeout   = 3 * time.Second
)

// Handler 店面接口处理器，响应沿用前端已有的原始结构，不使用管理端信封
type Handler struct {
	*provider.Container
}

// New 创建店面处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// ProductListResponse 商品列表
type ProductListResponse struct {
	Items      []models.Product `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalItems int64            `json:"total_items"`
}

// GetProducts 上架商品列表
func (h *Handler) GetProducts(c *gin.Context) {
	page, pageSize := handlershared.NormalizePagination(handlershared.QueryPage(c))
	products, total, err := h.ProductService.ListPublic(c.Request.Context(), strings.TrimSpace(c.Query("search")), page, pageSize)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.product_fetch_failed", err)
		return
	}
	response.Raw(c, http.StatusOK, ProductListResponse{
		Items:      products,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
	})
}

// GetProductBySlug 按 slug 读取上架商品
func (h *Handler) GetProductBySlug(c *gin.Context) {
	product, err := h.ProductService.GetPublicBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			respondError(c, http.StatusNotFound, "error.product_not_found", nil)
			return
		}
		respondError(c, http.StatusInternalServerError, "error.product_fetch_failed", err)
		return
	}
	response.Raw(c, http.StatusOK, product)
}

// GetConfig 店面公开配置
func (h *Handler) GetConfig(c *gin.Context) {
	var cached map[string]interface{}
	if hit, err := cache.GetJSON(c.Request.Context(), cache.PublicConfigKey, &cached); err == nil && hit {
		response.Raw(c, http.StatusOK, cached)
		return
	}
	data, err := h.SettingService.GetStoreConfig(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.config_fetch_failed", err)
		return
	}
	if err := cache.SetJSON(c.Request.Context(), cache.PublicConfigKey, data, publicConfigCacheTTL); err != nil {
		requestLog(c).Debugw("public_config_cache_set_failed", "error", err)
	}
	response.Raw(c, http.StatusOK, data)
}

// Health 健康检查
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	checks := gin.H{}
	healthy := true
	if h.PocketBase != nil {
		if err := h.PocketBase.Health(ctx); err != nil {
			checks["pocketbase"] = err.Error()
			healthy = false
		} else {
			checks["pocketbase"] = "ok"
		}
	}
	if cache.Enabled() {
		if err := cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}
	checks["paypal"] = h.Paypal != nil
	checks["events"] = h.Events.Enabled()
	checks["queue"] = h.QueueClient.Enabled()

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	response.Raw(c, status, gin.H{"status": state, "checks": checks})
}
