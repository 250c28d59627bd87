package router

import (
	"fmt"
	"strings"

	"github.com/licenseshop/internal/cache"
	"github.com/licenseshop/internal/config"
	adminhandlers "github.com/licenseshop/internal/http/handlers/admin"
	publichandlers "github.com/licenseshop/internal/http/handlers/public"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.Z()
	r := gin.New()

	// 初始化 Handler（按前台/后台分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "ls"
	}
	redisClient := cache.Client()
	limit := cfg.Security.RateLimit
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: limit.WindowSeconds,
		MaxRequests:   limit.MaxRequests,
	}
	invoiceRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:invoice", redisPrefix),
		WindowSeconds: limit.WindowSeconds,
		MaxRequests:   limit.MaxRequests,
		Storefront:    true,
	}
	orderRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:order", redisPrefix),
		WindowSeconds: limit.WindowSeconds,
		MaxRequests:   limit.MaxRequests,
		Storefront:    true,
	}
	sessionRequired := CheckoutSessionMiddleware(c.AuthService)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(MetricsMiddleware(c.Metrics))
	r.Use(CORSMiddleware(cfg.CORS))

	// 店面接口（原始 JSON，真实 HTTP 状态码）
	api := r.Group("/api")
	{
		api.POST("/checkout/session", publicHandler.IssueCheckoutSession)
		api.POST("/cart/summary", publicHandler.CartSummary)

		api.POST("/create-invoice", RateLimitMiddleware(redisClient, invoiceRule, KeyByIPAndJSONField("email")), publicHandler.CreateInvoice)
		api.GET("/invoice-status/:id", publicHandler.InvoiceStatus)

		api.POST("/orders", RateLimitMiddleware(redisClient, orderRule, KeyByIPAndJSONField("customer_email")), sessionRequired, publicHandler.CreateOrder)
		api.PATCH("/orders/:id", sessionRequired, publicHandler.UpdateOrder)
		api.GET("/orders/:id", sessionRequired, publicHandler.GetOrder)
		api.POST("/orders/:id/pay", sessionRequired, publicHandler.StartPayment)
		api.GET("/orders/:id/poll", sessionRequired, publicHandler.PollPayment)
		api.GET("/payments/:order_id/poll", sessionRequired, publicHandler.PollPayment)

		api.POST("/paypal/webhook", publicHandler.PaypalWebhook)

		api.GET("/products", publicHandler.GetProducts)
		api.GET("/products/:slug", publicHandler.GetProductBySlug)
		api.GET("/config", publicHandler.GetConfig)
	}

	// 管理员接口
	admin := r.Group("/api/v1/admin")
	{
		// 登录接口（无需鉴权）
		admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIP), adminHandler.AdminLogin)

		// 需要鉴权的接口
		authorized := admin.Group("")
		authorized.Use(JWTAuthMiddleware(c.AuthService))
		{
			// 订单管理
			authorized.GET("/orders", adminHandler.AdminListOrders)
			authorized.POST("/orders/reconcile", adminHandler.AdminReconcileOpenOrders)
			authorized.GET("/orders/:id", adminHandler.AdminGetOrder)
			authorized.PATCH("/orders/:id", adminHandler.AdminUpdateOrderStatus)
			authorized.POST("/orders/:id/deliver", adminHandler.AdminDeliverOrder)
			authorized.POST("/orders/:id/delivery-email", adminHandler.AdminPreviewDeliveryEmail)
			authorized.POST("/orders/:id/recover", adminHandler.AdminRecoverOrder)
			authorized.POST("/orders/:id/refund", adminHandler.AdminRefundOrder)
			authorized.POST("/orders/:id/reconcile", adminHandler.AdminReconcileOrder)

			// 商品管理
			authorized.GET("/products", adminHandler.GetAdminProducts)
			authorized.GET("/products/:id", adminHandler.GetAdminProduct)
			authorized.POST("/products", adminHandler.CreateProduct)
			authorized.PUT("/products/:id", adminHandler.UpdateProduct)
			authorized.DELETE("/products/:id", adminHandler.DeleteProduct)

			// 店铺配置
			authorized.GET("/config", adminHandler.GetStoreConfig)
			authorized.PUT("/config", adminHandler.UpdateStoreConfig)

			// 用户管理
			authorized.GET("/users", adminHandler.GetAdminUsers)
			authorized.DELETE("/users/:id", adminHandler.DeleteAdminUser)
		}
	}

	// 健康检查
	r.GET("/health", publicHandler.Health)

	if c.Metrics != nil {
		path := strings.TrimSpace(cfg.Metrics.Path)
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(c.Metrics.Handler()))
	}

	return r
}
