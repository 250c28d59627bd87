package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/licenseshop/internal/cache"
	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/events"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/metrics"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/payment/paypal"
	"github.com/licenseshop/internal/pocketbase"
	"github.com/licenseshop/internal/queue"
	"github.com/licenseshop/internal/repository"
	"github.com/licenseshop/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client
	Events      *events.Publisher
	Metrics     *metrics.Metrics
	TokenCache  *cache.TokenCache
	PollStore   *cache.PollStore

	// 外部服务客户端
	PocketBase *pocketbase.Client
	Paypal     *paypal.Client

	// Repositories
	Store *repository.Store

	// Services
	AuthService         *service.AuthService
	NotificationService *service.NotificationService
	OrderEffects        *service.OrderEffects
	CartService         *service.CartService
	OrderService        *service.OrderService
	InvoiceService      *service.InvoiceService
	Poller              *service.Poller
	CheckoutService     *service.CheckoutService
	OrderAdminService   *service.OrderAdminService
	ProductService      *service.ProductService
	SettingService      *service.SettingService
	UserService         *service.UserService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) (*Container, error) {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	queueClient, err := queue.NewClient(&cfg.Queue)
	if err != nil {
		logger.Errorw("provider_init_queue_client_failed", "error", err)
		queueClient = nil
	}

	publisher, err := events.Connect(&cfg.Events)
	if err != nil {
		// 事件总线不可用不影响下单
		logger.Warnw("provider_init_events_failed", "url", cfg.Events.URL, "error", err)
		publisher = nil
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
		Events:      publisher,
		TokenCache:  cache.NewTokenCache(),
		PollStore:   cache.NewPollStore(),
	}
	if cfg.Metrics.Enabled {
		c.Metrics = metrics.New()
	}

	// 1. 初始化存储后端
	if err := c.initStore(); err != nil {
		return nil, err
	}

	// 2. 初始化 PayPal
	c.initPaypal()

	// 3. 初始化 Services
	c.initServices()

	return c, nil
}

func (c *Container) initStore() error {
	backend := strings.ToLower(strings.TrimSpace(c.Config.Store.Backend))
	switch backend {
	case "", constants.StoreBackendPocketBase:
		client, err := pocketbase.NewClient(pocketbase.Config{
			URL:            c.Config.PocketBase.URL,
			AuthCollection: c.Config.PocketBase.AuthCollection,
			Identity:       c.Config.PocketBase.Identity,
			Password:       c.Config.PocketBase.Password,
			Timeout:        time.Duration(c.Config.PocketBase.TimeoutSeconds) * time.Second,
		}, pocketbase.WithTokenCache(c.TokenCache))
		if err != nil {
			return fmt.Errorf("init pocketbase client: %w", err)
		}
		c.PocketBase = client
		c.Store = repository.NewPocketBaseStore(client, c.Config.PocketBase.Collections)
	case constants.StoreBackendSQL:
		if err := models.InitDB(c.Config.Database.Driver, c.Config.Database.DSN, models.DBPoolConfig{
			MaxOpenConns:           c.Config.Database.Pool.MaxOpenConns,
			MaxIdleConns:           c.Config.Database.Pool.MaxIdleConns,
			ConnMaxLifetimeSeconds: c.Config.Database.Pool.ConnMaxLifetimeSeconds,
			ConnMaxIdleTimeSeconds: c.Config.Database.Pool.ConnMaxIdleTimeSeconds,
		}, c.Config.Server.Mode == "debug"); err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		if err := models.AutoMigrate(models.DB); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		c.Store = repository.NewGormStore(models.DB)
	default:
		return fmt.Errorf("unsupported store backend: %s", backend)
	}
	logger.Infow("provider_store_ready", "backend", backend)
	return nil
}

func (c *Container) initPaypal() {
	cfg := c.Config.Paypal
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		logger.Warnw("provider_paypal_not_configured", "mode", cfg.Mode)
		return
	}
	currency := cfg.Currency
	if strings.TrimSpace(currency) == "" {
		currency = c.Config.Shop.Currency
	}
	client, err := paypal.NewClient(paypal.Config{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		Mode:              cfg.Mode,
		BaseURL:           cfg.BaseURL,
		Currency:          currency,
		InvoicerEmail:     cfg.InvoicerEmail,
		WebhookID:         cfg.WebhookID,
		TokenCacheSeconds: cfg.TokenCacheSeconds,
		Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
	}, paypal.WithTokenCache(c.TokenCache))
	if err != nil {
		logger.Errorw("provider_init_paypal_failed", "error", err)
		return
	}
	c.Paypal = client
	logger.Infow("provider_paypal_ready", "mode", client.Mode(), "currency", client.Currency())
}

func (c *Container) initServices() {
	cfg := c.Config
	currency := cfg.Shop.Currency

	// 未配置 PayPal 时网关保持为 nil 接口
	var gateway service.InvoiceGateway
	if c.Paypal != nil {
		gateway = c.Paypal
	}

	c.AuthService = service.NewAuthService(cfg)
	c.NotificationService = service.NewNotificationService(service.LogMailer{}, cfg.Shop, "")
	c.OrderEffects = service.NewOrderEffects(c.QueueClient, c.NotificationService, c.Events, c.Metrics)
	c.CartService = service.NewCartService(c.Store.Products, currency, cfg.Checkout.VerifyPrices)
	c.OrderService = service.NewOrderService(c.Store.Orders, c.OrderEffects)
	c.InvoiceService = service.NewInvoiceService(gateway, c.OrderService, c.Metrics, currency, cfg.Shop.Name)
	c.Poller = service.NewPoller(c.PollStore, c.InvoiceService, c.OrderService, c.QueueClient, c.Metrics, service.PollerOptions{
		Interval:     time.Duration(cfg.Checkout.PollIntervalSeconds) * time.Second,
		Timeout:      time.Duration(cfg.Checkout.PollTimeoutMinutes) * time.Minute,
		ThankYouPath: cfg.Shop.ThankYouPath,
	})
	c.CheckoutService = service.NewCheckoutService(c.Store.Orders, c.OrderService, c.CartService, c.InvoiceService, c.Poller, c.OrderEffects, currency)
	c.OrderAdminService = service.NewOrderAdminService(c.Store.Orders, c.OrderService, c.InvoiceService, c.NotificationService, c.OrderEffects)
	c.ProductService = service.NewProductService(c.Store.Products, currency)
	c.SettingService = service.NewSettingService(c.Store.Settings, cfg.Shop, cfg.Paypal.Mode)
	c.UserService = service.NewUserService(c.Store.Users)
}

// Close 释放容器持有的资源
func (c *Container) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Poller != nil {
		c.Poller.Stop()
	}
	if err := c.Events.Close(ctx); err != nil {
		logger.Warnw("provider_close_events_failed", "error", err)
	}
	if err := c.QueueClient.Close(); err != nil {
		logger.Warnw("provider_close_queue_failed", "error", err)
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
