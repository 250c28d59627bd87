package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	PocketBase PocketBaseConfig `mapstructure:"pocketbase"`
	Paypal     PaypalConfig     `mapstructure:"paypal"`
	Shop       ShopConfig       `mapstructure:"shop"`
	Checkout   CheckoutConfig   `mapstructure:"checkout"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Events     EventsConfig     `mapstructure:"events"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Security   SecurityConfig   `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// StoreConfig 订单存储后端
type StoreConfig struct {
	Backend string `mapstructure:"backend"` // pocketbase / sql
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置（store.backend=sql 时使用）
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // sqlite / postgres
	DSN    string             `mapstructure:"dsn"`
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// PocketBaseCollections 集合名称
type PocketBaseCollections struct {
	Orders   string `mapstructure:"orders"`
	Products string `mapstructure:"products"`
	Users    string `mapstructure:"users"`
	Config   string `mapstructure:"config"`
}

// PocketBaseConfig PocketBase 连接配置
type PocketBaseConfig struct {
	URL            string                `mapstructure:"url"`
	AuthCollection string                `mapstructure:"auth_collection"`
	Identity       string                `mapstructure:"identity"`
	Password       string                `mapstructure:"password"`
	TimeoutSeconds int                   `mapstructure:"timeout_seconds"`
	Collections    PocketBaseCollections `mapstructure:"collections"`
}

// PaypalConfig PayPal 发票配置
type PaypalConfig struct {
	ClientID          string `mapstructure:"client_id"`
	ClientSecret      string `mapstructure:"client_secret"`
	Mode              string `mapstructure:"mode"` // sandbox / live
	BaseURL           string `mapstructure:"base_url"`
	Currency          string `mapstructure:"currency"`
	InvoicerEmail     string `mapstructure:"invoicer_email"`
	WebhookID         string `mapstructure:"webhook_id"`
	TokenCacheSeconds int    `mapstructure:"token_cache_seconds"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// ShopConfig 店铺信息
type ShopConfig struct {
	Name         string `mapstructure:"name"`
	Email        string `mapstructure:"email"`
	URL          string `mapstructure:"url"`
	Currency     string `mapstructure:"currency"`
	ThankYouPath string `mapstructure:"thank_you_path"`
}

// CheckoutConfig 结账与轮询配置
type CheckoutConfig struct {
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
	PollTimeoutMinutes  int    `mapstructure:"poll_timeout_minutes"`
	SessionSecret       string `mapstructure:"session_secret"`
	SessionTTLHours     int    `mapstructure:"session_ttl_hours"`
	VerifyPrices        bool   `mapstructure:"verify_prices"`
	// ReconcileIntervalMinutes 未完成订单自动对账间隔，0 表示关闭
	ReconcileIntervalMinutes int `mapstructure:"reconcile_interval_minutes"`
}

// JWTConfig JWT 配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// AdminConfig 管理后台配置
type AdminConfig struct {
	JWT          JWTConfig `mapstructure:"jwt"`
	Username     string    `mapstructure:"username"`
	PasswordHash string    `mapstructure:"password_hash"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// EventsConfig NATS 事件配置
type EventsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// MetricsConfig 指标暴露配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 接口限流配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxRequests   int `mapstructure:"max_requests"`
}

// envAliases 旧版前端环境变量兼容
var envAliases = map[string][]string{
	"server.port":          {"SERVER_PORT", "PORT"},
	"paypal.client_id":     {"PAYPAL_CLIENT_ID", "VITE_PAYPAL_CLIENT_ID"},
	"paypal.client_secret": {"PAYPAL_CLIENT_SECRET", "VITE_PAYPAL_CLIENT_SECRET"},
	"paypal.mode":          {"PAYPAL_MODE", "VITE_PAYPAL_MODE"},
	"shop.name":            {"SHOP_NAME", "VITE_SHOP_NAME"},
	"shop.email":           {"SHOP_EMAIL", "VITE_SHOP_EMAIL"},
	"shop.url":             {"SHOP_URL", "VITE_SHOP_URL"},
	"shop.currency":        {"SHOP_CURRENCY", "VITE_SHOP_CURRENCY"},
	"pocketbase.url":       {"POCKETBASE_URL", "VITE_POCKETBASE_URL"},
}

// Load 从 config.yml 加载配置
func Load() *Config {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("../")
	v.AddConfigPath("./etc")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, names := range envAliases {
		args := append([]string{key}, names...)
		_ = v.BindEnv(args...)
	}

	if err := v.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}
	cfg.normalize()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.dir", "")
	v.SetDefault("log.filename", "storefront.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)
	v.SetDefault("store.backend", constants.StoreBackendPocketBase)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./db/storefront.db")
	v.SetDefault("database.pool.max_open_conns", 1)
	v.SetDefault("database.pool.max_idle_conns", 1)
	v.SetDefault("pocketbase.url", "http://127.0.0.1:8090")
	v.SetDefault("pocketbase.auth_collection", "_superusers")
	v.SetDefault("pocketbase.timeout_seconds", 10)
	v.SetDefault("pocketbase.collections.orders", constants.CollectionOrders)
	v.SetDefault("pocketbase.collections.products", constants.CollectionProducts)
	v.SetDefault("pocketbase.collections.users", constants.CollectionUsers)
	v.SetDefault("pocketbase.collections.config", constants.CollectionConfig)
	v.SetDefault("paypal.mode", constants.PaypalModeSandbox)
	v.SetDefault("paypal.currency", "")
	v.SetDefault("paypal.token_cache_seconds", 0)
	v.SetDefault("paypal.timeout_seconds", 12)
	v.SetDefault("shop.name", "License Shop")
	v.SetDefault("shop.currency", constants.SiteCurrencyDefault)
	v.SetDefault("shop.thank_you_path", "/thank-you")
	v.SetDefault("checkout.poll_interval_seconds", constants.DefaultPollInterval)
	v.SetDefault("checkout.poll_timeout_minutes", constants.DefaultPollTimeout)
	v.SetDefault("checkout.session_secret", "checkout-change-me-in-production")
	v.SetDefault("checkout.session_ttl_hours", 72)
	v.SetDefault("checkout.verify_prices", false)
	v.SetDefault("checkout.reconcile_interval_minutes", 5)
	v.SetDefault("admin.jwt.secret", "change-me-in-production")
	v.SetDefault("admin.jwt.expire_hours", 24)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ls")
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "127.0.0.1")
	v.SetDefault("queue.port", 6379)
	v.SetDefault("queue.db", 1)
	v.SetDefault("queue.concurrency", 10)
	v.SetDefault("queue.queues", map[string]int{
		constants.QueueDefault:  10,
		constants.QueueCritical: 5,
	})
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.subject_prefix", "storefront")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{
		"Content-Type",
		"Authorization",
		"X-Checkout-Session",
		"X-Requested-With",
	})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 600)
	v.SetDefault("security.rate_limit.window_seconds", 60)
	v.SetDefault("security.rate_limit.max_requests", 120)
}

func (c *Config) normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Paypal.Mode = strings.ToLower(strings.TrimSpace(c.Paypal.Mode))
	if strings.TrimSpace(c.Paypal.Currency) == "" {
		c.Paypal.Currency = c.Shop.Currency
	}
	c.Shop.Currency = strings.ToUpper(strings.TrimSpace(c.Shop.Currency))
	c.Paypal.Currency = strings.ToUpper(strings.TrimSpace(c.Paypal.Currency))
	if strings.TrimSpace(c.Shop.ThankYouPath) == "" {
		c.Shop.ThankYouPath = "/thank-you"
	}
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var problems []string
	switch c.Store.Backend {
	case constants.StoreBackendPocketBase:
		if strings.TrimSpace(c.PocketBase.URL) == "" {
			problems = append(problems, "pocketbase.url is required")
		}
	case constants.StoreBackendSQL:
		if strings.TrimSpace(c.Database.DSN) == "" {
			problems = append(problems, "database.dsn is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend %q is not supported", c.Store.Backend))
	}
	switch c.Paypal.Mode {
	case constants.PaypalModeSandbox, constants.PaypalModeLive:
	default:
		problems = append(problems, fmt.Sprintf("paypal.mode %q is not supported", c.Paypal.Mode))
	}
	if c.Checkout.PollIntervalSeconds <= 0 {
		problems = append(problems, "checkout.poll_interval_seconds must be positive")
	}
	if c.Checkout.PollTimeoutMinutes <= 0 {
		problems = append(problems, "checkout.poll_timeout_minutes must be positive")
	}
	if len(c.Shop.Currency) != 3 {
		problems = append(problems, "shop.currency must be a 3-letter code")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
