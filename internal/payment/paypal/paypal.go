package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	ErrConfigInvalid       = errors.New("paypal config invalid")
	ErrAuthFailed          = errors.New("paypal auth failed")
	ErrRequestFailed       = errors.New("paypal request failed")
	ErrResponseInvalid     = errors.New("paypal response invalid")
	ErrInvoiceNotFound     = errors.New("paypal invoice not found")
	ErrWebhookVerifyFailed = errors.New("paypal webhook verify failed")
)

const (
	ModeSandbox = "sandbox"
	ModeLive    = "live"

	sandboxAPIBaseURL = "https://api-m.sandbox.paypal.com"
	liveAPIBaseURL    = "https://api-m.paypal.com"
	sandboxWebBaseURL = "https://www.sandbox.paypal.com"
	liveWebBaseURL    = "https://www.paypal.com"

	defaultTimeout     = 12 * time.Second
	tokenRefreshMargin = 60 * time.Second
	minTokenTTL        = 30 * time.Second
)

// TokenCache 访问令牌缓存
type TokenCache interface {
	GetToken(ctx context.Context, key string) (string, bool, error)
	SetToken(ctx context.Context, key, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, key string) error
}

// Config PayPal 发票接口配置
type Config struct {
	ClientID          string
	ClientSecret      string
	Mode              string
	BaseURL           string
	WebBaseURL        string
	Currency          string
	InvoicerEmail     string
	WebhookID         string
	TokenCacheSeconds int
	Timeout           time.Duration
}

func (c *Config) normalize() {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeSandbox
	}
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = sandboxAPIBaseURL
		if c.Mode == ModeLive {
			c.BaseURL = liveAPIBaseURL
		}
	}
	c.WebBaseURL = strings.TrimRight(strings.TrimSpace(c.WebBaseURL), "/")
	if c.WebBaseURL == "" {
		c.WebBaseURL = sandboxWebBaseURL
		if c.Mode == ModeLive {
			c.WebBaseURL = liveWebBaseURL
		}
	}
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = "USD"
	}
	c.InvoicerEmail = strings.TrimSpace(c.InvoicerEmail)
	c.WebhookID = strings.TrimSpace(c.WebhookID)
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
}

// ValidateConfig 校验配置
func ValidateConfig(cfg Config) error {
	cfg.normalize()
	if cfg.ClientID == "" {
		return fmt.Errorf("%w: client_id is required", ErrConfigInvalid)
	}
	if cfg.ClientSecret == "" {
		return fmt.Errorf("%w: client_secret is required", ErrConfigInvalid)
	}
	if cfg.Mode != ModeSandbox && cfg.Mode != ModeLive {
		return fmt.Errorf("%w: mode %q is not supported", ErrConfigInvalid, cfg.Mode)
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return fmt.Errorf("%w: base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// Client PayPal 发票客户端，缓存 OAuth 令牌直到过期前
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     TokenCache

	mu       sync.Mutex
	token    string
	tokenExp time.Time
	now      func() time.Time
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 指定 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenCache 使用共享令牌缓存
func WithTokenCache(cache TokenCache) Option {
	return func(c *Client) {
		c.tokens = cache
	}
}

// NewClient 创建客户端
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Mode 返回运行模式
func (c *Client) Mode() string {
	return c.cfg.Mode
}

// Currency 返回默认币种
func (c *Client) Currency() string {
	return c.cfg.Currency
}

func (c *Client) tokenCacheKey() string {
	return "paypal:token:" + c.cfg.Mode + ":" + c.cfg.ClientID
}

// AccessToken 获取 client-credentials 令牌
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}
	if c.tokens != nil {
		if cached, ok, err := c.tokens.GetToken(ctx, c.tokenCacheKey()); err == nil && ok {
			c.token = cached
			c.tokenExp = c.now().Add(minTokenTTL)
			return cached, nil
		}
	}

	token, expiresIn, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	ttl := expiresIn - tokenRefreshMargin
	if c.cfg.TokenCacheSeconds > 0 {
		if capped := time.Duration(c.cfg.TokenCacheSeconds) * time.Second; capped < ttl {
			ttl = capped
		}
	}
	if ttl < minTokenTTL {
		ttl = minTokenTTL
	}
	c.token = token
	c.tokenExp = c.now().Add(ttl)
	if c.tokens != nil {
		_ = c.tokens.SetToken(ctx, c.tokenCacheKey(), token, ttl)
	}
	return token, nil
}

func (c *Client) invalidateToken(ctx context.Context) {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
	if c.tokens != nil {
		_ = c.tokens.DeleteToken(ctx, c.tokenCacheKey())
	}
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	values := url.Values{}
	values.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(values.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("%w: build token request failed", ErrAuthFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("%w: request token failed", ErrAuthFailed)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("%w: read token response failed", ErrAuthFailed)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("%w: token status %d", ErrAuthFailed, resp.StatusCode)
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("%w: decode token response failed", ErrAuthFailed)
	}
	token := strings.TrimSpace(readString(parsed, "access_token"))
	if token == "" {
		return "", 0, fmt.Errorf("%w: access_token is empty", ErrAuthFailed)
	}
	expiresIn, _ := strconv.Atoi(readString(parsed, "expires_in"))
	return token, time.Duration(expiresIn) * time.Second, nil
}

// doJSON 发送带令牌的 JSON 请求，401 时刷新令牌重试一次
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body []byte, headers map[string]string) ([]byte, int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return nil, 0, err
		}
		respBody, status, err := c.send(ctx, method, endpoint, token, body, headers)
		if err != nil {
			return nil, 0, err
		}
		if status == http.StatusUnauthorized && attempt == 0 {
			c.invalidateToken(ctx)
			continue
		}
		return respBody, status, nil
	}
	return nil, http.StatusUnauthorized, fmt.Errorf("%w: token rejected", ErrAuthFailed)
}

func (c *Client) send(ctx context.Context, method, endpoint, token string, body []byte, headers map[string]string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: http request failed", ErrRequestFailed)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

func extractLinkByRel(raw map[string]interface{}, rel string) string {
	links, ok := raw["links"].([]interface{})
	if !ok {
		return ""
	}
	rel = strings.ToLower(strings.TrimSpace(rel))
	for _, item := range links {
		linkMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if strings.ToLower(strings.TrimSpace(readString(linkMap, "rel"))) != rel {
			continue
		}
		if href := strings.TrimSpace(readString(linkMap, "href")); href != "" {
			return href
		}
	}
	return ""
}

func readString(raw map[string]interface{}, path ...string) string {
	var current interface{} = raw
	for _, seg := range path {
		if idx, err := strconv.Atoi(seg); err == nil {
			arr, ok := current.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return ""
			}
			current = arr[idx]
			continue
		}
		next, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = next[seg]
	}
	switch v := current.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
