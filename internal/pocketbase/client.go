package pocketbase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrConfigInvalid   = errors.New("pocketbase config invalid")
	ErrAuthFailed      = errors.New("pocketbase auth failed")
	ErrRequestFailed   = errors.New("pocketbase request failed")
	ErrResponseInvalid = errors.New("pocketbase response invalid")
	ErrNotFound        = errors.New("pocketbase record not found")
)

const (
	defaultTimeout      = 10 * time.Second
	defaultTokenTTL     = 10 * time.Minute
	tokenRefreshMargin  = time.Minute
	legacyAdminsAuthKey = "admins"
)

// TokenCache 认证令牌缓存
type TokenCache interface {
	GetToken(ctx context.Context, key string) (string, bool, error)
	SetToken(ctx context.Context, key, token string, ttl time.Duration) error
	DeleteToken(ctx context.Context, key string) error
}

// Config PocketBase 连接配置
type Config struct {
	URL            string
	AuthCollection string
	Identity       string
	Password       string
	Timeout        time.Duration
}

// APIError PocketBase 返回的错误响应
type APIError struct {
	Status  int
	Message string
	Data    map[string]interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pocketbase status %d: %s", e.Status, e.Message)
}

// Unwrap 404 映射为 ErrNotFound，其余为 ErrRequestFailed
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrAuthFailed
	}
	return ErrRequestFailed
}

// Client PocketBase REST 客户端，持有管理员会话
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

// WithTokenCache 使用共享令牌缓存（如 Redis）
func WithTokenCache(cache TokenCache) Option {
	return func(c *Client) {
		c.tokens = cache
	}
}

// NewClient 创建客户端
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.URL = strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	cfg.AuthCollection = strings.TrimSpace(cfg.AuthCollection)
	cfg.Identity = strings.TrimSpace(cfg.Identity)
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("%w: url is invalid", ErrConfigInvalid)
	}
	if cfg.AuthCollection == "" {
		cfg.AuthCollection = "_superusers"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
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

// BaseURL 返回服务地址
func (c *Client) BaseURL() string {
	return c.cfg.URL
}

func (c *Client) tokenCacheKey() string {
	return "pocketbase:token:" + c.cfg.AuthCollection + ":" + c.cfg.Identity
}

// AuthToken 返回有效的管理员令牌，未配置账号时返回空串
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	if c.cfg.Identity == "" {
		return "", nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExp) {
		return c.token, nil
	}
	if c.tokens != nil {
		if cached, ok, err := c.tokens.GetToken(ctx, c.tokenCacheKey()); err == nil && ok {
			c.token = cached
			c.tokenExp = c.now().Add(tokenRefreshMargin)
			return cached, nil
		}
	}

	token, err := c.authenticate(ctx)
	if err != nil {
		return "", err
	}
	ttl := tokenTTL(token, c.now())
	c.token = token
	c.tokenExp = c.now().Add(ttl)
	if c.tokens != nil {
		_ = c.tokens.SetToken(ctx, c.tokenCacheKey(), token, ttl)
	}
	return token, nil
}

// invalidateToken 令牌被拒绝后清除缓存
func (c *Client) invalidateToken(ctx context.Context) {
	c.mu.Lock()
	c.token = ""
	c.tokenExp = time.Time{}
	c.mu.Unlock()
	if c.tokens != nil {
		_ = c.tokens.DeleteToken(ctx, c.tokenCacheKey())
	}
}

func (c *Client) authenticate(ctx context.Context) (string, error) {
	endpoint := "/api/collections/" + url.PathEscape(c.cfg.AuthCollection) + "/auth-with-password"
	if c.cfg.AuthCollection == legacyAdminsAuthKey {
		endpoint = "/api/admins/auth-with-password"
	}
	body, err := json.Marshal(map[string]string{
		"identity": c.cfg.Identity,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal auth payload failed", ErrAuthFailed)
	}
	respBody, status, err := c.send(ctx, http.MethodPost, endpoint, "", body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("%w: auth status %d", ErrAuthFailed, status)
	}
	var parsed struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode auth response failed", ErrAuthFailed)
	}
	if strings.TrimSpace(parsed.Token) == "" {
		return "", fmt.Errorf("%w: token is empty", ErrAuthFailed)
	}
	return parsed.Token, nil
}

// tokenTTL 依据 JWT exp 计算缓存时长
func tokenTTL(token string, now time.Time) time.Duration {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil || claims.ExpiresAt == nil {
		return defaultTokenTTL
	}
	ttl := claims.ExpiresAt.Time.Sub(now) - tokenRefreshMargin
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}

// do 发送带认证的请求，401 时刷新令牌重试一次
func (c *Client) do(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: marshal request failed", ErrRequestFailed)
		}
		body = encoded
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.AuthToken(ctx)
		if err != nil {
			return err
		}
		respBody, status, err := c.send(ctx, method, endpoint, token, body)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized && token != "" && attempt == 0 {
			c.invalidateToken(ctx)
			continue
		}
		if status < 200 || status >= 300 {
			return decodeAPIError(status, respBody)
		}
		if out == nil || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%w: decode response failed: %v", ErrResponseInvalid, err)
		}
		return nil
	}
	return fmt.Errorf("%w: token rejected", ErrAuthFailed)
}

func (c *Client) send(ctx context.Context, method, endpoint, token string, body []byte) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: http request failed: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrRequestFailed)
	}
	return respBody, resp.StatusCode, nil
}

// Health 调用 /api/health，无需认证
func (c *Client) Health(ctx context.Context) error {
	body, status, err := c.send(ctx, http.MethodGet, "/api/health", "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return decodeAPIError(status, body)
	}
	return nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var parsed struct {
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = parsed.Message
		apiErr.Data = parsed.Data
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}
