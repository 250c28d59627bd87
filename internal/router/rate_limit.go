package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/i18n"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimitKeyFunc 生成限流 key 的函数
type RateLimitKeyFunc func(*gin.Context) string

// RateLimitRule 限流规则
type RateLimitRule struct {
	Prefix        string
	WindowSeconds int
	MaxRequests   int
	MessageKey    string
	// Storefront 为 true 时按店面格式返回真实 HTTP 状态码
	Storefront bool
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("TTL", KEYS[1])
return {current, ttl}
`)

// maxLocalLimiters 进程内限流器数量上限，超过后整体重置
const maxLocalLimiters = 10000

// rateCounter 判断一次请求是否放行，拒绝时返回需等待的秒数
type rateCounter interface {
	Allow(ctx context.Context, key string) (bool, int, error)
}

// redisCounter 固定窗口计数，多实例共享
type redisCounter struct {
	client *redis.Client
	rule   RateLimitRule
}

func (r *redisCounter) Allow(ctx context.Context, key string) (bool, int, error) {
	result, err := rateLimitScript.Run(ctx, r.client, []string{key}, r.rule.WindowSeconds).Result()
	if err != nil {
		return false, 0, err
	}
	values, ok := result.([]interface{})
	if !ok || len(values) < 2 {
		return false, 0, fmt.Errorf("unexpected rate limit result: %v", result)
	}
	count, ok := toInt64(values[0])
	if !ok {
		return false, 0, fmt.Errorf("unexpected rate limit count: %v", values[0])
	}
	if count <= int64(r.rule.MaxRequests) {
		return true, 0, nil
	}
	ttl, _ := toInt64(values[1])
	return false, int(ttl), nil
}

// localCounter 未配置 Redis 时的进程内令牌桶
type localCounter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func newLocalCounter(rule RateLimitRule) *localCounter {
	window := time.Duration(rule.WindowSeconds) * time.Second
	return &localCounter{
		limit:    rate.Every(window / time.Duration(rule.MaxRequests)),
		burst:    rule.MaxRequests,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *localCounter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxLocalLimiters {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	reservation := limiter.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return true, 0, nil
	}
	reservation.Cancel()
	return false, int(math.Ceil(delay.Seconds())), nil
}

// RateLimitMiddleware 频率限制中间件；配置 Redis 时按固定窗口计数，否则退化为进程内令牌桶
func RateLimitMiddleware(client *redis.Client, rule RateLimitRule, keyFunc RateLimitKeyFunc) gin.HandlerFunc {
	if rule.WindowSeconds <= 0 || rule.MaxRequests <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	var counter rateCounter = newLocalCounter(rule)
	if client != nil {
		counter = &redisCounter{client: client, rule: rule}
	}

	return func(c *gin.Context) {
		key := ""
		if keyFunc != nil {
			key = strings.TrimSpace(keyFunc(c))
		}
		if key == "" {
			key = c.ClientIP()
		}
		if rule.Prefix != "" {
			key = fmt.Sprintf("%s:%s", rule.Prefix, key)
		}

		allowed, waitSeconds, err := counter.Allow(c.Request.Context(), key)
		if err != nil {
			handlershared.RequestLog(c).Warnw("rate_limit_unavailable", "key", key, "error", err)
			rule.fail(c, http.StatusInternalServerError, response.CodeInternal, i18n.T(locale(c), "error.rate_limit_unavailable"))
			return
		}
		if allowed {
			c.Next()
			return
		}
		if waitSeconds < 1 {
			waitSeconds = rule.WindowSeconds
		}
		msgKey := strings.TrimSpace(rule.MessageKey)
		if msgKey == "" {
			msgKey = "error.rate_limited"
		}
		c.Header("Retry-After", strconv.Itoa(waitSeconds))
		rule.fail(c, http.StatusTooManyRequests, response.CodeTooManyRequests, i18n.Sprintf(locale(c), msgKey, waitSeconds))
	}
}

func (rule RateLimitRule) fail(c *gin.Context, status, code int, msg string) {
	if rule.Storefront {
		response.StoreFail(c, status, msg)
	} else {
		response.Error(c, code, msg)
	}
	c.Abort()
}

// KeyByIP 使用 IP 作为限流 key
func KeyByIP(c *gin.Context) string {
	return c.ClientIP()
}

// KeyByIPAndJSONField 使用 IP + JSON 字段作为限流 key
func KeyByIPAndJSONField(field string) RateLimitKeyFunc {
	return func(c *gin.Context) string {
		value := strings.ToLower(strings.TrimSpace(readJSONField(c, field)))
		if value == "" {
			return c.ClientIP()
		}
		return fmt.Sprintf("%s|%s", value, c.ClientIP())
	}
}

func readJSONField(c *gin.Context, field string) string {
	if c == nil || c.Request == nil || c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	value, ok := payload[field]
	if !ok {
		return ""
	}
	if text, ok := value.(string); ok {
		return strings.TrimSpace(text)
	}
	return ""
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
