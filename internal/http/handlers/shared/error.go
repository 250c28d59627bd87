package shared

import (
	"errors"

	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/i18n"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// Locale 按 Accept-Language 解析语言
func Locale(c *gin.Context) string {
	if c == nil {
		return i18n.DefaultLocale
	}
	return i18n.ResolveLocale(c.GetHeader("Accept-Language"))
}

// Message 解析错误消息，缺失字段错误会列出字段名
func Message(c *gin.Context, key string, err error) string {
	var missing *service.MissingFieldsError
	if errors.As(err, &missing) {
		return i18n.Sprintf(Locale(c), "error.missing_fields", missing.FieldList())
	}
	return i18n.T(Locale(c), key)
}

func logHandlerError(c *gin.Context, code int, msg string, err error) {
	if err == nil {
		return
	}
	RequestLog(c).Errorw("handler_error",
		"code", code,
		"message", msg,
		"error", err,
	)
}

// RespondError 返回国际化错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, key string, err error) {
	msg := Message(c, key, err)
	logHandlerError(c, code, msg, err)
	response.Error(c, code, msg)
}

// RespondStoreError 店面接口错误响应，使用真实 HTTP 状态码
func RespondStoreError(c *gin.Context, status int, key string, err error) {
	msg := Message(c, key, err)
	logHandlerError(c, status, msg, err)
	response.StoreFail(c, status, msg)
}

// MappedError 业务错误到接口错误的映射
type MappedError struct {
	Target error
	Code   int
	Key    string
}

// MatchError 返回第一条匹配的映射规则
func MatchError(err error, rules []MappedError) (MappedError, bool) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			return rule, true
		}
	}
	return MappedError{}, false
}

// ConcatErrorRules 合并多组映射规则
func ConcatErrorRules(groups ...[]MappedError) []MappedError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]MappedError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}
