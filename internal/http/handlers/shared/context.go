package shared

import (
	"strings"

	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyAdminUsername 管理员 JWT 中的用户名
	ContextKeyAdminUsername = "admin_username"
	// ContextKeyCheckoutSession 已解析的结账会话
	ContextKeyCheckoutSession = "checkout_session"
	// HeaderCheckoutSession 结账会话请求头
	HeaderCheckoutSession = "X-Checkout-Session"
)

// GetAdminUsername 读取当前管理员用户名
func GetAdminUsername(c *gin.Context) (string, bool) {
	value, ok := c.Get(ContextKeyAdminUsername)
	if !ok {
		return "", false
	}
	username, ok := value.(string)
	return username, ok && strings.TrimSpace(username) != ""
}

// GetCheckoutSession 读取中间件写入的结账会话
func GetCheckoutSession(c *gin.Context) (*service.CheckoutSession, bool) {
	value, ok := c.Get(ContextKeyCheckoutSession)
	if !ok {
		return nil, false
	}
	session, ok := value.(*service.CheckoutSession)
	return session, ok && session != nil
}

// CheckoutToken 从请求头读取结账会话 token
func CheckoutToken(c *gin.Context) string {
	if token := strings.TrimSpace(c.GetHeader(HeaderCheckoutSession)); token != "" {
		return token
	}
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
