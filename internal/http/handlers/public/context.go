package public

import (
	"net/http"

	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, status int, key string, err error) {
	handlershared.RespondStoreError(c, status, key, err)
}

// checkoutSession 读取结账会话，缺失时直接响应 401
func checkoutSession(c *gin.Context) (*service.CheckoutSession, bool) {
	session, ok := handlershared.GetCheckoutSession(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "error.session_required", nil)
		return nil, false
	}
	return session, true
}
