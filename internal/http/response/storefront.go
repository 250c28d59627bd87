package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StoreError 店面接口错误体，沿用前端已有的 statusCode/message 结构
type StoreError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id,omitempty"`
}

// Raw 店面接口成功响应，直接返回业务数据
func Raw(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// StoreFail 店面接口错误响应，使用真实 HTTP 状态码
func StoreFail(c *gin.Context, status int, msg string) {
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, StoreError{
		StatusCode: status,
		Message:    msg,
		RequestID:  c.GetString(requestIDKey),
	})
}
