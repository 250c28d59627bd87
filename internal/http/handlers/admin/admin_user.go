package admin

import (
	"errors"
	"strings"

	handlershared "github.com/licenseshop/internal/http/handlers/shared"
	"github.com/licenseshop/internal/http/response"
	"github.com/licenseshop/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminUsers 获取店铺用户列表
func (h *Handler) GetAdminUsers(c *gin.Context) {
	page, pageSize := handlershared.NormalizePagination(handlershared.QueryPage(c))
	search := strings.TrimSpace(c.Query("search"))
	role := strings.TrimSpace(c.Query("role"))

	users, total, err := h.UserService.List(c.Request.Context(), search, role, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "error.user_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, users, handlershared.BuildPagination(page, pageSize, total))
}

// DeleteAdminUser 删除店铺用户
func (h *Handler) DeleteAdminUser(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		respondError(c, response.CodeBadRequest, "error.bad_request", nil)
		return
	}
	if err := h.UserService.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondError(c, response.CodeNotFound, "error.user_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.user_delete_failed", err)
		return
	}
	requestLog(c).Infow("admin_user_deleted", "admin", getAdminUsername(c), "user_id", id)
	response.Success(c, nil)
}
