package shared

import (
	"strconv"

	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/http/response"

	"github.com/gin-gonic/gin"
)

// NormalizePagination 归一化分页参数。
func NormalizePagination(page, pageSize int) (int, int) {
	return normalizePagination(page, pageSize, 100)
}

// NormalizeOrderPagination 订单列表单次最多 500 条
func NormalizeOrderPagination(page, pageSize int) (int, int) {
	return normalizePagination(page, pageSize, constants.DefaultAdminListSize)
}

func normalizePagination(page, pageSize, max int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > max {
		pageSize = max
	}
	return page, pageSize
}

// QueryPage 读取 page/page_size 查询参数
func QueryPage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}

// BuildPagination 组装分页信息
func BuildPagination(page, pageSize int, total int64) response.Pagination {
	totalPage := int64(0)
	if pageSize > 0 {
		totalPage = (total + int64(pageSize) - 1) / int64(pageSize)
	}
	return response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: totalPage,
	}
}
