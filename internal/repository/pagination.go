package repository

import "gorm.io/gorm"

// MaxPageSize 单次查询上限，与 PocketBase 的 perPage 上限一致
const MaxPageSize = 500

// normalizePage 统一处理非法页码与页大小
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// applyPagination 应用分页参数
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	page, pageSize = normalizePage(page, pageSize)
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
