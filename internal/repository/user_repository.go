package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/licenseshop/internal/models"

	"gorm.io/gorm"
)

// GormUserRepository GORM 实现
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// GetByID 根据 ID 获取用户
func (r *GormUserRepository) GetByID(ctx context.Context, id string) (*models.StoreUser, error) {
	var user models.StoreUser
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Delete 删除用户
func (r *GormUserRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StoreUser{}).Error
}

// List 用户列表
func (r *GormUserRepository) List(ctx context.Context, filter UserListFilter) ([]models.StoreUser, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.StoreUser{})
	if role := strings.TrimSpace(filter.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	query = whereSearch(query, filter.Search, "email", "name")
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.StoreUser
	if err := applyPagination(query.Order("created_at DESC"), filter.Page, filter.PageSize).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}
