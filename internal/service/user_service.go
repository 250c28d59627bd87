package service

import (
	"context"

	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/models"
	"github.com/licenseshop/internal/repository"
)

// UserService 店铺用户管理
type UserService struct {
	repo repository.UserRepository
}

// NewUserService 创建用户服务
func NewUserService(repo repository.UserRepository) *UserService {
	return &UserService{repo: repo}
}

// List 用户列表
func (s *UserService) List(ctx context.Context, search, role string, page, pageSize int) ([]models.StoreUser, int64, error) {
	return s.repo.List(ctx, repository.UserListFilter{
		Page:     page,
		PageSize: pageSize,
		Search:   search,
		Role:     role,
	})
}

// Delete 删除用户
func (s *UserService) Delete(ctx context.Context, id string) error {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Infow("store_user_deleted", "user_id", id, "email", user.Email)
	return nil
}
