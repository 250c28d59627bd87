package repository

import (
	"context"
	"errors"

	"github.com/licenseshop/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSettingRepository GORM 实现
type GormSettingRepository struct {
	db *gorm.DB
}

// NewSettingRepository 创建配置仓库
func NewSettingRepository(db *gorm.DB) *GormSettingRepository {
	return &GormSettingRepository{db: db}
}

// Get 读取配置
func (r *GormSettingRepository) Get(ctx context.Context, key string) (*models.StoreSetting, error) {
	var setting models.StoreSetting
	if err := r.db.WithContext(ctx).Where("setting_key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

// Upsert 写入配置
func (r *GormSettingRepository) Upsert(ctx context.Context, key string, value models.JSON) (*models.StoreSetting, error) {
	existing, err := r.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	setting := models.StoreSetting{ID: models.NewRecordID(), Key: key, Value: value}
	if existing != nil {
		setting.ID = existing.ID
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// List 全部配置
func (r *GormSettingRepository) List(ctx context.Context) ([]models.StoreSetting, error) {
	var settings []models.StoreSetting
	if err := r.db.WithContext(ctx).Order("setting_key ASC").Find(&settings).Error; err != nil {
		return nil, err
	}
	return settings, nil
}

// NewGormStore 组装 SQL 后端仓库
func NewGormStore(db *gorm.DB) *Store {
	return &Store{
		Orders:   NewOrderRepository(db),
		Products: NewProductRepository(db),
		Users:    NewUserRepository(db),
		Settings: NewSettingRepository(db),
	}
}
