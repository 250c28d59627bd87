package models

import "time"

// StoreUser 店铺用户（对应 store_users 集合）
type StoreUser struct {
	ID        string    `gorm:"primaryKey;type:varchar(32)" json:"id"`               // 记录 ID
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"` // 邮箱
	Name      string    `gorm:"type:varchar(255)" json:"name"`                       // 名称
	Role      string    `gorm:"type:varchar(20);default:'customer'" json:"role"`     // 角色
	CreatedAt time.Time `gorm:"index" json:"created"`                                // 创建时间
	UpdatedAt time.Time `json:"updated"`                                             // 更新时间
}

// TableName 指定表名
func (StoreUser) TableName() string {
	return "store_users"
}
