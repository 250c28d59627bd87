package models

// StoreSetting 店铺配置键值（对应 store_config 集合）
type StoreSetting struct {
	ID    string `gorm:"primaryKey;type:varchar(32)" json:"id"`                                // 记录 ID
	Key   string `gorm:"column:setting_key;type:varchar(128);uniqueIndex;not null" json:"key"` // 配置键
	Value JSON   `gorm:"type:json" json:"value"`                                               // 配置值
}

// TableName 指定表名
func (StoreSetting) TableName() string {
	return "store_config"
}
