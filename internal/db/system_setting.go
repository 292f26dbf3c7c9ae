package db

import "gorm.io/gorm"

// SystemSetting 存储可在线调整的引擎级键值对。
type SystemSetting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (SystemSetting) TableName() string {
	return "system_settings"
}

const (
	// SettingKeyAllowMultipleSessionsPerDay 打开后允许一天内多次打卡（调试用）。
	SettingKeyAllowMultipleSessionsPerDay = "allow_multiple_sessions_per_day"
)
