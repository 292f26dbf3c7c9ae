package service

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pactlog/internal/db"
)

// EngineSettings 描述可在线调整的引擎策略。
type EngineSettings struct {
	// AllowMultipleSessionsPerDay 打开后关闭当日去重（调试/演示用）
	AllowMultipleSessionsPerDay bool
}

// SystemSettingService 提供引擎策略的读取与更新能力。
type SystemSettingService struct {
	db *gorm.DB
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	return &SystemSettingService{db: gdb}
}

// GetSettings 读取引擎策略，未设置的键返回默认值。
func (s *SystemSettingService) GetSettings() (EngineSettings, error) {
	settings := EngineSettings{}

	var rows []db.SystemSetting
	if err := s.db.Where("key IN ?", []string{
		db.SettingKeyAllowMultipleSessionsPerDay,
	}).Find(&rows).Error; err != nil {
		return settings, fmt.Errorf("load system settings: %w", err)
	}

	for _, row := range rows {
		switch row.Key {
		case db.SettingKeyAllowMultipleSessionsPerDay:
			settings.AllowMultipleSessionsPerDay = parseBoolSetting(row.Value)
		}
	}

	return settings, nil
}

// UpdateSettings 以 upsert 方式写入引擎策略。
func (s *SystemSettingService) UpdateSettings(input EngineSettings) error {
	rows := []db.SystemSetting{
		{
			Key:   db.SettingKeyAllowMultipleSessionsPerDay,
			Value: formatBoolSetting(input.AllowMultipleSessionsPerDay),
		},
	}

	for _, row := range rows {
		if err := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("save setting %s: %w", row.Key, err)
		}
	}

	return nil
}

// AllowMultipleSessionsPerDay 单独读取当日多次打卡开关。
func (s *SystemSettingService) AllowMultipleSessionsPerDay() (bool, error) {
	var row db.SystemSetting
	err := s.db.Where("key = ?", db.SettingKeyAllowMultipleSessionsPerDay).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load setting: %w", err)
	}
	return parseBoolSetting(row.Value), nil
}

func parseBoolSetting(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

func formatBoolSetting(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
