package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RewardCodeStatusIssued 表示兑换码已签发、尚未核销。
const RewardCodeStatusIssued = "issued"

// RewardCode 记录按分类命名空间签发的兑换码。
// CategoryID + Code 采用唯一索引，碰撞检查与 Goal.CouponCode 的写入
// 必须发生在同一事务中，二者不可独立存在。
type RewardCode struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	Code       string `gorm:"size:16;index:idx_reward_code_namespace,unique;not null"`
	CategoryID string `gorm:"size:64;index:idx_reward_code_namespace,unique;not null"`
	UserID     string `gorm:"size:64;index"`
	GoalID     string `gorm:"type:varchar(36);index"`
	Status     string `gorm:"size:32"`
	ValidFrom  time.Time
	ValidUntil time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BeforeCreate 在创建时补齐 UUID 主键。
func (r *RewardCode) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
