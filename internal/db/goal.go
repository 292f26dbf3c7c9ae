package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 审批状态取值，pending/suggested_change 之外的写入一律拒绝
const (
	ApprovalPending         = "pending"
	ApprovalApproved        = "approved"
	ApprovalSuggestedChange = "suggested_change"
)

// Goal 定义了目标模型，引擎内所有命令都围绕它读写。
// 周期字段描述当前 7 天窗口：WeekStart 在首次打卡前为空；
// WeeklyLogDates 以日期字符串集合做当日去重；
// CurrentCount 只统计完整完成的窗口数。
// 审批字段记录发起条款与赞助人协商过程，Initial* 为条款下限。
// 伙伴字段维护双向互链目标的完成/解锁状态。
// CouponCode 一经写入不再变更。
type Goal struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	UserID     string `gorm:"size:64;index;not null"`
	Title      string
	SponsorID  string `gorm:"size:64;index"`
	CategoryID string `gorm:"size:64;index"`
	StartDate  time.Time
	EndDate    time.Time

	WeekStart       *time.Time
	WeeklyCount     int
	WeeklyLogDates  datatypes.JSONSlice[string]
	IsWeekCompleted bool
	CurrentCount    int
	TargetCount     int
	SessionsPerWeek int

	IsActive    bool
	IsCompleted bool
	IsFreeGoal  bool

	ApprovalStatus           string `gorm:"size:32;index"`
	InitialTargetCount       int
	InitialSessionsPerWeek   int
	SuggestedTargetCount     *int
	SuggestedSessionsPerWeek *int
	ApprovalDeadline         *time.Time
	GiverActionTaken         bool

	PartnerGoalID *string `gorm:"type:varchar(36);index"`
	IsFinished    bool
	IsUnlocked    bool
	UnlockShown   bool

	CouponCode        *string `gorm:"size:16"`
	CouponGeneratedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// BeforeCreate 在创建时补齐 UUID 主键。
func (g *Goal) BeforeCreate(tx *gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// GoalSessionLog 记录每一次被计入的打卡。
// GoalID + LogDate + SessionNumber 采用唯一索引；窗口内的当日去重
// 由 Goal.WeeklyLogDates 保证，SessionNumber 兼作事件侧的去重键。
type GoalSessionLog struct {
	gorm.Model
	GoalID        string    `gorm:"type:varchar(36);index;index:idx_goal_session_unique,unique"`
	LogDate       time.Time `gorm:"index:idx_goal_session_unique,unique"`
	LogTime       *time.Time
	Source        string `gorm:"size:32"`
	Note          string
	SessionNumber int `gorm:"index:idx_goal_session_unique,unique"`
}

// TableName 重写确保唯一索引作用到 goal_id + log_date + session_number
func (GoalSessionLog) TableName() string {
	return "goal_session_logs"
}
