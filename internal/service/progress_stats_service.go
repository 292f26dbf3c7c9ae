package service

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pactlog/internal/cadence"
	"github.com/pactlog/internal/db"
)

// ProgressStatsService 负责打卡历史与统计逻辑
type ProgressStatsService struct {
	db *gorm.DB
}

// SessionLogFilter 指定查询区间
type SessionLogFilter struct {
	GoalID string
	Start  time.Time
	End    time.Time
}

// ProgressStats 汇总基础统计数据
type ProgressStats struct {
	RangeStart     time.Time
	RangeEnd       time.Time
	CompletedCount int
	TargetCount    int
	CompletionRate float64
	CurrentStreak  int
	LongestStreak  int
}

// HeatmapEntry 表示热力图中的单日打卡数据
type HeatmapEntry struct {
	LogDate   time.Time
	GoalID    string
	GoalTitle string
	UserID    string
}

// NewProgressStatsService 构造 ProgressStatsService
func NewProgressStatsService(gdb *gorm.DB) *ProgressStatsService {
	return &ProgressStatsService{db: gdb}
}

// ListBetween 返回指定区间内的打卡记录
func (s *ProgressStatsService) ListBetween(filter SessionLogFilter) ([]db.GoalSessionLog, error) {
	var logs []db.GoalSessionLog

	if filter.GoalID == "" {
		return nil, fmt.Errorf("%w: goal id is required", ErrValidation)
	}

	start := cadence.StartOfDay(filter.Start)
	end := cadence.StartOfDay(filter.End)

	if err := s.db.Where("goal_id = ?", filter.GoalID).
		Where("log_date BETWEEN ? AND ?", start, end).
		Order("log_date ASC").
		Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list session logs: %w", err)
	}

	return logs, nil
}

// HeatmapRange 返回指定区间内某用户所有目标的打卡数据
func (s *ProgressStatsService) HeatmapRange(userID string, start, end time.Time) ([]HeatmapEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end before start", ErrValidation)
	}

	normalizedStart := cadence.StartOfDay(start)
	normalizedEnd := cadence.StartOfDay(end)

	query := s.db.Model(&db.GoalSessionLog{}).
		Select("goal_session_logs.log_date AS log_date, goal_session_logs.goal_id AS goal_id, goals.title AS goal_title, goals.user_id AS user_id").
		Joins("JOIN goals ON goals.id = goal_session_logs.goal_id").
		Where("goal_session_logs.log_date BETWEEN ? AND ?", normalizedStart, normalizedEnd)
	if userID != "" {
		query = query.Where("goals.user_id = ?", userID)
	}

	var rows []HeatmapEntry
	if err := query.Order("goal_session_logs.log_date ASC, goals.title ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list heatmap logs: %w", err)
	}

	return rows, nil
}

// StatsBetween 计算区间内的完成数、目标完成数及连胜
func (s *ProgressStatsService) StatsBetween(filter SessionLogFilter, goal db.Goal) (*ProgressStats, error) {
	logs, err := s.ListBetween(filter)
	if err != nil {
		return nil, err
	}

	stats := &ProgressStats{
		RangeStart: filter.Start,
		RangeEnd:   filter.End,
	}

	stats.CompletedCount = len(logs)
	stats.TargetCount = expectedSessions(goal, filter.Start, filter.End)
	if stats.TargetCount <= 0 {
		stats.TargetCount = stats.CompletedCount
	}

	if stats.TargetCount > 0 {
		stats.CompletionRate = float64(stats.CompletedCount) / float64(stats.TargetCount)
	}

	stats.CurrentStreak, stats.LongestStreak = calculateStreaks(logs)

	return stats, nil
}

func expectedSessions(goal db.Goal, start, end time.Time) int {
	if end.Before(start) {
		return 0
	}

	days := int(end.Sub(start).Hours()/24) + 1
	weeks := days / cadence.WindowDays
	if weeks == 0 {
		weeks = 1
	}

	perWeek := goal.SessionsPerWeek
	if perWeek < 1 {
		perWeek = 1
	}
	return weeks * perWeek
}

func calculateStreaks(logs []db.GoalSessionLog) (current, longest int) {
	if len(logs) == 0 {
		return 0, 0
	}

	longest = 1
	current = 1

	for i := 1; i < len(logs); i++ {
		delta := int(logs[i].LogDate.Sub(logs[i-1].LogDate).Hours() / 24)
		if delta == 1 {
			current++
			if current > longest {
				longest = current
			}
		} else if delta > 1 {
			current = 1
		}
	}

	return current, longest
}
